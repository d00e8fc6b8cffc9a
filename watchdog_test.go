//go:build !windows

package segvcatcher

import (
	"syscall"
	"testing"
	"time"
)

func TestSleepPastFullDelay(t *testing.T) {
	var cur time.Time
	now := func() time.Time { return cur }

	// A sleeper that wakes early every time, as an interrupting signal
	// would. sleepPast must keep re-sleeping until the deadline.
	calls := 0
	sleep := func(d time.Duration) {
		calls++
		cur = cur.Add(d/2 + 1)
	}

	start := cur
	sleepPast(now, sleep, 3*time.Second)

	if elapsed := cur.Sub(start); elapsed < 3*time.Second {
		t.Fatalf("returned after %s, want the full 3s", elapsed)
	}
	if calls < 2 {
		t.Fatalf("%d sleep calls, expected re-sleeps after early wakeups", calls)
	}
}

func TestSleepPastUninterrupted(t *testing.T) {
	var cur time.Time
	now := func() time.Time { return cur }
	calls := 0
	sleep := func(d time.Duration) {
		calls++
		cur = cur.Add(d)
	}

	sleepPast(now, sleep, time.Second)
	if calls != 1 {
		t.Fatalf("%d sleep calls, want 1", calls)
	}
}

func TestSleepPastZeroDelay(t *testing.T) {
	now := func() time.Time { return time.Time{} }
	sleep := func(time.Duration) {
		t.Fatal("slept for a zero delay")
	}
	sleepPast(now, sleep, 0)
}

func TestWatchdogSpec(t *testing.T) {
	spec := watchdogSpec(1234, syscall.SIGUSR2, 1500*time.Millisecond)
	pid, sig, delay, err := parseWatchdogSpec(spec)
	if err != nil {
		t.Fatal(err)
	}
	if pid != 1234 || sig != syscall.SIGUSR2 || delay != 1500*time.Millisecond {
		t.Fatalf("round trip gave pid=%d sig=%d delay=%s", pid, sig, delay)
	}

	if _, _, _, err := parseWatchdogSpec("bogus"); err == nil {
		t.Fatal("expected error for a malformed spec")
	}
}
