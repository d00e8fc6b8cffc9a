//go:build !windows

package segvcatcher

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/estar/segvcatcher/conf"
)

// watchdogEnv marks a process as the watchdog helper. The helper is this
// same binary re-executed with the marker set: init recognises it and
// turns the process into a watchdog before the host's main can run.
// Value: "pid signo delay-ms".
const watchdogEnv = "SEGVCATCHER_WATCHDOG"

func watchdogSpec(pid int, sig syscall.Signal, delay time.Duration) string {
	return fmt.Sprintf("%d %d %d", pid, int(sig), delay.Milliseconds())
}

func parseWatchdogSpec(spec string) (pid int, sig syscall.Signal, delay time.Duration, err error) {
	var signo int
	var delayMS int64
	if _, err := fmt.Sscanf(spec, "%d %d %d", &pid, &signo, &delayMS); err != nil {
		return 0, 0, 0, fmt.Errorf("bad watchdog spec %q: %w", spec, err)
	}
	return pid, syscall.Signal(signo), time.Duration(delayMS) * time.Millisecond, nil
}

// spawnWatchdog starts the watchdog helper process. A spawn failure
// means tracing never arms; the returned error is informational only and
// must not abort the host's startup.
func spawnWatchdog(cnf *conf.Config) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cannot locate own executable: %w", err)
	}
	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(),
		watchdogEnv+"="+watchdogSpec(os.Getpid(), cnf.Signal.Unix(), cnf.Delay.Duration))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("cannot start watchdog: %w", err)
	}
	// The helper is never waited for. The zombie it leaves behind is the
	// host's to reap.
	debugf("watchdog %d armed: %s in %s",
		cmd.Process.Pid, unix.SignalName(cnf.Signal.Unix()), cnf.Delay.Duration)
	return nil
}

// runWatchdog is the whole life of the helper process: wait out the
// delay, poke the host, leave. It never returns.
func runWatchdog(spec string) {
	pid, sig, delay, err := parseWatchdogSpec(spec)
	if err != nil {
		os.Exit(2)
	}
	sleepPast(time.Now, time.Sleep, delay)
	unix.Kill(pid, sig)
	os.Exit(0)
}

// startTimerWatchdog is the in-process alternative: same
// elapsed-delay-then-signal-once contract, no child process and no
// zombie, but the watchdog shares the host's fate.
func startTimerWatchdog(delay time.Duration, sig syscall.Signal) {
	go func() {
		sleepPast(time.Now, time.Sleep, delay)
		unix.Kill(os.Getpid(), sig)
	}()
}

// sleepPast returns only once the full delay has elapsed since it was
// called. A sleep cut short (an interrupting signal, a coarse timer)
// triggers a re-sleep for the remaining interval, so the delay is a
// floor, never an estimate.
func sleepPast(now func() time.Time, sleep func(time.Duration), delay time.Duration) {
	deadline := now().Add(delay)
	for {
		remaining := deadline.Sub(now())
		if remaining <= 0 {
			return
		}
		sleep(remaining)
	}
}
