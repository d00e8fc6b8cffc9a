//go:build !windows

package disposition

import (
	"syscall"
	"testing"
	"time"
)

func waitFor(t *testing.T, ch chan syscall.Signal) syscall.Signal {
	t.Helper()
	select {
	case sig := <-ch:
		return sig
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for signal delivery")
		return 0
	}
}

func TestSwapReturnsPrevious(t *testing.T) {
	defer Reset(syscall.SIGUSR1)

	first := Swap(syscall.SIGUSR1, Disposition{Kind: Ignore})
	if first.Kind != Default {
		t.Fatalf("first Swap returned %v, want default", first.Kind)
	}

	h := func(syscall.Signal) {}
	prev := Swap(syscall.SIGUSR1, Disposition{Kind: Custom, Handler: h})
	if prev.Kind != Ignore {
		t.Fatalf("second Swap returned %v, want ignore", prev.Kind)
	}

	prev = Swap(syscall.SIGUSR1, Disposition{Kind: Ignore})
	if prev.Kind != Custom || prev.Handler == nil {
		t.Fatalf("third Swap returned %v, want custom with handler", prev.Kind)
	}
}

func TestCustomHandlerRuns(t *testing.T) {
	defer Reset(syscall.SIGUSR1)

	got := make(chan syscall.Signal, 1)
	Swap(syscall.SIGUSR1, Disposition{Kind: Custom, Handler: func(sig syscall.Signal) {
		got <- sig
	}})

	if err := Raise(syscall.SIGUSR1); err != nil {
		t.Fatal(err)
	}
	if sig := waitFor(t, got); sig != syscall.SIGUSR1 {
		t.Fatalf("handler got %v, want SIGUSR1", sig)
	}
}

func TestIgnoreSwallows(t *testing.T) {
	defer Reset(syscall.SIGUSR1)

	got := make(chan syscall.Signal, 1)
	Swap(syscall.SIGUSR1, Disposition{Kind: Ignore})

	if err := Raise(syscall.SIGUSR1); err != nil {
		t.Fatal(err)
	}
	// An ignored SIGUSR1 must neither kill the process nor reach a
	// handler. Swap a handler in afterwards and make sure only a fresh
	// raise reaches it.
	time.Sleep(50 * time.Millisecond)
	Swap(syscall.SIGUSR1, Disposition{Kind: Custom, Handler: func(sig syscall.Signal) {
		got <- sig
	}})
	select {
	case <-got:
		t.Fatal("ignored signal was delivered to a later handler")
	case <-time.After(50 * time.Millisecond):
	}

	if err := Raise(syscall.SIGUSR1); err != nil {
		t.Fatal(err)
	}
	waitFor(t, got)
}

func TestDefaultDeliveryNonFatal(t *testing.T) {
	defer Reset(syscall.SIGWINCH)

	// SIGWINCH's default action is to be discarded by the kernel, so the
	// Default branch's detach/re-raise/re-attach round trip is
	// observable only as survival.
	Swap(syscall.SIGWINCH, Disposition{Kind: Default})
	if err := Raise(syscall.SIGWINCH); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	if prev := Swap(syscall.SIGWINCH, Disposition{Kind: Ignore}); prev.Kind != Default {
		t.Fatalf("disposition changed to %v across a default delivery", prev.Kind)
	}
}

func TestCurrent(t *testing.T) {
	defer Reset(syscall.SIGUSR2)

	if d := Current(syscall.SIGUSR2); d.Kind != None {
		t.Fatalf("unmanaged signal reports %v, want none", d.Kind)
	}
	Swap(syscall.SIGUSR2, Disposition{Kind: Ignore})
	if d := Current(syscall.SIGUSR2); d.Kind != Ignore {
		t.Fatalf("Current returned %v, want ignore", d.Kind)
	}
}

func TestSequentialDeliveries(t *testing.T) {
	defer Reset(syscall.SIGUSR1)

	got := make(chan syscall.Signal, 4)
	Swap(syscall.SIGUSR1, Disposition{Kind: Custom, Handler: func(sig syscall.Signal) {
		got <- sig
	}})

	for i := 0; i < 3; i++ {
		if err := Raise(syscall.SIGUSR1); err != nil {
			t.Fatal(err)
		}
		waitFor(t, got)
	}
}
