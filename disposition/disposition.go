//go:build !windows

// Package disposition maintains a process-wide registry of signal
// dispositions with sigaction-like read-and-replace semantics.
//
// Go's os/signal fans a signal out to every subscribed channel and
// offers no way to ask "who handles this signal right now?". This
// package narrows it back down to the POSIX model: one disposition per
// signal, installed and queried atomically with Swap. Both a process's
// own code and code that wants to interpose on it (see the root
// segvcatcher package) go through the same slot, which is what makes
// save-the-previous-handler-and-delegate schemes possible at all.
package disposition

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Kind discriminates a Disposition.
type Kind int

const (
	// None marks the absence of a captured disposition. Swap never
	// stores it; it is the zero value callers use for "nothing saved
	// yet".
	None Kind = iota
	// Default stands for the operating system's default action.
	Default
	// Ignore discards the signal.
	Ignore
	// Custom runs a handler function.
	Custom
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Default:
		return "default"
	case Ignore:
		return "ignore"
	case Custom:
		return "custom"
	}
	return "unknown"
}

// Handler is a signal handler function. It is invoked on the registry's
// dispatch goroutine, one delivery at a time per signal.
type Handler func(sig syscall.Signal)

// Disposition is one of the four POSIX-style responses to a signal.
// Handler is set iff Kind is Custom.
type Disposition struct {
	Kind    Kind
	Handler Handler
}

type slot struct {
	sig syscall.Signal
	cur atomic.Pointer[Disposition]
	ch  chan os.Signal
}

var (
	mu    sync.Mutex
	slots = map[syscall.Signal]*slot{}
)

// Swap installs d as the disposition for sig and returns the previously
// installed one. The first Swap for a signal returns a Default
// disposition, mirroring what sigaction reports for an untouched signal.
//
// The replacement is atomic with respect to delivery: a signal arriving
// concurrently runs either the old or the new disposition, never a
// mixture.
func Swap(sig syscall.Signal, d Disposition) Disposition {
	if d.Kind == Custom && d.Handler == nil {
		panic("disposition: Custom disposition without a handler")
	}
	if d.Kind == None {
		panic("disposition: cannot install the None disposition")
	}
	dd := d

	mu.Lock()
	defer mu.Unlock()

	s, ok := slots[sig]
	if !ok {
		s = &slot{sig: sig, ch: make(chan os.Signal, 1)}
		s.cur.Store(&dd)
		slots[sig] = s
		signal.Notify(s.ch, sig)
		go s.dispatch()
		return Disposition{Kind: Default}
	}
	prev := s.cur.Swap(&dd)
	return *prev
}

// Current returns the disposition installed for sig, or a None
// disposition if the registry does not manage sig.
func Current(sig syscall.Signal) Disposition {
	mu.Lock()
	defer mu.Unlock()
	if s, ok := slots[sig]; ok {
		return *s.cur.Load()
	}
	return Disposition{Kind: None}
}

// Reset relinquishes sig back to the runtime's normal handling and
// forgets the slot. Intended for tests.
func Reset(sig syscall.Signal) {
	mu.Lock()
	defer mu.Unlock()
	if s, ok := slots[sig]; ok {
		signal.Stop(s.ch)
		close(s.ch) // Stop guarantees no further sends; ends the dispatcher
		delete(slots, sig)
	}
}

// Raise sends sig to the current process. Signals raised this way are
// delivered asynchronously and therefore reach the registry even for
// signals the Go runtime treats specially when they occur synchronously
// (SIGSEGV, SIGBUS, SIGFPE).
func Raise(sig syscall.Signal) error {
	return unix.Kill(os.Getpid(), sig)
}

func (s *slot) dispatch() {
	for range s.ch {
		d := s.cur.Load()
		switch d.Kind {
		case Custom:
			d.Handler(s.sig)
		case Ignore:
			// swallowed
		case Default:
			deliverDefault(s.sig, s.ch)
		}
	}
}

// deliverDefault hands one delivery of sig over to the operating
// system's default action: detach from the runtime's handling, re-raise,
// and give the kernel a moment to act before re-attaching. For fatal
// signals the process is gone before the re-attach; for the rest this
// round-trip is invisible.
func deliverDefault(sig syscall.Signal, ch chan os.Signal) {
	signal.Reset(sig)
	defer signal.Notify(ch, sig)

	unix.Kill(os.Getpid(), sig)

	// Delivery is asynchronous; without the pause the re-attach can win
	// the race against the kernel and the default action never happens.
	time.Sleep(time.Millisecond)
}
