//go:build !windows

// Package segvcatcher produces a backtrace on SIGSEGV in an
// uncooperative process that installs its own SIGSEGV handler.
//
// It is the Go analog of an LD_PRELOAD crash tracer. Link it into a
// binary with
//
//	import _ "github.com/estar/segvcatcher"
//
// and it stays dormant until the SEGVCATCHER environment variable is
// set. When enabled, arming happens in two phases so that the tracer
// loses the handler-installation race on purpose:
//
//  1. At load time a watchdog is started and a handshake signal handler
//     is registered. Control returns to the host's normal startup.
//  2. The watchdog waits out a delay, during which the host installs
//     whatever SIGSEGV handler it wants, then sends the handshake
//     signal. Only now does the tracer swap its fault handler into the
//     SIGSEGV disposition, saving the handler the host had by then.
//
// On a fault the tracer writes a symbolic backtrace to stderr using
// nothing but raw writes into preallocated buffers, then calls the saved
// host handler, or exits with the conventional killed-by-signal status
// if the host never installed one.
package segvcatcher

import (
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/cortesi/termlog"
	"golang.org/x/sys/unix"

	"github.com/estar/segvcatcher/conf"
	"github.com/estar/segvcatcher/disposition"
)

// Version is the segvcatcher release version
const Version = "0.2-pre"

// Arming progression. Transitions only ever move forward: nothing
// disarms the fault handler once the handshake has run, and a fault
// in the unarmed state is simply not ours to intercept.
const (
	stateUnarmed int32 = iota
	stateArmed
	stateFaulted
	stateDelegated
	stateTerminated
)

var state atomic.Int32

func advance(to int32) {
	for {
		cur := state.Load()
		if cur >= to || state.CompareAndSwap(cur, to) {
			return
		}
	}
}

var (
	attachOnce sync.Once

	// originalHandler is the host's SIGSEGV disposition as captured at
	// handshake time. Written exactly once, by the handshake handler,
	// strictly before any fault can reach handleSegv; read only inside
	// handleSegv. That write-before-fault ordering is the whole
	// synchronization story, so no lock guards it.
	originalHandler disposition.Disposition

	debugLog termlog.TermLog
)

func debugf(format string, args ...interface{}) {
	if debugLog != nil {
		debugLog.SayAs("debug", format, args...)
	}
}

func init() {
	if spec := os.Getenv(watchdogEnv); spec != "" {
		runWatchdog(spec) // never returns
	}
	if os.Getenv(conf.EnvEnable) == "" {
		return
	}
	cnf, err := conf.Load()
	if err != nil {
		// A broken configuration degrades to not tracing. The host must
		// come up regardless of what happens here.
		return
	}
	Attach(cnf)
}

// Attach arms the tracer: registers the handshake handler and starts the
// watchdog. Only the first call has any effect. An error means tracing
// will never activate; the caller's process is otherwise untouched.
func Attach(cnf *conf.Config) error {
	var err error
	attachOnce.Do(func() {
		err = attach(cnf)
	})
	return err
}

func attach(cnf *conf.Config) error {
	if cnf.Debug {
		l := termlog.NewLog()
		l.Enable("debug")
		debugLog = l
	}
	configureTrace(cnf.Depth)

	sig := cnf.Signal.Unix()
	// Register the handshake handler before starting the watchdog so
	// even an instant (zero-delay) handshake cannot be missed.
	disposition.Swap(sig, disposition.Disposition{
		Kind:    disposition.Custom,
		Handler: handshake,
	})

	if cnf.Mode == conf.ModeTimer {
		startTimerWatchdog(cnf.Delay.Duration, sig)
		debugf("timer watchdog armed: %s in %s", unix.SignalName(sig), cnf.Delay.Duration)
		return nil
	}
	return spawnWatchdog(cnf)
}

// handshake runs on first delivery of the handshake signal. It swaps the
// fault handler into the SIGSEGV slot and captures whatever disposition
// the host had installed during the delay window.
func handshake(sig syscall.Signal) {
	// One-shot: switch ourselves to ignore first, so further handshake
	// signals have no additional effect.
	disposition.Swap(sig, disposition.Disposition{Kind: disposition.Ignore})

	originalHandler = disposition.Swap(syscall.SIGSEGV, disposition.Disposition{
		Kind:    disposition.Custom,
		Handler: handleSegv,
	})
	advance(stateArmed)
	debugf("handshake on %s: SIGSEGV handler armed, previous disposition %s",
		unix.SignalName(sig), originalHandler.Kind)
}
