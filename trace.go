//go:build !windows

package segvcatcher

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/estar/segvcatcher/conf"
	"github.com/estar/segvcatcher/disposition"
)

// Diagnostic literals, kept as byte slices so the fault path never
// converts or allocates.
var (
	noticeStart    = []byte("SIGSEGV received. Backtrace:\n")
	noticeEnd      = []byte("End of backtrace. ")
	noticeDelegate = []byte("Calling original SIGSEGV handler.\n")
	noticeQuit     = []byte("No other SIGSEGV handler available. Quitting.\n")
)

// maxSymbolLen bounds the symbol name portion of a frame line so a line
// always fits the static buffer.
const maxSymbolLen = 384

// Static buffers, allocated once and reused on every fault. handleSegv
// runs on the disposition dispatch goroutine, one delivery at a time, so
// reuse is race-free.
var (
	tracePCs   [conf.MaxDepth]uintptr
	traceLine  [512]byte
	traceDepth = conf.MaxDepth
	traceFD    = syscall.Stderr
	traceExe   = func() []byte {
		name := filepath.Base(os.Args[0])
		if len(name) > 64 {
			name = name[:64]
		}
		return []byte(name)
	}()
)

func configureTrace(depth int) {
	if depth > 0 && depth <= conf.MaxDepth {
		traceDepth = depth
	}
}

// handleSegv is the installed SIGSEGV disposition. Everything on this
// path must come from the allow-list of calls that do not allocate, lock
// or buffer: unix.Write, runtime.Callers, runtime.FuncForPC, and
// strconv appends into the static line buffer. It never returns
// normally; it either delegates to the saved host handler or exits.
func handleSegv(sig syscall.Signal) {
	advance(stateFaulted)
	writeTrace()
	if originalHandler.Kind == disposition.Custom {
		rawWrite(noticeDelegate)
		advance(stateDelegated)
		originalHandler.Handler(sig)
		return
	}
	rawWrite(noticeQuit)
	advance(stateTerminated)
	// Exiting (rather than returning into a default-disposition path)
	// avoids any chance of refaulting on the same spot.
	unix.Exit(128 | int(sig))
}

// writeTrace captures up to traceDepth frames of the calling goroutine
// and writes one symbolised line per frame, bracketed by the start and
// end notices. Deeper stacks truncate; they never fail.
func writeTrace() {
	rawWrite(noticeStart)
	n := runtime.Callers(2, tracePCs[:traceDepth])
	for i := 0; i < n; i++ {
		writeFrame(tracePCs[i])
	}
	rawWrite(noticeEnd)
}

// writeFrame emits "exe(symbol+0xoff)[0xpc]" for one frame in a single
// unbuffered write. A program counter that does not resolve degrades to
// the address-only form "exe()[0xpc]".
func writeFrame(pc uintptr) {
	buf := traceLine[:0]
	buf = append(buf, traceExe...)
	buf = append(buf, '(')
	// pc is a return address, one instruction past the call; back up by
	// one for the lookup so a call that ends its function does not get
	// attributed to whatever happens to sit next in the text segment.
	// The raw pc is still what gets printed in the brackets.
	if fn := runtime.FuncForPC(pc - 1); fn != nil {
		name := fn.Name()
		if len(name) > maxSymbolLen {
			name = name[:maxSymbolLen]
		}
		buf = append(buf, name...)
		buf = append(buf, "+0x"...)
		buf = strconv.AppendUint(buf, uint64(pc-1-fn.Entry()), 16)
	}
	buf = append(buf, ")[0x"...)
	buf = strconv.AppendUint(buf, uint64(pc), 16)
	buf = append(buf, "]\n"...)
	rawWrite(buf)
}

// rawWrite hands b to write(2) in one call. Errors are ignored; nothing
// useful can be done about them from inside a fault handler.
func rawWrite(b []byte) {
	unix.Write(traceFD, b) //nolint:errcheck
}
