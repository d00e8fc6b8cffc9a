//go:build !windows

package main

// Demonstration host for the tracer: an uncooperative binary that may
// carry its own SIGSEGV handler. Arguments select the behavior:
//
//	handle        install a handler that prints a line and exits 0
//	handle-stay   install a handler that prints a line and keeps going
//	fault=<dur>   raise SIGSEGV on ourselves after <dur>
//
// Without a fault argument the process idles and reacts to externally
// sent signals, so tests can drive it from outside.

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	_ "github.com/estar/segvcatcher"
	"github.com/estar/segvcatcher/disposition"
)

func main() {
	name := os.Args[0]

	var faultAfter time.Duration
	fault := false
	for _, arg := range os.Args[1:] {
		switch {
		case arg == "handle":
			disposition.Swap(syscall.SIGSEGV, disposition.Disposition{
				Kind: disposition.Custom,
				Handler: func(sig syscall.Signal) {
					fmt.Fprintf(os.Stderr, "%s caught signal %d.\n", name, sig)
					os.Exit(0)
				},
			})
		case arg == "handle-stay":
			disposition.Swap(syscall.SIGSEGV, disposition.Disposition{
				Kind: disposition.Custom,
				Handler: func(sig syscall.Signal) {
					fmt.Fprintf(os.Stderr, "%s caught signal %d.\n", name, sig)
				},
			})
		case strings.HasPrefix(arg, "fault="):
			d, err := time.ParseDuration(strings.TrimPrefix(arg, "fault="))
			if err != nil {
				fmt.Fprintf(os.Stderr, "bad argument %q: %v\n", arg, err)
				os.Exit(2)
			}
			faultAfter = d
			fault = true
		default:
			fmt.Fprintf(os.Stderr, "unknown argument %q\n", arg)
			os.Exit(2)
		}
	}

	fmt.Fprintf(os.Stderr, "%s started.\n", name)

	if fault {
		time.Sleep(faultAfter)
		if err := disposition.Raise(syscall.SIGSEGV); err != nil {
			fmt.Fprintf(os.Stderr, "cannot fault: %v\n", err)
			os.Exit(2)
		}
	}
	for {
		time.Sleep(time.Hour) // signals arrive asynchronously
	}
}
