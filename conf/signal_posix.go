//go:build !windows
// +build !windows

package conf

import (
	"os"
	"sort"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// Signals accepted as a handshake channel. SIGSYS is the signal
// historically aliased as SIGUNUSED; SIGKILL and SIGSTOP are listed for
// name resolution but rejected by validation.
var knownSignals = map[string]os.Signal{
	"sighup":   syscall.SIGHUP,
	"sigterm":  syscall.SIGTERM,
	"sigint":   syscall.SIGINT,
	"sigkill":  syscall.SIGKILL,
	"sigquit":  syscall.SIGQUIT,
	"sigsys":   syscall.SIGSYS,
	"sigusr1":  syscall.SIGUSR1,
	"sigusr2":  syscall.SIGUSR2,
	"sigwinch": syscall.SIGWINCH,
}

func signalName(sig syscall.Signal) string {
	for name, s := range knownSignals {
		if s == sig {
			return name
		}
	}
	return strings.ToLower(unix.SignalName(sig))
}

// SignalNames lists the symbolic names accepted for the handshake
// signal, sorted.
func SignalNames() []string {
	names := make([]string, 0, len(knownSignals))
	for name := range knownSignals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
