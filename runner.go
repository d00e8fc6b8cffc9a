//go:build !windows

package segvcatcher

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"github.com/cortesi/termlog"

	"github.com/estar/segvcatcher/conf"
)

// Runner launches a target command with tracing switched on: the Go
// stand-in for `LD_PRELOAD=libtracesegv.so /your/binary`. The target
// must link in this package; the runner supplies the environment that
// activates it. The child's stderr passes through untouched, since that
// is the tracer's diagnostic channel; stdout is relayed line by line
// through the log.
type Runner struct {
	Log    termlog.TermLog
	Config *conf.Config
}

// NewRunner constructs a Runner for the given configuration.
func NewRunner(cnf *conf.Config, log termlog.TermLog) *Runner {
	return &Runner{Log: log, Config: cnf}
}

// Run executes argv and blocks until it exits. It returns the exit
// status a shell would report: the child's own status, or 128+signal if
// the child died of a signal.
func (r *Runner) Run(argv []string) (int, error) {
	if len(argv) == 0 {
		return 0, fmt.Errorf("no command given")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), conf.Environ(r.Config)...)
	cmd.Stdin = os.Stdin
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, err
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("error starting %q: %w", argv[0], err)
	}
	r.Log.SayAs("debug", "running %v traced, pid %d", argv, cmd.Process.Pid)

	// Pass interrupts through to the target rather than dying out from
	// under it.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigc)
	go func() {
		for sig := range sigc {
			cmd.Process.Signal(sig)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go relayOutput(&wg, stdout, r.Log.Say)
	wg.Wait()

	err = cmd.Wait()
	var eerr *exec.ExitError
	if errors.As(err, &eerr) {
		if ws, ok := eerr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal()), nil
		}
		return eerr.ExitCode(), nil
	}
	if err != nil {
		return 0, err
	}
	return 0, nil
}

func relayOutput(wg *sync.WaitGroup, fp io.ReadCloser, out func(string, ...interface{})) {
	defer wg.Done()
	r := bufio.NewReader(fp)
	for {
		line, _, err := r.ReadLine()
		if err != nil {
			return
		}
		out("%s", string(line))
	}
}
