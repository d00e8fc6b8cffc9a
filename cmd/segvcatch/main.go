//go:build !windows

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cortesi/termlog"
	"github.com/spf13/pflag"

	"github.com/estar/segvcatcher"
	"github.com/estar/segvcatcher/conf"
)

func main() {
	delay := pflag.DurationP("delay", "d", 0, "Arming delay before the handshake")
	sigName := pflag.StringP("signal", "s", "", "Handshake signal name")
	depth := pflag.Int("depth", 0, "Maximum backtrace frames")
	timer := pflag.Bool("timer", false, "Use an in-process timer instead of a watchdog process")
	debug := pflag.Bool("debug", false, "Debugging output for the tracer itself")
	listSignals := pflag.Bool("print-signals", false, "List accepted handshake signal names and exit")
	version := pflag.Bool("version", false, "Show application version")

	pflag.Parse()

	if *version {
		fmt.Println(segvcatcher.Version)
		os.Exit(0)
	}

	if *listSignals {
		for _, name := range conf.SignalNames() {
			fmt.Println(name)
		}
		os.Exit(0)
	}

	log := termlog.NewLog()
	if *debug {
		log.Enable("debug")
	}

	cnf, err := conf.Load()
	if err != nil {
		log.Shout("%s", err)
		os.Exit(1)
	}
	if *delay != 0 {
		cnf.Delay = conf.Duration{Duration: *delay}
	}
	if *sigName != "" {
		if err := cnf.Signal.UnmarshalText([]byte(*sigName)); err != nil {
			log.Shout("%s", err)
			os.Exit(1)
		}
	}
	if *depth != 0 {
		cnf.Depth = *depth
	}
	if *timer {
		cnf.Mode = conf.ModeTimer
	}
	cnf.Debug = *debug
	if err := conf.Validate(cnf); err != nil {
		log.Shout("%s", err)
		os.Exit(1)
	}

	args := pflag.Args()
	if len(args) == 0 {
		log.Shout("usage: segvcatch [flags] command [args...]\n" +
			"The command must link in the segvcatcher package.")
		os.Exit(1)
	}

	start := time.Now()
	status, err := segvcatcher.NewRunner(cnf, log).Run(args)
	if err != nil {
		log.Shout("%s", err)
		os.Exit(1)
	}
	log.SayAs("debug", ">> exited %d after %s", status, time.Since(start))
	os.Exit(status)
}
