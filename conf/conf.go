//go:build !windows

package conf

import (
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"
)

// MaxDepth is the capacity of the static backtrace buffer. Configured
// depths are clamped to it at parse time so the fault path never has to
// bounds-check.
const MaxDepth = 64

// Environment variables making up the attachment contract. EnvEnable is
// the master switch; the rest override individual settings.
const (
	EnvEnable = "SEGVCATCHER"
	EnvConfig = "SEGVCATCHER_CONFIG"
	EnvDelay  = "SEGVCATCHER_DELAY"
	EnvSignal = "SEGVCATCHER_SIGNAL"
	EnvDepth  = "SEGVCATCHER_DEPTH"
	EnvMode   = "SEGVCATCHER_MODE"
	EnvDebug  = "SEGVCATCHER_DEBUG"
)

// Watchdog modes.
const (
	// ModeFork runs the watchdog as a separate helper process. The
	// helper leaves a zombie behind; reaping it is the host's business.
	ModeFork = "fork"
	// ModeTimer runs the watchdog as an in-process timer goroutine. No
	// zombie is left behind, at the cost of the watchdog sharing the
	// host's fate.
	ModeTimer = "timer"
)

// Signal is an os.Signal that unmarshals from a symbolic name such as
// "sigusr2".
type Signal struct {
	os.Signal
}

func (s *Signal) UnmarshalText(text []byte) error {
	if sig, ok := knownSignals[string(text)]; ok {
		s.Signal = sig
		return nil
	}
	return fmt.Errorf("unknown signal: %s", text)
}

// Unix returns the wrapped signal as a syscall.Signal.
func (s Signal) Unix() syscall.Signal {
	return s.Signal.(syscall.Signal)
}

// Duration unmarshals from either a Go duration string ("500ms") or a
// bare integer meaning seconds, so "delay = 3" works the way one would
// guess.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	if secs, err := strconv.Atoi(string(text)); err == nil {
		d.Duration = time.Duration(secs) * time.Second
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", text, err)
	}
	d.Duration = dur
	return nil
}

// Config holds the tracer's tunables: the compile-time constants of the
// original design, made overridable per run.
type Config struct {
	Delay  Duration `toml:"delay"`
	Signal Signal   `toml:"signal"`
	Depth  int      `toml:"depth"`
	Mode   string   `toml:"mode"`
	Debug  bool     `toml:"debug"`
}

// Default returns the built-in configuration: a 3 second arming delay,
// SIGUSR2 as the handshake signal, 64 frames, fork-style watchdog.
func Default() *Config {
	return &Config{
		Delay:  Duration{3 * time.Second},
		Signal: Signal{syscall.SIGUSR2},
		Depth:  MaxDepth,
		Mode:   ModeFork,
	}
}

// Validate checks that c is a runnable configuration.
func Validate(c *Config) error {
	if c.Delay.Duration < 0 {
		return fmt.Errorf("delay must not be negative")
	}
	switch c.Signal.Unix() {
	case syscall.SIGKILL, syscall.SIGSTOP:
		return fmt.Errorf("signal %s cannot be caught", c.Signal)
	case syscall.SIGSEGV:
		return fmt.Errorf("the handshake signal cannot be the fault signal itself")
	}
	if c.Depth < 1 || c.Depth > MaxDepth {
		return fmt.Errorf("depth must be between 1 and %d, got %d", MaxDepth, c.Depth)
	}
	switch c.Mode {
	case ModeFork, ModeTimer:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	return nil
}

// FromEnv applies individual environment overrides to c. getenv is
// injectable for tests; pass os.Getenv otherwise.
func FromEnv(c *Config, getenv func(string) string) error {
	if v := getenv(EnvDelay); v != "" {
		if err := c.Delay.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s: %w", EnvDelay, err)
		}
	}
	if v := getenv(EnvSignal); v != "" {
		if err := c.Signal.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s: %w", EnvSignal, err)
		}
	}
	if v := getenv(EnvDepth); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: bad depth %q", EnvDepth, v)
		}
		c.Depth = n
	}
	if v := getenv(EnvMode); v != "" {
		c.Mode = v
	}
	if v := getenv(EnvDebug); v != "" {
		c.Debug = v != "0" && v != "false"
	}
	return Validate(c)
}

// Load assembles the effective configuration: defaults, then the TOML
// file named by SEGVCATCHER_CONFIG (if any), then individual environment
// overrides.
func Load() (*Config, error) {
	c := Default()
	if path := os.Getenv(EnvConfig); path != "" {
		text, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
		c, err = Parse(path, string(text))
		if err != nil {
			return nil, err
		}
	}
	if err := FromEnv(c, os.Getenv); err != nil {
		return nil, err
	}
	return c, nil
}

// Environ renders c as the environment variable contract understood by
// an attached binary, including the master switch.
func Environ(c *Config) []string {
	env := []string{
		EnvEnable + "=1",
		EnvDelay + "=" + c.Delay.Duration.String(),
		EnvSignal + "=" + signalName(c.Signal.Unix()),
		EnvDepth + "=" + strconv.Itoa(c.Depth),
		EnvMode + "=" + c.Mode,
	}
	if c.Debug {
		env = append(env, EnvDebug+"=1")
	}
	return env
}
