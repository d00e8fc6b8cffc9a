//go:build !windows

package conf

import (
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
	"golang.org/x/exp/maps"
)

// Parse parses TOML configuration text and returns a validated Config.
// Settings absent from the file keep their defaults; unknown keys are an
// error rather than a silent no-op, since a misspelled "delay" would
// otherwise just leave the tracer racing the host.
func Parse(name string, text string) (*Config, error) {
	c := Default()

	meta, err := toml.Decode(text, c)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", name, err)
	}
	undecodedKeys := map[string]bool{}
	for _, k := range meta.Undecoded() {
		undecodedKeys[k.String()] = true
	}
	if len(undecodedKeys) > 0 {
		ks := maps.Keys(undecodedKeys)
		sort.Strings(ks)
		return nil, fmt.Errorf("unexpected keys in config %q: %v", name, ks)
	}
	if err := Validate(c); err != nil {
		return nil, fmt.Errorf("bad config %q: %w", name, err)
	}
	return c, nil
}
