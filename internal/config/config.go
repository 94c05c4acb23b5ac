// Package config loads the daemon and CLI's TOML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so TOML values like "30s" or "5m" parse via
// time.ParseDuration instead of the integer-nanosecond default encoding.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// Monitor holds C4's tunables.
type Monitor struct {
	Interval        Duration `toml:"interval"`
	WorkerPoolSize  int      `toml:"worker_pool_size"`
	IdleCycles      int      `toml:"idle_cycles"`
	IdleSeconds     int      `toml:"idle_seconds"`
	WatchdogFactor  int      `toml:"watchdog_factor"`
	ShutdownDrain   Duration `toml:"shutdown_drain"`
}

// Cache holds C2's tunables.
type Cache struct {
	TTL         Duration `toml:"ttl"`
	ExtendedTTL Duration `toml:"extended_ttl"`
}

// Messaging holds C5's tunables.
type Messaging struct {
	StepDelay Duration `toml:"step_delay"`
}

// Config is the root configuration object, loaded from a single TOML file.
type Config struct {
	StateDir  string    `toml:"state_dir"`
	Monitor   Monitor   `toml:"monitor"`
	Cache     Cache     `toml:"cache"`
	Messaging Messaging `toml:"messaging"`
}

// Default returns the configuration's baked-in defaults (§4.4, §4.2, §4.5).
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		StateDir: home + "/.tmux-orchestrator",
		Monitor: Monitor{
			Interval:       Duration{30 * time.Second},
			WorkerPoolSize: 10,
			IdleCycles:     3,
			IdleSeconds:    120,
			WatchdogFactor: 4,
			ShutdownDrain:  Duration{10 * time.Second},
		},
		Cache: Cache{
			TTL:         Duration{5 * time.Second},
			ExtendedTTL: Duration{10 * time.Second},
		},
		Messaging: Messaging{
			StepDelay: Duration{500 * time.Millisecond},
		},
	}
}

// Load reads a TOML file at path, layering its values over Default(). A
// missing file is not an error — callers get the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	if cfg.Monitor.Interval.Duration < 5*time.Second {
		return Config{}, fmt.Errorf("config: monitor.interval must be at least 5s, got %s", cfg.Monitor.Interval.Duration)
	}
	return cfg, nil
}

// DebugEnabled reports whether TMUX_ORC_DEBUG is set to a truthy value.
func DebugEnabled() bool {
	v := os.Getenv("TMUX_ORC_DEBUG")
	switch v {
	case "", "0", "false", "False", "FALSE":
		return false
	default:
		return true
	}
}
