// Package config resolves tether settings. Defaults cover the plain CI
// case; an optional YAML file overlays them for runners with different
// network or timing constraints.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tether-ci/tether/pkg/pathutil"
	"github.com/tether-ci/tether/pkg/state"
)

// EnvConfigPath names the environment variable consulted for a config file
// path when the --config flag is not given.
const EnvConfigPath = "TETHER_CONFIG"

// Duration wraps time.Duration so YAML values read as Go duration strings
// ("10m", "90s") rather than nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("failed to parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the tunables of the connection hold protocol.
type Config struct {
	// Host is the interface the notification server binds to. Connection
	// notifications come from the forwarded port on the same machine, so
	// this stays on loopback unless the runner says otherwise.
	Host string `yaml:"host"`

	// Port is the TCP port for connection notifications.
	Port int `yaml:"port"`

	// PreConnectTimeout bounds the wait for the first connection.
	PreConnectTimeout Duration `yaml:"pre_connect_timeout"`

	// ReconnectTimeout bounds the wait once a connection has been seen.
	// Wider than PreConnectTimeout so a dropped session can come back.
	ReconnectTimeout Duration `yaml:"reconnect_timeout"`

	// WatchInterval is how often the hold checks its deadline and reports
	// time since the last keep-alive.
	WatchInterval Duration `yaml:"watch_interval"`

	// KeepAliveInterval is how often an attached client sends keep-alives.
	KeepAliveInterval Duration `yaml:"keep_alive_interval"`

	// DialTimeout bounds a single client dial to the hold server.
	DialTimeout Duration `yaml:"dial_timeout"`

	// StateDir is where execution state files live. A leading "~" or
	// "$HOME" expands to the user's home directory.
	StateDir string `yaml:"state_dir"`

	// EnvDenylist lists additional environment variables excluded from
	// saved and reported environments, on top of the built-in denylist
	// and TETHER_ENV_VARS_DENYLIST.
	EnvDenylist []string `yaml:"env_denylist"`
}

// Default returns the canonical settings.
func Default() Config {
	return Config{
		Host:              "127.0.0.1",
		Port:              12455,
		PreConnectTimeout: Duration(10 * time.Minute),
		ReconnectTimeout:  Duration(15 * time.Minute),
		WatchInterval:     Duration(60 * time.Second),
		KeepAliveInterval: Duration(30 * time.Second),
		DialTimeout:       Duration(5 * time.Second),
		StateDir:          filepath.Join("~", state.DefaultDirName),
	}
}

// Load returns the effective configuration: Default overlaid with the YAML
// file at path when given, else with $TETHER_CONFIG when set. An empty
// file keeps the defaults. Unknown keys are rejected so a typo cannot
// silently fall back to a default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the settings describe a workable hold.
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	for _, d := range []struct {
		name  string
		value Duration
	}{
		{"pre_connect_timeout", c.PreConnectTimeout},
		{"reconnect_timeout", c.ReconnectTimeout},
		{"watch_interval", c.WatchInterval},
		{"keep_alive_interval", c.KeepAliveInterval},
		{"dial_timeout", c.DialTimeout},
	} {
		if d.value.Std() <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}
	if c.StateDir == "" {
		return errors.New("state_dir is required")
	}
	return nil
}

// Addr returns the host:port the notification server listens on.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ResolveStateDir expands StateDir to an absolute-ish path the state store
// can use.
func (c Config) ResolveStateDir() (string, error) {
	dir, err := pathutil.ExpandHome(c.StateDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve state_dir %s: %w", c.StateDir, err)
	}
	return dir, nil
}
