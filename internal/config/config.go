// Package config provides configuration for droidbug.
//
// Values are layered: built-in defaults, then a TOML or YAML file chosen by
// extension, then environment variables with the DROIDBUG_ prefix. Command
// line flags are applied on top by the caller. A Watcher reloads the file
// when it changes so display settings take effect in running sessions, and
// reapplies the flags through WithOverlay.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration.
type Config struct {
	Log        LogConfig        `toml:"log" yaml:"log"`
	Server     ServerConfig     `toml:"server" yaml:"server"`
	Display    DisplayConfig    `toml:"display" yaml:"display"`
	Evaluation EvaluationConfig `toml:"evaluation" yaml:"evaluation"`
	Backend    BackendConfig    `toml:"backend" yaml:"backend"`
}

// LogConfig configures the adapter's own log.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" yaml:"level"`

	// Format is json or console.
	Format string `toml:"format" yaml:"format"`

	// File receives the log. Empty means stderr.
	File string `toml:"file" yaml:"file"`
}

// ServerConfig selects how clients connect.
type ServerConfig struct {
	// Transport is stdio, tcp or websocket.
	Transport string `toml:"transport" yaml:"transport"`

	// Listen is the address for the tcp and websocket transports.
	Listen string `toml:"listen" yaml:"listen"`
}

// DisplayConfig controls value presentation.
type DisplayConfig struct {
	ExpandablePrimitives bool `toml:"expandablePrimitives" yaml:"expandablePrimitives"`
}

// EvaluationConfig controls the evaluation queue.
type EvaluationConfig struct {
	// LocalsTimeout bounds how long an evaluation waits for frame locals.
	// Zero waits indefinitely.
	LocalsTimeout Duration `toml:"localsTimeout" yaml:"localsTimeout"`
}

// BackendConfig selects the debugger implementation.
type BackendConfig struct {
	// Name is the backend; only "sim" is built in.
	Name string `toml:"name" yaml:"name"`

	// Scenario is the scenario file of the sim backend.
	Scenario string `toml:"scenario" yaml:"scenario"`
}

// Transports.
const (
	TransportStdio     = "stdio"
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Transport: TransportStdio,
			Listen:    "127.0.0.1:4711",
		},
		Backend: BackendConfig{
			Name: "sim",
		},
	}
}

// Validate checks that every setting has an allowed value.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalidValue, c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalidValue, c.Log.Format)
	}
	switch c.Server.Transport {
	case TransportStdio:
	case TransportTCP, TransportWebSocket:
		if c.Server.Listen == "" {
			return fmt.Errorf("%w: server.listen is required for %s", ErrInvalidValue, c.Server.Transport)
		}
	default:
		return fmt.Errorf("%w: server.transport %q", ErrInvalidValue, c.Server.Transport)
	}
	if c.Evaluation.LocalsTimeout.Duration < 0 {
		return fmt.Errorf("%w: evaluation.localsTimeout is negative", ErrInvalidValue)
	}
	if c.Backend.Name != "sim" {
		return fmt.Errorf("%w: backend.name %q", ErrInvalidValue, c.Backend.Name)
	}
	return nil
}

// Duration is a time.Duration written as text, e.g. "1.5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	return d.UnmarshalText([]byte(n.Value))
}
