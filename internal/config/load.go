package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load builds the configuration from defaults, the file at path (skipped
// when path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(NewEnvLoader(EnvPrefix)); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the settings present in a TOML or YAML file. Unknown
// keys are an error.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
		if err := dec.Decode(c); err != nil {
			pe := &ParseError{Path: path, Message: err.Error(), Err: err}
			var de *toml.DecodeError
			if errors.As(err, &de) {
				pe.Line, pe.Column = de.Position()
			}
			var se *toml.StrictMissingError
			if errors.As(err, &se) {
				pe.Message = strings.TrimSpace(se.String())
			}
			return pe
		}
	case ".yaml", ".yml":
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil {
			return &ParseError{Path: path, Message: err.Error(), Err: err}
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	return nil
}

// ApplyEnv overlays settings found by env. Variables that name no setting
// are ignored.
func (c *Config) ApplyEnv(env *EnvLoader) error {
	for path, value := range env.Load() {
		err := c.Set(path, value)
		if errors.Is(err, ErrSettingNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("environment: %w", err)
		}
	}
	return nil
}

// Set assigns a setting from its text form. Paths are section.key, as in
// "display.expandablePrimitives".
func (c *Config) Set(path, value string) error {
	switch path {
	case "log.level":
		c.Log.Level = strings.ToLower(value)
	case "log.format":
		c.Log.Format = strings.ToLower(value)
	case "log.file":
		c.Log.File = value
	case "server.transport":
		c.Server.Transport = strings.ToLower(value)
	case "server.listen":
		c.Server.Listen = value
	case "display.expandablePrimitives":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidValue, path, value)
		}
		c.Display.ExpandablePrimitives = b
	case "evaluation.localsTimeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidValue, path, value)
		}
		c.Evaluation.LocalsTimeout = Duration{d}
	case "backend.name":
		c.Backend.Name = value
	case "backend.scenario":
		c.Backend.Scenario = value
	default:
		return fmt.Errorf("%w: %s", ErrSettingNotFound, path)
	}
	return nil
}

// parseBool accepts the spellings the environment commonly uses.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}
