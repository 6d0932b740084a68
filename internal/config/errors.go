package config

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownFormat is returned for a file that is not .toml, .yaml or .yml.
	ErrUnknownFormat = errors.New("unknown config format")

	// ErrInvalidValue is returned for a setting outside its allowed values.
	ErrInvalidValue = errors.New("invalid value")

	// ErrSettingNotFound is returned by Set for a path that names no setting.
	ErrSettingNotFound = errors.New("setting not found")
)

// ParseError reports a config file that could not be decoded. Line and
// Column are zero when the decoder gave no position.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("parse error in %s at line %d: %s", e.Path, e.Line, e.Message)
	default:
		return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }
