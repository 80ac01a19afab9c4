package config

import (
	"fmt"
	"strings"
)

// Level is the severity of a record. Levels are ordered; a record below
// a category's effective level is dropped before any I/O cost.
type Level int8

const (
	DebugLevel Level = iota
	InfoLevel
	WarningLevel
	ErrorLevel
	CriticalLevel
)

var levelNames = [...]string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}

// String returns the persisted spelling of the level.
func (l Level) String() string {
	if l < DebugLevel || l > CriticalLevel {
		return fmt.Sprintf("LEVEL(%d)", int8(l))
	}
	return levelNames[l]
}

// ParseLevel converts a level name (case-insensitive) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DebugLevel, nil
	case "INFO":
		return InfoLevel, nil
	case "WARNING", "WARN":
		return WarningLevel, nil
	case "ERROR":
		return ErrorLevel, nil
	case "CRITICAL", "FATAL":
		return CriticalLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// MarshalJSON encodes the level as its name.
func (l Level) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

// UnmarshalJSON decodes a level name.
func (l *Level) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// UnmarshalText lets envconfig decode levels from environment values.
func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// UnmarshalYAML lets goccy/go-yaml decode levels from config files.
func (l *Level) UnmarshalYAML(b []byte) error {
	return l.UnmarshalText([]byte(strings.Trim(string(b), `"'`)))
}

// MarshalYAML encodes the level as its name.
func (l Level) MarshalYAML() ([]byte, error) {
	return []byte(l.String()), nil
}
