package logging

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/arenalab/tracekit/internal/config"
	"github.com/arenalab/tracekit/internal/trace"
)

// Exception captures a failure attached to an ERROR record.
type Exception struct {
	Type      string   `json:"type"`
	Message   string   `json:"message"`
	Traceback []string `json:"traceback,omitempty"`
}

// Record is one persisted event. Records are append-only and never
// mutated after emission; Context is a snapshot taken at emit time.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     config.Level   `json:"level"`
	Category  string         `json:"category,omitempty"`
	Component string         `json:"component"`
	Event     string         `json:"event"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	Context   *trace.Context `json:"context"`
	Exception *Exception     `json:"exception,omitempty"`

	// Extra carries caller-supplied top-level fields as an explicit
	// open map rather than flattened attributes.
	Extra map[string]any `json:"extra,omitempty"`
}

// newException builds the exception payload for err, including the
// capture-site stack. A nil err yields nil: emitting an exception
// record with no failure in flight is not an error.
func newException(err error) *Exception {
	if err == nil {
		return nil
	}
	return &Exception{
		Type:      ErrorType(err),
		Message:   err.Error(),
		Traceback: strings.Split(strings.TrimRight(string(debug.Stack()), "\n"), "\n"),
	}
}

// ErrorType reports the concrete type name of err without package
// qualifier or pointer marker, e.g. "ValueError" for *pkg.ValueError.
func ErrorType(err error) string {
	name := fmt.Sprintf("%T", err)
	name = strings.TrimLeft(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
