package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedSeverity is returned for severities outside the known range.
var ErrUnsupportedSeverity = errors.New("unsupported severity")

// Severity classifies a log event.
type Severity uint8

const (
	Info Severity = iota
	Warning
	Error
	Exception
	// Assert only occurs on input; it is recorded as Exception.
	Assert
)

var severityNames = [...]string{"Info", "Warning", "Error", "Exception", "Assert"}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return fmt.Sprintf("Severity(%d)", uint8(s))
}

// Valid reports whether s is a known severity, Assert included.
func (s Severity) Valid() bool { return s <= Assert }

// Normalize maps Assert to Exception and validates the value.
func (s Severity) Normalize() (Severity, error) {
	switch {
	case s == Assert:
		return Exception, nil
	case s.Valid():
		return s, nil
	default:
		return s, fmt.Errorf("%w: %d", ErrUnsupportedSeverity, uint8(s))
	}
}

// ParseSeverity converts a level name ("info", "warn", "error", ...) to a
// Severity. Matching is case-insensitive.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info", "log", "debug", "trace":
		return Info, nil
	case "warn", "warning":
		return Warning, nil
	case "err", "error":
		return Error, nil
	case "exception", "fatal", "panic":
		return Exception, nil
	case "assert":
		return Assert, nil
	default:
		return Info, fmt.Errorf("%w: %q", ErrUnsupportedSeverity, s)
	}
}

// Filter is a bitmask of accepted severities.
type Filter uint8

const (
	FilterInfo Filter = 1 << iota
	FilterWarning
	FilterError
	FilterException

	FilterNone Filter = 0
	FilterAll         = FilterInfo | FilterWarning | FilterError | FilterException
)

// Allows reports whether events of severity s pass the filter. Assert is
// checked as Exception.
func (f Filter) Allows(s Severity) bool {
	if s == Assert {
		s = Exception
	}
	if s > Exception {
		return false
	}
	return f&(1<<s) != 0
}

// ParseFilter parses a comma-separated list of severity names, or "all" /
// "none".
func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return FilterAll, nil
	case "none":
		return FilterNone, nil
	}
	var f Filter
	for _, part := range strings.Split(s, ",") {
		sev, err := ParseSeverity(part)
		if err != nil {
			return FilterNone, err
		}
		sev, _ = sev.Normalize()
		f |= 1 << sev
	}
	return f, nil
}

func (f Filter) String() string {
	if f == FilterAll {
		return "all"
	}
	var parts []string
	for s := Info; s <= Exception; s++ {
		if f.Allows(s) {
			parts = append(parts, strings.ToLower(s.String()))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}
