package sources

import (
	"github.com/rs/zerolog"

	"github.com/crimson-sun/logbook/internal/model"
)

// Hook is a zerolog hook that records the process's own log messages.
type Hook struct {
	c   Capturer
	min zerolog.Level
}

// NewHook captures messages at or above min into c.
func NewHook(c Capturer, min zerolog.Level) *Hook {
	return &Hook{c: c, min: min}
}

// Run implements zerolog.Hook.
func (h *Hook) Run(_ *zerolog.Event, level zerolog.Level, msg string) {
	if level < h.min || level == zerolog.NoLevel || msg == "" {
		return
	}
	_ = h.c.Capture(msg, "", SeverityForLevel(level))
}

// SeverityForLevel maps a zerolog level to a Severity.
func SeverityForLevel(level zerolog.Level) model.Severity {
	switch level {
	case zerolog.WarnLevel:
		return model.Warning
	case zerolog.ErrorLevel:
		return model.Error
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return model.Exception
	default:
		return model.Info
	}
}
