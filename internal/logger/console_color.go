package logger

import (
	"github.com/fatih/color"

	"github.com/harrison/ptw/internal/models"
)

// colorScheme keeps permit output colors consistent.
// Green: active or completed permits
// Red: rejected permits and blocking answers
// Yellow: permits waiting on a person
type colorScheme struct {
	success *color.Color
	fail    *color.Color
	warn    *color.Color
	label   *color.Color
}

func newColorScheme() *colorScheme {
	return &colorScheme{
		success: color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
		warn:    color.New(color.FgYellow),
		label:   color.New(color.FgCyan),
	}
}

// status returns the color for a lifecycle status.
func (s *colorScheme) status(st models.Status) *color.Color {
	switch st {
	case models.StatusActive, models.StatusCompleted:
		return s.success
	case models.StatusRejected:
		return s.fail
	case models.StatusPendingApproval, models.StatusPendingInspection:
		return s.warn
	default:
		return s.label
	}
}

func levelColor(level string) *color.Color {
	switch level {
	case "TRACE":
		return color.New(color.FgHiBlack)
	case "DEBUG":
		return color.New(color.FgCyan)
	case "INFO":
		return color.New(color.FgBlue)
	case "WARN":
		return color.New(color.FgYellow)
	case "ERROR":
		return color.New(color.FgRed)
	default:
		return color.New(color.Reset)
	}
}
