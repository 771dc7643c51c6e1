package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements in the output
type ColorScheme struct {
	Title   *color.Color
	Label   *color.Color
	Value   *color.Color
	Dim     *color.Color
	Success *color.Color
	Warn    *color.Color
	Error   *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:   color.New(color.FgCyan, color.Bold),
		Label:   color.New(color.Bold),
		Value:   color.New(color.FgCyan),
		Dim:     color.New(color.Faint),
		Success: color.New(color.FgGreen),
		Warn:    color.New(color.FgYellow),
		Error:   color.New(color.FgRed, color.Bold),
	}
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range []*color.Color{
		scheme.Title, scheme.Label, scheme.Value, scheme.Dim,
		scheme.Success, scheme.Warn, scheme.Error,
	} {
		c.DisableColor()
	}
	return scheme
}

// EnableColors forces colors on, even when the writer is not a terminal.
func (s *ColorScheme) EnableColors() {
	for _, c := range []*color.Color{s.Title, s.Label, s.Value, s.Dim, s.Success, s.Warn, s.Error} {
		c.EnableColor()
	}
}

// rateColor picks a color for a failure fraction.
func (s *ColorScheme) rateColor(rate float64) *color.Color {
	switch {
	case rate > 0.05:
		return s.Error
	case rate > 0.01:
		return s.Warn
	default:
		return s.Success
	}
}
