package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Level is the severity of a CLI message
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

// Message is a multi-line CLI message with optional hints
type Message struct {
	Level       Level
	Context     string
	Problem     string
	Consequence string
	Suggestions []string
	Hints       []string
	NoColor     bool
}

// Format renders the message.
//
//	✗ UNKNOWN TENANT: studo
//	   Did you mean: studio?
//
//	   → List tenants: portal tenants
func (m Message) Format() string {
	var b strings.Builder

	var header, body *color.Color
	var symbol string
	switch m.Level {
	case LevelWarning:
		header = color.New(color.FgYellow, color.Bold)
		body = color.New(color.FgYellow)
		symbol = "!"
	case LevelInfo:
		header = color.New(color.FgCyan, color.Bold)
		body = color.New(color.FgCyan)
		symbol = "i"
	default:
		header = color.New(color.FgRed, color.Bold)
		body = color.New(color.FgRed)
		symbol = "✗"
	}
	hint := color.New(color.FgCyan)
	suggest := color.New(color.FgYellow)
	if m.NoColor {
		header.DisableColor()
		body.DisableColor()
		hint.DisableColor()
		suggest.DisableColor()
	}

	if m.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(m.Context), m.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, m.Problem)
	}

	if m.Consequence != "" {
		body.Fprintf(&b, "   %s\n", m.Consequence)
	}

	if len(m.Suggestions) > 0 {
		suggest.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(m.Suggestions, ", "))
	}

	if len(m.Hints) > 0 {
		b.WriteString("\n")
		for _, h := range m.Hints {
			hint.Fprintf(&b, "   → %s\n", h)
		}
	}

	return b.String()
}

// Write renders the message to w
func (m Message) Write(w io.Writer) {
	fmt.Fprint(w, m.Format())
}

// Success formats a one-line success message
func Success(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success line to w
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, Success(message, noColor))
}

// MigrationError describes a failed migration run; applied is how many
// migrations committed before the failure
func MigrationError(err error, applied int, noColor bool) Message {
	return Message{
		Level:       LevelError,
		Context:     "migration failed",
		Problem:     err.Error(),
		Consequence: fmt.Sprintf("%d migration(s) applied before the failure remain committed", applied),
		Hints:       []string{"Check status: portal migrate status"},
		NoColor:     noColor,
	}
}

// ConfigError describes an invalid or incomplete configuration
func ConfigError(err error, noColor bool) Message {
	return Message{
		Level:   LevelError,
		Context: "configuration error",
		Problem: err.Error(),
		Hints: []string{
			"Config is read from portal.yml and PORTAL_* environment variables",
			"Get help: portal --help",
		},
		NoColor: noColor,
	}
}

// UnknownTenantError reports a tenant slug that is not configured, with close matches
func UnknownTenantError(slug string, known []string, noColor bool) Message {
	return Message{
		Level:       LevelError,
		Context:     "unknown tenant",
		Problem:     slug,
		Suggestions: Suggest(slug, known, 0),
		Hints:       []string{"Configured tenants: " + strings.Join(known, ", ")},
		NoColor:     noColor,
	}
}
