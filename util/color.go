package util

import (
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Colorizer manages colored CLI output.
type Colorizer struct {
	Enabled bool
}

// NewColorizer creates a Colorizer. When forceEnabled is false, colors are enabled only if
// stderr is a terminal.
func NewColorizer(forceEnabled bool) *Colorizer {
	enabled := forceEnabled
	if !enabled {
		enabled = IsTerminal(os.Stderr)
	}
	return &Colorizer{Enabled: enabled}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

func (c *Colorizer) apply(attrs []color.Attribute, text string) string {
	if c == nil || !c.Enabled {
		return text
	}
	p := color.New(attrs...)
	// fatih/color disables itself when stdout is not a tty; the caller already decided
	p.EnableColor()
	return p.Sprint(text)
}

func (c *Colorizer) Cyan(text string) string   { return c.apply([]color.Attribute{color.FgCyan}, text) }
func (c *Colorizer) Green(text string) string  { return c.apply([]color.Attribute{color.FgGreen}, text) }
func (c *Colorizer) Blue(text string) string   { return c.apply([]color.Attribute{color.FgBlue}, text) }
func (c *Colorizer) Yellow(text string) string { return c.apply([]color.Attribute{color.FgYellow}, text) }
func (c *Colorizer) Red(text string) string    { return c.apply([]color.Attribute{color.FgRed}, text) }
func (c *Colorizer) Dim(text string) string    { return c.apply([]color.Attribute{color.Faint}, text) }

// Bold renders text bold.
func (c *Colorizer) Bold(text string) string {
	return c.apply([]color.Attribute{color.Bold}, text)
}
