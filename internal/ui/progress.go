package ui

import (
	"fmt"
	"io"

	"github.com/desertthunder/playgen/internal/tasks"
)

// Printer writes progress updates as styled lines.
type Printer struct {
	out     io.Writer
	palette *Palette
	verbose bool
}

// NewPrinter creates a printer. With verbose unset only phase starts and failures are shown.
func NewPrinter(out io.Writer, palette *Palette, verbose bool) *Printer {
	if palette == nil {
		palette = DefaultPalette
	}
	return &Printer{out: out, palette: palette, verbose: verbose}
}

// Consume prints updates until the channel is closed.
func (p *Printer) Consume(updates <-chan tasks.ProgressUpdate) {
	for u := range updates {
		p.Print(u)
	}
}

// Print writes one update.
func (p *Printer) Print(u tasks.ProgressUpdate) {
	line, ok := p.Format(u)
	if !ok {
		return
	}
	fmt.Fprintln(p.out, line)
}

// Format renders an update, reporting false when it should be hidden.
func (p *Printer) Format(u tasks.ProgressUpdate) (string, bool) {
	if o, isOutcome := u.Data.(tasks.Outcome); isOutcome {
		switch {
		case o.Resolved():
			if !p.verbose {
				return "", false
			}
			return p.palette.OK("  " + u.Message), true
		case o.TimedOut, o.Err != nil:
			return p.palette.Err("  " + u.Message), true
		default:
			return p.palette.Warn("  " + u.Message), true
		}
	}

	if u.Step == 0 || u.Step == u.Total || p.verbose {
		return p.palette.Help("→ ") + u.Message, true
	}
	return "", false
}
