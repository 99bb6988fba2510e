// Package progress renders a single-line step bar for long-running denoise
// loops on a terminal. Output degrades to plain step lines when stdout is
// not a terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Bar tracks completed steps out of a total and repaints itself in place.
type Bar struct {
	w       io.Writer
	label   string
	total   int
	current int
	started time.Time
	tty     bool
}

// NewBar creates a bar labeled with a short description of the work.
func NewBar(label string, total int) *Bar {
	tty := false
	if f, ok := any(os.Stdout).(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	return &Bar{w: os.Stdout, label: label, total: total, started: time.Now(), tty: tty}
}

// Set advances the bar to step n and repaints.
func (b *Bar) Set(n int) {
	b.current = n
	if !b.tty {
		fmt.Fprintf(b.w, "%s: step %d/%d\n", b.label, n, b.total)
		return
	}
	fmt.Fprint(b.w, "\r"+b.render())
}

// Stop finishes the line.
func (b *Bar) Stop() {
	if b.tty {
		fmt.Fprintln(b.w)
	}
	fmt.Fprintf(b.w, "%s: %d steps in %s\n", b.label, b.total, time.Since(b.started).Round(time.Millisecond))
}

func (b *Bar) render() string {
	width := 80
	if f, ok := b.w.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			width = w
		}
	}

	counter := fmt.Sprintf(" %d/%d", b.current, b.total)
	label := runewidth.Truncate(b.label, width/3, "…")

	barWidth := width - runewidth.StringWidth(label) - runewidth.StringWidth(counter) - 4
	if barWidth < 4 {
		return label + counter
	}
	filled := 0
	if b.total > 0 {
		filled = barWidth * b.current / b.total
	}
	return fmt.Sprintf("%s [%s%s]%s",
		label,
		strings.Repeat("#", filled),
		strings.Repeat(" ", barWidth-filled),
		counter)
}
