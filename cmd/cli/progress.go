package cli

import (
	"fmt"
	"io"

	"github.com/anstrom/portsweep/internal/scanning"
)

// progressPrinter writes session events to a terminal. Progress is drawn
// on one line that is rewritten in place; other lines break it first.
type progressPrinter struct {
	out      io.Writer
	quiet    bool
	percent  int
	dangling bool
}

func newProgressPrinter(out io.Writer, quiet bool) *progressPrinter {
	return &progressPrinter{out: out, quiet: quiet, percent: -1}
}

func (p *progressPrinter) handle(ev scanning.Event) {
	switch ev.Kind {
	case scanning.EventOSGuessed:
		p.line("OS guess: %s", ev.OSGuess)
	case scanning.EventOpenPort:
		if ev.Record != nil {
			p.line("Port %d OPEN | Banner: %s", ev.Record.Port, ev.Record.Banner)
		}
	case scanning.EventProgress:
		p.progress(ev.Completed, ev.Total)
	case scanning.EventScanComplete:
		if ev.State == scanning.StateCanceled {
			p.line("Scan canceled")
		}
	}
}

func (p *progressPrinter) line(format string, args ...any) {
	p.breakLine()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *progressPrinter) progress(completed, total int) {
	if p.quiet || total == 0 {
		return
	}
	percent := completed * 100 / total
	if percent == p.percent {
		return
	}
	p.percent = percent
	fmt.Fprintf(p.out, "\rProgress: %d/%d (%d%%)", completed, total, percent)
	p.dangling = true
}

func (p *progressPrinter) breakLine() {
	if p.dangling {
		fmt.Fprintln(p.out)
		p.dangling = false
	}
}

// finish ends a dangling progress line.
func (p *progressPrinter) finish() {
	p.breakLine()
}
