package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/Iron-Ham/vulntune/internal/event"
	"github.com/Iron-Ham/vulntune/internal/pipeline"
)

var (
	okColor     = lipgloss.Color("#10B981") // Green
	failColor   = lipgloss.Color("#F87171") // Red
	warnColor   = lipgloss.Color("#F59E0B") // Amber
	mutedColor  = lipgloss.Color("#9CA3AF") // Gray
	accentColor = lipgloss.Color("#A78BFA") // Purple
)

// printer renders human output. Colors and bold are dropped when the writer
// is not a terminal.
type printer struct {
	w      io.Writer
	ok     lipgloss.Style
	fail   lipgloss.Style
	warn   lipgloss.Style
	muted  lipgloss.Style
	accent lipgloss.Style
	title  lipgloss.Style
}

func newPrinter(w io.Writer) *printer {
	r := lipgloss.NewRenderer(w)
	tty := isTerminal(w)
	if !tty {
		r.SetColorProfile(termenv.Ascii)
	}
	return &printer{
		w:      w,
		ok:     r.NewStyle().Foreground(okColor),
		fail:   r.NewStyle().Foreground(failColor),
		warn:   r.NewStyle().Foreground(warnColor),
		muted:  r.NewStyle().Foreground(mutedColor),
		accent: r.NewStyle().Foreground(accentColor),
		title:  r.NewStyle().Bold(tty).Foreground(accentColor),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *printer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format, args...)
}

// attach renders progress for one run from bus events.
func (p *printer) attach(bus *event.Bus, runID string) {
	event.OnRun(bus, runID, func(ev event.PhaseStartedEvent) {
		p.printf("%s %s\n", p.muted.Render("•"), ev.Phase)
	})
	event.OnRun(bus, runID, func(ev event.PhaseCompletedEvent) {
		p.printf("%s %s %s %s\n", p.ok.Render("✓"), ev.Phase,
			p.muted.Render(ev.Output), p.muted.Render(formatDuration(ev.Duration)))
	})
	event.OnRun(bus, runID, func(ev event.PhaseFailedEvent) {
		p.printf("%s %s %s\n", p.fail.Render("✗"), ev.Phase, p.muted.Render(formatDuration(ev.Duration)))
	})
	event.OnRun(bus, runID, func(ev event.UploadDecidedEvent) {
		style := p.ok
		if ev.Mode != "REAL" {
			style = p.warn
		}
		p.printf("  upload %s %s\n", style.Render(ev.Mode), p.muted.Render("("+ev.Reason+")"))
	})
}

// report prints the end-of-run summary.
func (p *printer) report(r *pipeline.Report) {
	p.printf("%s %s run %s: %d phase(s) in %s\n",
		p.title.Render("vulntune"), r.Mode, r.RunID, len(r.Phases), formatDuration(r.Duration))
	if out := r.Output(); out != "" {
		p.printf("%s %s\n", p.muted.Render("output:"), out)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}

// table renders rows as left-aligned columns separated by two spaces.
func (p *printer) table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	line := func(cells []string, style lipgloss.Style) {
		parts := make([]string, len(cells))
		for i, c := range cells {
			if i == len(cells)-1 {
				parts[i] = c
				continue
			}
			parts[i] = c + strings.Repeat(" ", widths[i]-len(c))
		}
		p.printf("%s\n", style.Render(strings.Join(parts, "  ")))
	}
	line(header, p.title)
	for _, row := range rows {
		line(row, lipgloss.NewStyle())
	}
}
