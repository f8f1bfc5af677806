// Package console prints operator-facing progress and instructions.
// Styling is dropped automatically when the writer is not a terminal.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Printer writes styled lines to a single writer.
type Printer struct {
	w     io.Writer
	step  lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	fail  lipgloss.Style
	title lipgloss.Style
	faint lipgloss.Style
}

// New returns a Printer bound to w.
func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:     w,
		step:  r.NewStyle().Foreground(lipgloss.Color("12")),
		ok:    r.NewStyle().Foreground(lipgloss.Color("10")),
		warn:  r.NewStyle().Foreground(lipgloss.Color("11")),
		fail:  r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		title: r.NewStyle().Bold(true),
		faint: r.NewStyle().Faint(true),
	}
}

// Writer exposes the underlying writer.
func (p *Printer) Writer() io.Writer { return p.w }

func (p *Printer) Title(format string, a ...any) {
	fmt.Fprintln(p.w, p.title.Render(fmt.Sprintf(format, a...)))
}

func (p *Printer) Step(format string, a ...any) {
	fmt.Fprintln(p.w, p.step.Render("→ "+fmt.Sprintf(format, a...)))
}

func (p *Printer) OK(format string, a ...any) {
	fmt.Fprintln(p.w, p.ok.Render("✓ "+fmt.Sprintf(format, a...)))
}

func (p *Printer) Warn(format string, a ...any) {
	fmt.Fprintln(p.w, p.warn.Render("! "+fmt.Sprintf(format, a...)))
}

func (p *Printer) Fail(format string, a ...any) {
	fmt.Fprintln(p.w, p.fail.Render("✗ "+fmt.Sprintf(format, a...)))
}

// Line prints unstyled text.
func (p *Printer) Line(format string, a ...any) {
	fmt.Fprintln(p.w, fmt.Sprintf(format, a...))
}

// Numbered prints an ordered list of instructions.
func (p *Printer) Numbered(items ...string) {
	for i, it := range items {
		fmt.Fprintf(p.w, "  %d. %s\n", i+1, it)
	}
}

// Block prints body verbatim between rule lines so it can be copied as is.
func (p *Printer) Block(label, body string) {
	rule := strings.Repeat("─", 60)
	fmt.Fprintln(p.w, p.faint.Render(rule+" "+label))
	fmt.Fprint(p.w, body)
	if !strings.HasSuffix(body, "\n") {
		fmt.Fprintln(p.w)
	}
	fmt.Fprintln(p.w, p.faint.Render(rule))
}
