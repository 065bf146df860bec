// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/555Russich/18.fl-auto-response/internal/classify"
	"github.com/555Russich/18.fl-auto-response/internal/pipeline"
	"github.com/555Russich/18.fl-auto-response/internal/process"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxTextWidth bounds quoted record text inside a box
	maxTextWidth = 50
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

// PrintDecision outputs the classification of a subject and aim.
func (p *Printer) PrintDecision(subject, aim string, d classify.Decision) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Subject:  %s\n", truncate(subject, maxTextWidth))
	fmt.Fprintf(&sb, "Aim:      %s\n", truncate(aim, maxTextWidth))
	sb.WriteString("\n")
	if d.Eligible {
		sb.WriteString("✓ eligible, a response would be sent")
	} else {
		fmt.Fprintf(&sb, "✗ excluded by %q", truncate(d.Reason, maxTextWidth-14))
	}
	p.printBox("CLASSIFICATION", sb.String())
}

// PrintOutcome outputs a one-line summary of a processed record.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintOutcome(out process.Outcome) {
	marker := "•"
	switch out.Status {
	case process.Acted:
		marker = "✓"
	case process.Failed:
		marker = "⚠"
	}
	line := fmt.Sprintf("%s %-8s %s", marker, out.Status, out.ID)
	if out.Reason != "" {
		line += "  " + out.Reason
	}
	if out.Persisted {
		line += "  [saved]"
	}
	fmt.Fprintln(p.out, truncate(line, boxWidth*2))
}

// PrintEvent outputs a progress event: session events as boxes, record events as lines.
func (p *Printer) PrintEvent(ev pipeline.ProgressEvent) {
	if out, ok := ev.Content.(process.Outcome); ok && ev.Category == pipeline.CategoryRecord {
		p.PrintOutcome(out)
		return
	}

	var sb strings.Builder
	if ev.SessionID != "" {
		fmt.Fprintf(&sb, "Session:  %s\n", ev.SessionID)
	}
	sb.WriteString(ev.Message)
	p.printBox(strings.ToUpper(ev.Category+" "+ev.Step), sb.String())
}

// PrintSeen outputs whether a record id is in the store.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintSeen(id string, seen bool) {
	if seen {
		fmt.Fprintf(p.out, "%s: seen\n", id)
		return
	}
	fmt.Fprintf(p.out, "%s: not seen\n", id)
}
