package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/sitecrawl/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose adds images and keywords to each page entry.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	w.writePages(&sb, report)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

// WriteDiff outputs the run diff in human-readable format.
func (w *SimpleWriter) WriteDiff(diff model.RunDiff) (int, error) {
	var sb strings.Builder

	sb.WriteString(rule("="))
	sb.WriteString("                           RUN COMPARISON\n")
	sb.WriteString(rule("="))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Old run: %s\n", diff.OldID)
	fmt.Fprintf(&sb, "New run: %s\n\n", diff.NewID)

	if diff.Empty() {
		sb.WriteString("No changes detected.\n")
		return io.WriteString(w.output, sb.String())
	}

	writeList(&sb, "ADDED", "+", diff.Added)
	writeList(&sb, "REMOVED", "-", diff.Removed)
	if len(diff.StatusChanged) > 0 {
		sb.WriteString("STATUS CHANGED\n")
		for _, c := range diff.StatusChanged {
			fmt.Fprintf(&sb, "  ~ %s (%s -> %s)\n", c.URL, statusText(c.Old), statusText(c.New))
		}
		sb.WriteString("\n")
	}
	writeList(&sb, "CONTENT CHANGED", "*", diff.ContentChanged)

	return io.WriteString(w.output, sb.String())
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString("\n")
	sb.WriteString(rule("="))
	sb.WriteString("                          SITECRAWL REPORT\n")
	sb.WriteString(rule("="))
	sb.WriteString("\n")

	fmt.Fprintf(sb, "Seed:      %s\n", report.Seed)
	if report.ID != "" {
		fmt.Fprintf(sb, "Run:       %s\n", report.ID)
	}
	fmt.Fprintf(sb, "Started:   %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:  %s\n", report.Duration().Round(time.Millisecond))
	if report.Budget > 0 {
		fmt.Fprintf(sb, "Budget:    %d\n", report.Budget)
	} else {
		sb.WriteString("Budget:    unbounded\n")
	}
	fmt.Fprintf(sb, "Scope:     %s\n", report.Scope)
	fmt.Fprintf(sb, "Status:    %s\n", stateText(report))
	sb.WriteString("\n")
}

// writeSummary writes the page counters.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.CrawlReport) {
	s := report.Summary()

	sb.WriteString(rule("-"))
	sb.WriteString("SUMMARY\n")
	sb.WriteString(rule("-"))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  DISCOVERED:  %d\n", s.Total)
	fmt.Fprintf(sb, "  VISITED:     %d\n", s.Visited)
	fmt.Fprintf(sb, "  QUEUED:      %d\n", s.Queued)
	fmt.Fprintf(sb, "  FAILED:      %d\n", s.Failed)
	fmt.Fprintf(sb, "  NON-2XX:     %d\n", s.NonSuccess)
	sb.WriteString("\n")
}

// writePages writes one entry per ledger record.
func (w *SimpleWriter) writePages(sb *strings.Builder, report *model.CrawlReport) {
	if len(report.Pages) == 0 {
		return
	}

	sb.WriteString(rule("-"))
	sb.WriteString("PAGES\n")
	sb.WriteString(rule("-"))
	sb.WriteString("\n")

	for _, p := range report.Pages {
		fmt.Fprintf(sb, "[%s] %s\n", pageIndicator(p), p.URL)
		if !p.Visited {
			continue
		}
		if p.FetchError != "" {
			fmt.Fprintf(sb, "    Error:       %s\n", p.FetchError)
			continue
		}
		if p.Title != nil {
			fmt.Fprintf(sb, "    Title:       %s\n", *p.Title)
		}
		if p.Description != nil {
			fmt.Fprintf(sb, "    Description: %s\n", truncateString(*p.Description, 80))
		}
		if p.Heading != nil {
			fmt.Fprintf(sb, "    Heading:     %s\n", *p.Heading)
		}
		if !w.verbose {
			continue
		}
		if p.FoundOn != "" {
			fmt.Fprintf(sb, "    Found on:    %s\n", p.FoundOn)
		}
		for _, img := range p.Images {
			fmt.Fprintf(sb, "    Image:       %s\n", img.Src)
		}
		if len(p.Keywords) > 0 {
			words := make([]string, 0, len(p.Keywords))
			for _, k := range p.Keywords {
				words = append(words, fmt.Sprintf("%s(%d)", k.Word, k.Count))
			}
			fmt.Fprintf(sb, "    Keywords:    %s\n", strings.Join(words, " "))
		}
	}
	sb.WriteString("\n")
}

// pageIndicator returns the status column of a page entry.
func pageIndicator(p model.PageRecord) string {
	switch {
	case !p.Visited:
		return "queued"
	case p.Failed():
		return "failed"
	default:
		return statusText(p.StatusCode)
	}
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(rule("="))
	sb.WriteString("Report generated by sitecrawl\n")
	sb.WriteString(rule("="))
}

func writeList(sb *strings.Builder, title, marker string, urls []string) {
	if len(urls) == 0 {
		return
	}
	sb.WriteString(title + "\n")
	for _, u := range urls {
		fmt.Fprintf(sb, "  %s %s\n", marker, u)
	}
	sb.WriteString("\n")
}

func rule(ch string) string {
	return strings.Repeat(ch, 70) + "\n"
}
