package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/nao1215/sitecrawl/internal/model"
)

// ErrUnknownFormat is returned by New for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown report format")

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the crawl report.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.CrawlReport) (int, error)

	// WriteDiff outputs the differences between two runs.
	WriteDiff(diff model.RunDiff) (int, error)
}

// New returns the writer for format ("text", "json", "markdown" or "csv").
func New(format string, output io.Writer, verbose bool) (Writer, error) {
	switch format {
	case "", "text":
		return NewSimpleWriter(output, WithVerbose(verbose)), nil
	case "json":
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case "markdown":
		return NewMarkdownWriter(output), nil
	case "csv":
		return NewCSVWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// InlineDiff reports whether w can append a diff to a report on the same
// stream. The CSV export is a single table, so its diffs are only written
// when asked for on their own.
func InlineDiff(w Writer) bool {
	switch w := w.(type) {
	case *CSVWriter:
		return false
	case *MultiWriter:
		for _, inner := range w.writers {
			if !InlineDiff(inner) {
				return false
			}
		}
	}
	return true
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.CrawlReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteDiff outputs the diff to all configured Writers.
func (m *MultiWriter) WriteDiff(diff model.RunDiff) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteDiff(diff)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// statusText renders a status code, or "-" when no response was received.
func statusText(code *int) string {
	if code == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *code)
}

// stateText describes how a run ended.
func stateText(report *model.CrawlReport) string {
	if report.Error != "" {
		return fmt.Sprintf("%s (%s)", report.Stopped, report.Error)
	}
	if report.Stopped == "" {
		return "unknown"
	}
	return string(report.Stopped)
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
