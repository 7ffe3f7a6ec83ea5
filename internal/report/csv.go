package report

import (
	"encoding/csv"
	"io"

	"github.com/nao1215/sitecrawl/internal/model"
)

// csvHeader is the column layout of the page export.
var csvHeader = []string{"url", "description", "title", "heading"}

// CSVWriter exports the ledger as CSV, one row per page in ledger order.
// Absent metadata is written as an empty cell.
type CSVWriter struct {
	baseWriter
}

// NewCSVWriter creates a CSVWriter that outputs to the given writer.
func NewCSVWriter(output io.Writer) *CSVWriter {
	return &CSVWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs one row per ledger entry.
func (w *CSVWriter) Write(report *model.CrawlReport) (int, error) {
	rows := make([][]string, 0, len(report.Pages)+1)
	rows = append(rows, csvHeader)
	for _, p := range report.Pages {
		rows = append(rows, []string{
			p.URL,
			model.StringValue(p.Description),
			model.StringValue(p.Title),
			model.StringValue(p.Heading),
		})
	}
	return w.writeAll(rows)
}

// WriteDiff outputs one row per change with columns change, url, old, new.
func (w *CSVWriter) WriteDiff(diff model.RunDiff) (int, error) {
	rows := [][]string{{"change", "url", "old", "new"}}
	for _, u := range diff.Added {
		rows = append(rows, []string{"added", u, "", ""})
	}
	for _, u := range diff.Removed {
		rows = append(rows, []string{"removed", u, "", ""})
	}
	for _, c := range diff.StatusChanged {
		rows = append(rows, []string{"status", c.URL, statusText(c.Old), statusText(c.New)})
	}
	for _, u := range diff.ContentChanged {
		rows = append(rows, []string{"content", u, "", ""})
	}
	return w.writeAll(rows)
}

func (w *CSVWriter) writeAll(rows [][]string) (int, error) {
	cw := &countingWriter{w: w.output}
	enc := csv.NewWriter(cw)
	if err := enc.WriteAll(rows); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

// countingWriter counts the bytes passed to the wrapped writer.
type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}
