package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/sitecrawl/internal/model"
)

// JSONWriter outputs the full report as one JSON document, for tools that
// post-process crawl results. Output is compact unless an indent is set.
type JSONWriter struct {
	baseWriter
	prefix string
	indent string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent pretty-prints the output with the given line prefix and
// per-level indent, as json.MarshalIndent does.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.prefix = prefix
		w.indent = indent
	}
}

// WithPrettyPrint indents with two spaces.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONReport is the document written by JSONWriter.Write: the crawl report
// plus its page counters.
type JSONReport struct {
	*model.CrawlReport

	Summary model.Summary `json:"summary"`
}

// Write outputs the report and its summary.
func (w *JSONWriter) Write(report *model.CrawlReport) (int, error) {
	return w.encode(JSONReport{CrawlReport: report, Summary: report.Summary()})
}

// WriteDiff outputs the run diff.
func (w *JSONWriter) WriteDiff(diff model.RunDiff) (int, error) {
	return w.encode(diff)
}

// encode writes v followed by a newline.
func (w *JSONWriter) encode(v any) (int, error) {
	cw := &countingWriter{w: w.output}
	enc := json.NewEncoder(cw)
	enc.SetEscapeHTML(false)
	if w.prefix != "" || w.indent != "" {
		enc.SetIndent(w.prefix, w.indent)
	}
	err := enc.Encode(v)
	return cw.n, err
}
