package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/sitecrawl/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the full report in Markdown format.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writePages(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteDiff outputs the run diff in Markdown format.
func (w *MarkdownWriter) WriteDiff(diff model.RunDiff) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Run Comparison")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Old run", "`" + diff.OldID + "`"},
			{"New run", "`" + diff.NewID + "`"},
		},
	})
	md.PlainText("")

	if diff.Empty() {
		md.Tip("No changes detected.")
		md.PlainText("")
		return len(md.String()), md.Build()
	}

	writeURLSection(md, "Added", diff.Added)
	writeURLSection(md, "Removed", diff.Removed)
	if len(diff.StatusChanged) > 0 {
		rows := make([][]string, len(diff.StatusChanged))
		for i, c := range diff.StatusChanged {
			rows[i] = []string{escapeCell(c.URL), statusText(c.Old), statusText(c.New)}
		}
		md.H2("Status Changed")
		md.PlainText("")
		md.Table(markdown.TableSet{Header: []string{"URL", "Old", "New"}, Rows: rows})
		md.PlainText("")
	}
	writeURLSection(md, "Content Changed", diff.ContentChanged)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.CrawlReport) {
	md.H1("Sitecrawl Report")
	md.PlainText("")

	budget := "unbounded"
	if report.Budget > 0 {
		budget = strconv.Itoa(report.Budget)
	}

	rows := [][]string{
		{"Seed", "`" + report.Seed + "`"},
		{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"Budget", budget},
		{"Scope", string(report.Scope)},
		{"Status", escapeCell(stateText(report))},
	}
	if report.ID != "" {
		rows = append(rows, []string{"Run", "`" + report.ID + "`"})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeSummary writes the counters, a pie chart and an alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.CrawlReport) {
	s := report.Summary()

	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Pages", "Count"},
		Rows: [][]string{
			{"Discovered", strconv.Itoa(s.Total)},
			{"Visited", strconv.Itoa(s.Visited)},
			{"Queued", strconv.Itoa(s.Queued)},
			{"Failed", strconv.Itoa(s.Failed)},
			{"Non-2xx", strconv.Itoa(s.NonSuccess)},
		},
	})
	md.PlainText("")

	if s.Visited > 0 {
		w.writePieChart(md, s)
	}

	switch {
	case report.Error != "":
		md.Cautionf("The crawl aborted: %s", report.Error)
	case s.Failed > 0:
		md.Warningf("%d page(s) could not be fetched.", s.Failed)
	case s.NonSuccess > 0:
		md.Importantf("%d page(s) answered with a non-2xx status.", s.NonSuccess)
	case s.Queued > 0:
		md.Note("The crawl stopped before every discovered page was visited.")
	default:
		md.Tip("Every discovered page was visited successfully.")
	}
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of visited page outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Visited Pages"),
		piechart.WithShowData(true),
	)

	if ok := s.Visited - s.Failed - s.NonSuccess; ok > 0 {
		chart.LabelAndIntValue("2xx", uint64(ok))
	}
	if s.NonSuccess > 0 {
		chart.LabelAndIntValue("Non-2xx", uint64(s.NonSuccess))
	}
	if s.Failed > 0 {
		chart.LabelAndIntValue("Failed", uint64(s.Failed))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writePages writes the ledger as a table.
func (w *MarkdownWriter) writePages(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Pages")
	md.PlainText("")

	if len(report.Pages) == 0 {
		md.PlainText("No pages discovered.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Pages))
	for i, p := range report.Pages {
		rows[i] = []string{
			escapeCell(p.URL),
			pageIndicator(p),
			escapeCell(truncateString(model.StringValue(p.Title), 50)),
			escapeCell(truncateString(model.StringValue(p.Heading), 50)),
			escapeCell(truncateString(model.StringValue(p.Description), 60)),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Status", "Title", "Heading", "Description"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, p := range report.Pages {
		if p.FetchError != "" {
			md.Details(p.URL, p.FetchError)
		}
	}
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [sitecrawl](https://github.com/nao1215/sitecrawl)*")
}

func writeURLSection(md *markdown.Markdown, title string, urls []string) {
	if len(urls) == 0 {
		return
	}
	md.H2(title)
	md.PlainText("")
	md.BulletList(urls...)
	md.PlainText("")
}

// escapeCell keeps table cells on one line and escapes column separators.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
