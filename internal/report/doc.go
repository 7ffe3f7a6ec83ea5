// Package report renders crawl reports and run diffs.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: The full report as JSON for tool integration
//   - MarkdownWriter: A Markdown document for sharing
//   - CSVWriter: One row per ledger entry with url, description, title, heading
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
