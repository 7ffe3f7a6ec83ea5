// Package main provides the entry point for the sitecrawl CLI.
//
// sitecrawl crawls every same-origin page reachable from a seed URL and
// reports the title, description, heading and images of each page.
//
// Usage:
//
//	sitecrawl crawl <url>
//	sitecrawl crawl --budget 100 --format csv -o pages.csv <url>
//	sitecrawl history list
//
// See --help for all available options.
package main

func main() {
	Execute()
}
