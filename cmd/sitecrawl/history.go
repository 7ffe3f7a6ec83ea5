package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitecrawl/internal/config"
	"github.com/nao1215/sitecrawl/internal/database"
	"github.com/nao1215/sitecrawl/internal/model"
	"github.com/nao1215/sitecrawl/internal/report"
)

// NewHistoryCmd creates the history command.
// This command reads crawl runs stored in the database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and compare stored crawl runs",
		Long: `History reads the crawl runs saved by 'sitecrawl crawl'.

A run ID may be shortened to any prefix that is unique in the database.

Examples:
  # List every crawled host
  sitecrawl history hosts

  # List the runs of one host, newest first
  sitecrawl history list www.example.com

  # Show a stored run as CSV
  sitecrawl history show --format csv 3f2a9c

  # Compare two runs
  sitecrawl history diff 3f2a9c 81bd04

  # Delete a run
  sitecrawl history delete 3f2a9c`,
	}

	cmd.PersistentFlags().String("db-dir", "",
		"Database directory (default: XDG data directory)")

	cmd.AddCommand(newHistoryHostsCmd())
	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryDiffCmd())
	cmd.AddCommand(newHistoryDeleteCmd())

	return cmd
}

func newHistoryHostsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hosts",
		Short: "List every host with stored runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd, func(ctx context.Context, db *database.CrawlDB) error {
				return listHosts(ctx, db, cmd.OutOrStdout())
			})
		},
	}
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [host]",
		Short: "List stored runs, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host := ""
			if len(args) == 1 {
				host = args[0]
			}
			return withDB(cmd, func(ctx context.Context, db *database.CrawlDB) error {
				return listRuns(ctx, db, cmd.OutOrStdout(), host)
			})
		},
	}
}

func newHistoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a stored run as a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}
			return withDB(cmd, func(ctx context.Context, db *database.CrawlDB) error {
				run, err := db.GetRun(ctx, args[0])
				if err != nil {
					return runError(args[0], err)
				}
				w, err := report.New(format, cmd.OutOrStdout(), getVerboseFlag(cmd))
				if err != nil {
					return err
				}
				_, err = w.Write(run)
				return err
			})
		},
	}
	cmd.Flags().StringP("format", "f", string(config.ReportText),
		"Report format: text, json, markdown or csv")
	return cmd
}

func newHistoryDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <old-run-id> <new-run-id>",
		Short: "Compare two stored runs",
		Long: `Diff lists the pages added and removed between two runs, the pages whose
HTTP status changed, and the pages whose content hash changed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}
			return withDB(cmd, func(ctx context.Context, db *database.CrawlDB) error {
				return diffRuns(ctx, db, cmd.OutOrStdout(), format, args[0], args[1])
			})
		},
	}
	cmd.Flags().StringP("format", "f", string(config.ReportText),
		"Output format: text, json, markdown or csv")
	return cmd
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd, func(ctx context.Context, db *database.CrawlDB) error {
				if err := db.DeleteRun(ctx, args[0]); err != nil {
					return runError(args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
				return nil
			})
		},
	}
}

// withDB opens the database selected by --db-dir and runs fn with it.
func withDB(cmd *cobra.Command, fn func(ctx context.Context, db *database.CrawlDB) error) error {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return fn(cmd.Context(), db)
}

// runError adds a hint to run lookup errors.
func runError(id string, err error) error {
	switch {
	case errors.Is(err, database.ErrRunNotFound):
		return fmt.Errorf("run %q not found (use 'sitecrawl history list' to see stored runs): %w", id, err)
	case errors.Is(err, database.ErrAmbiguousRunID):
		return fmt.Errorf("run ID %q matches several runs, use a longer prefix: %w", id, err)
	default:
		return err
	}
}

// listHosts prints every host with stored runs.
func listHosts(ctx context.Context, db *database.CrawlDB, w io.Writer) error {
	hosts, err := db.ListHosts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list hosts: %w", err)
	}

	if len(hosts) == 0 {
		fmt.Fprintln(w, "No crawled hosts found in the database.")
		fmt.Fprintln(w, "\nUse 'sitecrawl crawl <url>' to crawl a site.")
		return nil
	}

	fmt.Fprintf(w, "Crawled hosts (%d):\n\n", len(hosts))
	for _, host := range hosts {
		fmt.Fprintf(w, "  %s\n", host)
	}
	fmt.Fprintln(w, "\nUse 'sitecrawl history list <host>' to see the runs of a host.")
	return nil
}

// listRuns prints a table of stored runs. An empty host lists every run.
func listRuns(ctx context.Context, db *database.CrawlDB, w io.Writer, host string) error {
	runs, err := db.ListRuns(ctx, host)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		if host != "" {
			fmt.Fprintf(w, "No runs found for %s\n", host)
		} else {
			fmt.Fprintln(w, "No runs found in the database.")
		}
		return nil
	}

	fmt.Fprintf(w, "Runs (%d):\n\n", len(runs))
	fmt.Fprintf(w, "  %-8s  %-19s  %7s  %7s  %-18s  %s\n", "ID", "Started", "Visited", "Total", "Stopped", "Seed")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 90))
	for _, run := range runs {
		fmt.Fprintf(w, "  %-8s  %-19s  %7d  %7d  %-18s  %s\n",
			shortID(run.ID),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Visited,
			run.Total,
			run.Stopped,
			run.Seed,
		)
	}
	fmt.Fprintln(w, "\nUse 'sitecrawl history show <id>' to print a run.")
	fmt.Fprintln(w, "Use 'sitecrawl history diff <old-id> <new-id>' to compare two runs.")
	return nil
}

// diffRuns writes the differences between the runs oldID and newID.
func diffRuns(ctx context.Context, db *database.CrawlDB, w io.Writer, format, oldID, newID string) error {
	older, err := db.GetRun(ctx, oldID)
	if err != nil {
		return runError(oldID, err)
	}
	newer, err := db.GetRun(ctx, newID)
	if err != nil {
		return runError(newID, err)
	}

	writer, err := report.New(format, w, false)
	if err != nil {
		return err
	}
	_, err = writer.WriteDiff(model.Diff(older, newer))
	return err
}

// shortID returns the first eight characters of a run ID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
