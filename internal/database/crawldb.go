package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sitecrawl/internal/model"
)

// FileName is the database file created inside the data directory.
const FileName = "sitecrawl.db"

var (
	// ErrRunNotFound is returned when no stored run matches.
	ErrRunNotFound = errors.New("run not found")

	// ErrAmbiguousRunID is returned when a run ID prefix matches several runs.
	ErrAmbiguousRunID = errors.New("run id prefix matches more than one run")
)

// CrawlDB provides SQLite-based storage for crawl runs.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc creates it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer. Batch mode saves runs from several
	// goroutines, so writes are serialized through a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed TEXT NOT NULL,
		host TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		budget INTEGER NOT NULL DEFAULT 0,
		scope TEXT NOT NULL,
		stopped TEXT,
		error TEXT,
		total INTEGER NOT NULL DEFAULT 0,
		visited INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_seed ON runs(seed);
	CREATE INDEX IF NOT EXISTS idx_runs_host ON runs(host);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- One row per ledger entry. position keeps ledger order.
	CREATE TABLE IF NOT EXISTS pages (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		visited INTEGER NOT NULL,
		found_on TEXT,
		status_code INTEGER,
		title TEXT,
		description TEXT,
		heading TEXT,
		images TEXT,
		keywords TEXT,
		content_hash TEXT,
		fetch_error TEXT,
		fetched_at TEXT,
		PRIMARY KEY(run_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// RunMetadata contains summary information about a stored run.
// This is used for listing history without loading every page.
type RunMetadata struct {
	ID         string
	Seed       string
	Host       string
	StartedAt  time.Time
	FinishedAt time.Time
	Budget     int
	Scope      model.Scope
	Stopped    model.StopReason
	Error      string
	Total      int
	Visited    int
}

// SaveRun stores a crawl report and its pages in one transaction.
// A report without an ID is given a new UUID, which is written back to
// report.ID and returned.
func (cdb *CrawlDB) SaveRun(ctx context.Context, report *model.CrawlReport) (string, error) {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}

	host := (model.PageRecord{URL: report.Seed}).Host()
	summary := report.Summary()

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (id, seed, host, started_at, finished_at, budget, scope, stopped, error, total, visited)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.ID,
		report.Seed,
		strings.ToLower(host),
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.FinishedAt),
		report.Budget,
		string(report.Scope),
		string(report.Stopped),
		report.Error,
		summary.Total,
		summary.Visited,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO pages (run_id, position, url, visited, found_on, status_code, title, description,
		heading, images, keywords, content_hash, fetch_error, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range report.Pages {
		images, err := marshalList(p.Images)
		if err != nil {
			return "", fmt.Errorf("failed to serialize images of %s: %w", p.URL, err)
		}
		keywords, err := marshalList(p.Keywords)
		if err != nil {
			return "", fmt.Errorf("failed to serialize keywords of %s: %w", p.URL, err)
		}

		_, err = stmt.ExecContext(ctx,
			report.ID,
			i,
			p.URL,
			p.Visited,
			p.FoundOn,
			nullInt(p.StatusCode),
			nullString(p.Title),
			nullString(p.Description),
			nullString(p.Heading),
			images,
			keywords,
			p.ContentHash,
			p.FetchError,
			formatTimestamp(p.FetchedAt),
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert page %s: %w", p.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return report.ID, nil
}

// GetRun loads a stored run with all of its pages.
// id may be a unique prefix of the run ID.
func (cdb *CrawlDB) GetRun(ctx context.Context, id string) (*model.CrawlReport, error) {
	fullID, err := cdb.resolveID(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		report     model.CrawlReport
		started    string
		finished   sql.NullString
		scope      string
		stopped    sql.NullString
		errMessage sql.NullString
	)
	err = cdb.db.QueryRowContext(ctx, `
	SELECT id, seed, started_at, finished_at, budget, scope, stopped, error
	FROM runs WHERE id = ?
	`, fullID).Scan(
		&report.ID,
		&report.Seed,
		&started,
		&finished,
		&report.Budget,
		&scope,
		&stopped,
		&errMessage,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	report.StartedAt = parseTimestamp(started)
	report.FinishedAt = parseTimestamp(finished.String)
	report.Scope = model.Scope(scope)
	report.Stopped = model.StopReason(stopped.String)
	report.Error = errMessage.String

	pages, err := cdb.pages(ctx, fullID)
	if err != nil {
		return nil, err
	}
	report.Pages = pages

	return &report, nil
}

// LatestRun returns the most recent stored run for seed that ran to
// completion. Cancelled and aborted runs are skipped because their ledgers
// are partial.
func (cdb *CrawlDB) LatestRun(ctx context.Context, seed string) (*model.CrawlReport, error) {
	var id string
	err := cdb.db.QueryRowContext(ctx, `
	SELECT id FROM runs
	WHERE seed = ? AND stopped NOT IN (?, ?)
	ORDER BY started_at DESC
	LIMIT 1
	`, seed, string(model.StopCancelled), string(model.StopAborted)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no run for %s", ErrRunNotFound, seed)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return cdb.GetRun(ctx, id)
}

// ListRuns returns run metadata, newest first.
// An empty host lists every run.
func (cdb *CrawlDB) ListRuns(ctx context.Context, host string) ([]RunMetadata, error) {
	query := `
	SELECT id, seed, host, started_at, finished_at, budget, scope, stopped, error, total, visited
	FROM runs
	WHERE 1=1
	`
	args := make([]any, 0, 1)
	if host != "" {
		query += " AND host = ?"
		args = append(args, strings.ToLower(host))
	}
	query += " ORDER BY started_at DESC"

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var (
			meta       RunMetadata
			started    string
			finished   sql.NullString
			scope      string
			stopped    sql.NullString
			errMessage sql.NullString
		)
		if err := rows.Scan(
			&meta.ID,
			&meta.Seed,
			&meta.Host,
			&started,
			&finished,
			&meta.Budget,
			&scope,
			&stopped,
			&errMessage,
			&meta.Total,
			&meta.Visited,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		meta.StartedAt = parseTimestamp(started)
		meta.FinishedAt = parseTimestamp(finished.String)
		meta.Scope = model.Scope(scope)
		meta.Stopped = model.StopReason(stopped.String)
		meta.Error = errMessage.String
		results = append(results, meta)
	}

	return results, rows.Err()
}

// ListHosts returns every host with at least one stored run.
func (cdb *CrawlDB) ListHosts(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT DISTINCT host FROM runs ORDER BY host`)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []string
	for rows.Next() {
		var host string
		if err := rows.Scan(&host); err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		hosts = append(hosts, host)
	}
	return hosts, rows.Err()
}

// DeleteRun removes a run and its pages.
func (cdb *CrawlDB) DeleteRun(ctx context.Context, id string) error {
	fullID, err := cdb.resolveID(ctx, id)
	if err != nil {
		return err
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE run_id = ?`, fullID); err != nil {
		return fmt.Errorf("failed to delete pages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, fullID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// resolveID expands a run ID prefix to the full ID.
func (cdb *CrawlDB) resolveID(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrRunNotFound)
	}

	rows, err := cdb.db.QueryContext(ctx, `SELECT id FROM runs WHERE id = ? OR id LIKE ? ESCAPE '\' LIMIT 2`,
		id, escapeLike(id)+"%")
	if err != nil {
		return "", fmt.Errorf("failed to look up run: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var found string
		if err := rows.Scan(&found); err != nil {
			return "", fmt.Errorf("failed to scan run id: %w", err)
		}
		if found == id {
			return found, nil
		}
		ids = append(ids, found)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to look up run: %w", err)
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousRunID, id)
	}
}

// pages loads the ledger entries of a run in ledger order.
func (cdb *CrawlDB) pages(ctx context.Context, runID string) ([]model.PageRecord, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT url, visited, found_on, status_code, title, description, heading,
		images, keywords, content_hash, fetch_error, fetched_at
	FROM pages
	WHERE run_id = ?
	ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	pages := make([]model.PageRecord, 0)
	for rows.Next() {
		var (
			p           model.PageRecord
			foundOn     sql.NullString
			status      sql.NullInt64
			title       sql.NullString
			description sql.NullString
			heading     sql.NullString
			images      sql.NullString
			keywords    sql.NullString
			hash        sql.NullString
			fetchErr    sql.NullString
			fetchedAt   sql.NullString
		)
		if err := rows.Scan(
			&p.URL,
			&p.Visited,
			&foundOn,
			&status,
			&title,
			&description,
			&heading,
			&images,
			&keywords,
			&hash,
			&fetchErr,
			&fetchedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}

		p.FoundOn = foundOn.String
		if status.Valid {
			p.StatusCode = model.IntPtr(int(status.Int64))
		}
		p.Title = stringPtr(title)
		p.Description = stringPtr(description)
		p.Heading = stringPtr(heading)
		p.ContentHash = hash.String
		p.FetchError = fetchErr.String
		p.FetchedAt = parseTimestamp(fetchedAt.String)

		if images.Valid && images.String != "" {
			if err := json.Unmarshal([]byte(images.String), &p.Images); err != nil {
				return nil, fmt.Errorf("failed to parse images of %s: %w", p.URL, err)
			}
		}
		if keywords.Valid && keywords.String != "" {
			if err := json.Unmarshal([]byte(keywords.String), &p.Keywords); err != nil {
				return nil, fmt.Errorf("failed to parse keywords of %s: %w", p.URL, err)
			}
		}

		pages = append(pages, p)
	}

	return pages, rows.Err()
}

// marshalList serializes a slice as JSON, storing nil slices as NULL.
func marshalList[T any](list []T) (any, error) {
	if list == nil {
		return nil, nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return model.StringPtr(v.String)
}

// escapeLike escapes LIKE wildcards in a user supplied prefix.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

// timestampLayout has a fixed width so string ordering matches time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTimestamp stores times in UTC. The zero time is stored as an empty string.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
