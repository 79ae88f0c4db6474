// Package dataset reads tabular files (CSV, Parquet, JSON) through an embedded DuckDB engine.
package dataset

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcboeker/go-duckdb"
	"github.com/manager-data-agent/backend/internal/logging"
	"github.com/manager-data-agent/backend/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrDataUnavailable is returned when a dataset is missing, unreadable or not tabular.
var ErrDataUnavailable = errors.New("dataset unavailable")

// Options tunes the embedded engine.
type Options struct {
	Threads              int
	MemoryLimit          string
	MaxConcurrentQueries int
}

// Loader reads previews, summaries and query results from tabular files.
// It is safe for concurrent use.
type Loader struct {
	db      *sql.DB
	log     *logrus.Entry
	pragmas []string

	// Semaphore to limit concurrent queries against the shared engine
	querySem chan struct{}
}

// NewLoader opens an in-memory DuckDB instance.
func NewLoader(opts Options) (*Loader, error) {
	log := logging.For("dataset")

	pragmas := []string{"PRAGMA enable_progress_bar=false"}
	if opts.Threads > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d", opts.Threads))
	}
	if opts.MemoryLimit != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit=%s", quoteLiteral(opts.MemoryLimit)))
	}

	db, err := openEngine(pragmas, log)
	if err != nil {
		return nil, err
	}

	maxQueries := opts.MaxConcurrentQueries
	if maxQueries <= 0 {
		maxQueries = 8
	}

	return &Loader{
		db:       db,
		log:      log,
		pragmas:  pragmas,
		querySem: make(chan struct{}, maxQueries),
	}, nil
}

// openEngine opens an in-memory DuckDB instance running pragmas on every new connection.
func openEngine(pragmas []string, log *logrus.Entry) (*sql.DB, error) {
	connector, err := duckdb.NewConnector("", func(execer driver.ExecerContext) error {
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				log.WithError(err).Warnf("pragma failed: %s", pragma)
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

// Close releases the engine.
func (l *Loader) Close() error {
	return l.db.Close()
}

func (l *Loader) acquire(ctx context.Context) (func(), error) {
	select {
	case l.querySem <- struct{}{}:
		return func() { <-l.querySem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Preview renders the first rows of the dataset as plain text: a header line
// followed by right-aligned columns, without a row index.
func (l *Loader) Preview(ctx context.Context, path string, rows int) (string, error) {
	src, err := sourceFor(path)
	if err != nil {
		return "", err
	}
	if rows <= 0 {
		rows = 5
	}

	release, err := l.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	result, err := l.collect(ctx, l.db, fmt.Sprintf("SELECT * FROM %s LIMIT %d", src.expr, rows), rows)
	if err != nil {
		return "", unavailable(path, err)
	}

	l.log.WithFields(logrus.Fields{"path": path, "rows": len(result.Rows)}).Debug("dataset preview loaded")
	return RenderTable(result.Columns, result.Rows), nil
}

// Describe reads the whole dataset once to report its row count and column schema.
func (l *Loader) Describe(ctx context.Context, path string) (*models.DatasetSummary, error) {
	src, err := sourceFor(path)
	if err != nil {
		return nil, err
	}

	release, err := l.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	summary := &models.DatasetSummary{Path: path, Format: src.format}

	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+src.expr).Scan(&summary.RowCount); err != nil {
		return nil, unavailable(path, err)
	}

	described, err := l.collect(ctx, l.db, "DESCRIBE SELECT * FROM "+src.expr, 0)
	if err != nil {
		return nil, unavailable(path, err)
	}
	for _, row := range described.Rows {
		if len(row) < 2 {
			continue
		}
		summary.Columns = append(summary.Columns, models.Column{Name: row[0], Type: row[1]})
	}

	return summary, nil
}

// Query runs a read-only statement against a copy of the dataset in a table
// named "dataset". Each call gets its own engine instance: the data is loaded
// first, then external access is switched off and the configuration locked,
// so the statement can reach nothing but that table. At most limit rows are
// returned.
func (l *Loader) Query(ctx context.Context, path, statement string, limit int) (*models.QueryResult, error) {
	statement, err := ValidateReadOnly(statement)
	if err != nil {
		return nil, err
	}
	src, err := sourceFor(path)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	release, err := l.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	db, err := openEngine(l.pragmas, l.log)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "CREATE TEMP TABLE dataset AS SELECT * FROM "+src.expr); err != nil {
		return nil, unavailable(path, err)
	}
	for _, stmt := range sandbox {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to isolate query engine: %w", err)
		}
	}

	wrapped := fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", statement, limit+1)
	result, err := l.collect(ctx, conn, wrapped, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if len(result.Rows) > limit {
		result.Rows = result.Rows[:limit]
		result.Truncated = true
	}
	return result, nil
}

// sandbox cuts a query engine off from files, URLs and extensions for good.
// Disabling external access is allowed at runtime; re-enabling it is not.
var sandbox = []string{
	"SET enable_external_access = false",
	"SET lock_configuration = true",
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// collect runs a query and stringifies every cell. max <= 0 means no cap.
func (l *Loader) collect(ctx context.Context, q queryer, query string, max int) (*models.QueryResult, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &models.QueryResult{Columns: columns, Rows: [][]string{}}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = FormatValue(v)
		}
		result.Rows = append(result.Rows, row)
		if max > 0 && len(result.Rows) >= max {
			break
		}
	}
	return result, rows.Err()
}

type source struct {
	expr   string
	format string
}

// sourceFor checks the file and picks the DuckDB reader for its extension.
func sourceFor(path string) (source, error) {
	if strings.TrimSpace(path) == "" {
		return source{}, fmt.Errorf("%w: empty path", ErrDataUnavailable)
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return source{}, fmt.Errorf("%w: file not found: %s", ErrDataUnavailable, path)
		}
		return source{}, unavailable(path, err)
	}
	if info.IsDir() {
		return source{}, fmt.Errorf("%w: %s is a directory", ErrDataUnavailable, path)
	}

	lit := quoteLiteral(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return source{expr: "read_parquet(" + lit + ")", format: "parquet"}, nil
	case ".json", ".ndjson", ".jsonl":
		return source{expr: "read_json_auto(" + lit + ")", format: "json"}, nil
	case ".tsv":
		return source{expr: "read_csv_auto(" + lit + ", delim='\t')", format: "tsv"}, nil
	default:
		return source{expr: "read_csv_auto(" + lit + ")", format: "csv"}, nil
	}
}

func unavailable(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrDataUnavailable, path, err)
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
