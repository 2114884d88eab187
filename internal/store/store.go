// Package store mirrors the combined methylation table into DuckDB for paged browsing and SQL
// aggregation.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"sync"

	"github.com/marcboeker/go-duckdb"

	"methylexplorer/internal/methylation"
	"methylexplorer/internal/summary"
)

// MaxPageSize caps the rows returned by one Page call.
const MaxPageSize = 10000

// Columns of the methylation table, in storage order.
var Columns = []string{"chr", "start", "end", "frac", "valid", "group_name"}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS methylation (
        chr VARCHAR,
        "start" BIGINT,
        "end" BIGINT,
        frac DOUBLE,
        valid BIGINT,
        group_name VARCHAR
    )`,
	`CREATE TABLE IF NOT EXISTS group_labels (
        position BIGINT,
        group_name VARCHAR
    )`,
}

type Store struct {
	mu sync.RWMutex
	db *sql.DB
}

// Open opens the DuckDB database at path. An empty path keeps everything in memory.
func Open(path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", path, err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Replace swaps the stored table for t. base lists the group labels to report even when they
// have no rows. The swap is one transaction: on failure the previous rows stay in place.
func (s *Store) Replace(ctx context.Context, t *methylation.Table, base []string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN TRANSACTION"); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err == nil {
			if _, err = conn.ExecContext(ctx, "COMMIT"); err != nil {
				err = fmt.Errorf("commit: %w", err)
			}
			return
		}
		// The request context may be the reason for the failure.
		if _, rbErr := conn.ExecContext(context.Background(), "ROLLBACK"); rbErr != nil {
			err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
	}()

	for _, stmt := range []string{"DELETE FROM methylation", "DELETE FROM group_labels"} {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}

	labels := summary.CountByGroup(t, base)
	return conn.Raw(func(raw any) error {
		dc, ok := raw.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", raw)
		}

		points, err := duckdb.NewAppenderFromConn(dc, "", "methylation")
		if err != nil {
			return fmt.Errorf("methylation appender: %w", err)
		}
		for _, r := range t.Records {
			if err := points.AppendRow(r.Chr, r.Start, r.End, r.Frac, r.Valid, r.Group); err != nil {
				points.Close()
				return fmt.Errorf("append point: %w", err)
			}
		}
		if err := points.Close(); err != nil {
			return fmt.Errorf("flush points: %w", err)
		}

		groups, err := duckdb.NewAppenderFromConn(dc, "", "group_labels")
		if err != nil {
			return fmt.Errorf("group appender: %w", err)
		}
		for i, g := range labels {
			if err := groups.AppendRow(int64(i), g.Group); err != nil {
				groups.Close()
				return fmt.Errorf("append group: %w", err)
			}
		}
		return groups.Close()
	})
}

// Page is one slice of the stored table in the shape the front end expects.
type Page struct {
	Headers    []string        `json:"headers"`
	Data       [][]interface{} `json:"data"`
	TotalCount int             `json:"totalCount"`
}

// Page returns rows [page*limit, page*limit+limit) in ingestion order.
func (s *Store) Page(ctx context.Context, page, limit int) (*Page, error) {
	if page < 0 {
		page = 0
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var totalCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM methylation").Scan(&totalCount); err != nil {
		return nil, err
	}
	// page*limit would overflow; no table is that large.
	if page > (math.MaxInt-limit)/limit {
		return &Page{Headers: Columns, Data: [][]interface{}{}, TotalCount: totalCount}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT chr, "start", "end", frac, valid, group_name
        FROM methylation
        ORDER BY rowid
        LIMIT ? OFFSET ?
    `, limit, page*limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	data := make([][]interface{}, 0)
	for rows.Next() {
		row := make([]interface{}, len(columns))
		rowPointers := make([]interface{}, len(columns))
		for i := range row {
			rowPointers[i] = &row[i]
		}
		if err := rows.Scan(rowPointers...); err != nil {
			return nil, err
		}
		// Convert []byte data to string, if applicable
		for i, val := range row {
			if b, ok := val.([]byte); ok {
				row[i] = string(b)
			}
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Page{Headers: columns, Data: data, TotalCount: totalCount}, nil
}

// GroupCounts counts stored rows per group, reporting every known label.
func (s *Store) GroupCounts(ctx context.Context) ([]summary.GroupCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
        SELECT g.group_name, COALESCE(c.n, 0) AS n_methylations
        FROM group_labels g
        LEFT JOIN (
            SELECT group_name, COUNT(*) AS n
            FROM methylation
            GROUP BY group_name
        ) c USING (group_name)
        ORDER BY g.position
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := []summary.GroupCount{}
	for rows.Next() {
		var gc summary.GroupCount
		if err := rows.Scan(&gc.Group, &gc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, gc)
	}
	return counts, rows.Err()
}
