package db

import (
	"context"
	"fmt"
	"slices"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

var requiredColumns = map[string][]string{
	"documents":         {"id", "source_url", "content", "chunk_hash", "embedding"},
	"documents_pending": {"id", "source_url", "chunk_content", "chunk_hash", "status"},
	"documents_large":   {"source_url", "byte_size", "reason"},
	"sources":           {"source_url", "status"},
}

var optionalColumns = map[string][]string{
	"documents":         {"source_title", "source_type", "source_domain", "scraped_at"},
	"documents_pending": {"source_title", "source_type", "source_domain", "ordinal", "file_size", "notes", "created_at", "updated_at"},
	"documents_large":   {"source_domain", "source_title", "recorded_at"},
	"sources":           {"source_type", "source_domain", "notes", "updated_at"},
}

// Capabilities records which columns the live schema actually has.
type Capabilities struct {
	columns map[string]map[string]bool
}

// Has reports whether a column exists. Before detection every column is assumed present.
func (c Capabilities) Has(table, column string) bool {
	if c.columns == nil {
		return true
	}
	return c.columns[table][column]
}

// DetectCapabilities introspects the store once. Missing required columns are fatal; missing
// optional columns are dropped from write projections. On Postgres the embedding dimension is verified.
func (c *DatabaseClient) DetectCapabilities(ctx context.Context) error {
	caps := Capabilities{columns: make(map[string]map[string]bool)}
	for table := range requiredColumns {
		cols, err := c.tableColumns(ctx, table)
		if err != nil {
			return fmt.Errorf("introspect %s: %w", table, err)
		}
		caps.columns[table] = cols

		var missing []string
		for _, col := range requiredColumns[table] {
			if !cols[col] {
				missing = append(missing, col)
			}
		}
		if len(missing) > 0 {
			slices.Sort(missing)
			return fmt.Errorf("%w: table %s is missing required columns %v", core.ErrSchemaMismatch, table, missing)
		}
		for _, col := range optionalColumns[table] {
			if !cols[col] {
				c.log.Warn("optional column missing, writes will omit it", "table", table, "column", col)
			}
		}
	}

	if c.dialect == Postgres {
		var dim int
		err := c.db.QueryRowContext(ctx, `
			SELECT atttypmod FROM pg_attribute
			WHERE attrelid = 'documents'::regclass AND attname = 'embedding'`).Scan(&dim)
		if err != nil {
			return fmt.Errorf("read embedding dimension: %w", err)
		}
		if dim != c.dim {
			return fmt.Errorf("%w: documents.embedding has dimension %d, configured %d", core.ErrSchemaMismatch, dim, c.dim)
		}
	}

	c.caps = caps
	return nil
}

func (c *DatabaseClient) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	q := `SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1`
	if c.dialect == SQLite {
		q = `SELECT name FROM pragma_table_info($1)`
	}
	rows, err := c.db.QueryContext(ctx, c.dialect.rebind(q), table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
