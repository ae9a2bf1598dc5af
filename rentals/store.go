package rentals

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"vitess.io/vitess/go/vt/sqlparser"

	"github.com/hometrics/rentbot/foundation/sqldb"
)

// Store provides guarded SQL access to the rentals database for the analysis
// tools. Every query goes through CheckQuery first so nothing but single
// SELECT statements ever reach the database.
type Store struct {
	db     *sqlx.DB
	parser *sqlparser.Parser
}

func NewStore(db *sqlx.DB) (*Store, error) {
	parser, err := sqlparser.New(sqlparser.Options{})
	if err != nil {
		return nil, fmt.Errorf("sqlparser: %w", err)
	}

	return &Store{
		db:     db,
		parser: parser,
	}, nil
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Tables returns the user table names in the database.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
		ORDER BY table_name`

	rows, err := s.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("queryx: %w", err)
	}
	defer rows.Close()

	var tables []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		tables = append(tables, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return tables, nil
}

// TableInfo returns the column layout and up to three sample rows for each of
// the requested tables, rendered so a model can write queries against them.
func (s *Store) TableInfo(ctx context.Context, tables []string) (string, error) {
	known, err := s.Tables(ctx)
	if err != nil {
		return "", fmt.Errorf("tables: %w", err)
	}

	knownSet := make(map[string]bool, len(known))
	for _, name := range known {
		knownSet[name] = true
	}

	var sb strings.Builder

	for _, table := range tables {
		table = strings.TrimSpace(table)

		// Table names come from the model. Only names that exist in the
		// catalog may be interpolated into SQL below.
		if !knownSet[table] {
			return "", fmt.Errorf("unknown table: %q", table)
		}

		columns, err := s.columns(ctx, table)
		if err != nil {
			return "", fmt.Errorf("columns: %w", err)
		}

		sb.WriteString(fmt.Sprintf("TABLE %s (\n", table))
		for _, col := range columns {
			sb.WriteString(fmt.Sprintf("\t%s %s\n", col.Name, col.Type))
		}
		sb.WriteString(")\n")

		samples, err := sqldb.QueryMap(ctx, s.db, fmt.Sprintf("SELECT * FROM %s LIMIT 3", table))
		if err != nil {
			return "", fmt.Errorf("samples: %w", err)
		}

		sb.WriteString(fmt.Sprintf("%d sample rows from %s:\n", len(samples), table))
		for _, row := range samples {
			data, err := json.Marshal(jsonSafe(row))
			if err != nil {
				return "", fmt.Errorf("marshal sample: %w", err)
			}

			sb.WriteString(string(data))
			sb.WriteString("\n")
		}

		sb.WriteString("\n")
	}

	return sb.String(), nil
}

// CheckQuery validates that the query is a single syntactically correct
// SELECT statement.
func (s *Store) CheckQuery(query string) error {
	pieces, err := s.parser.SplitStatementToPieces(query)
	if err != nil {
		return fmt.Errorf("split: %w", err)
	}

	if len(pieces) != 1 {
		return fmt.Errorf("expected a single statement, got %d", len(pieces))
	}

	stmt, err := s.parser.Parse(pieces[0])
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	if _, ok := stmt.(sqlparser.SelectStatement); !ok {
		return fmt.Errorf("only SELECT statements are allowed, got %T", stmt)
	}

	return nil
}

// Query validates and executes a read-only query, capping the result set at
// maxRows so a broad query can't flood the model's context window.
func (s *Store) Query(ctx context.Context, query string, maxRows int) ([]map[string]any, error) {
	if err := s.CheckQuery(query); err != nil {
		return nil, fmt.Errorf("check: %w", err)
	}

	data, err := sqldb.QueryMap(ctx, s.db, query)
	if err != nil {
		return nil, fmt.Errorf("querymap: %w", err)
	}

	if maxRows > 0 && len(data) > maxRows {
		data = data[:maxRows]
	}

	for i, row := range data {
		data[i] = jsonSafe(row)
	}

	return data, nil
}

type column struct {
	Name string
	Type string
}

func (s *Store) columns(ctx context.Context, table string) ([]column, error) {
	const q = `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_name = ?
		ORDER BY ordinal_position`

	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(q), table)
	if err != nil {
		return nil, fmt.Errorf("queryx: %w", err)
	}
	defer rows.Close()

	var columns []column

	for rows.Next() {
		var col column
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return columns, nil
}

// jsonSafe replaces driver values that don't marshal cleanly, like raw byte
// slices, with their string form.
func jsonSafe(row map[string]any) map[string]any {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}

	return row
}
