package sqldb

import (
	"database/sql"
	"fmt"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/jmoiron/sqlx"
)

// OpenDuckDB opens an embedded DuckDB database at the specified path. Use
// ":memory:" or an empty path for an in-memory database.
func OpenDuckDB(path string) (*sqlx.DB, error) {
	if path == ":memory:" {
		path = ""
	}

	connector, err := duckdb.NewConnector(path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating connector: %w", err)
	}

	db := sql.OpenDB(connector)

	return sqlx.NewDb(db, "duckdb"), nil
}
