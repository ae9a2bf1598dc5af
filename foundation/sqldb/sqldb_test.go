package sqldb_test

import (
	"testing"

	"github.com/hometrics/rentbot/foundation/sqldb"
)

func TestQueryMap(t *testing.T) {
	db, err := sqldb.OpenDuckDB(":memory:")
	if err != nil {
		t.Fatalf("OpenDuckDB: %v", err)
	}
	defer db.Close()

	const schema = `
		CREATE TABLE cities (
			name  VARCHAR,
			state VARCHAR,
			rent  DOUBLE
		)`

	if err := sqldb.ExecTx(t.Context(), db, schema); err != nil {
		t.Fatalf("ExecTx: %v", err)
	}

	const seed = `INSERT INTO cities VALUES ('Newark', 'NJ', 1850.0), ('Denver', 'CO', 2100.0)`

	if err := sqldb.ExecTx(t.Context(), db, seed); err != nil {
		t.Fatalf("ExecTx: %v", err)
	}

	data, err := sqldb.QueryMap(t.Context(), db, "SELECT name, rent FROM cities ORDER BY rent")
	if err != nil {
		t.Fatalf("QueryMap: %v", err)
	}

	if len(data) != 2 {
		t.Fatalf("got %d rows, want 2", len(data))
	}

	if data[0]["name"] != "Newark" {
		t.Fatalf("got first row %v, want Newark", data[0]["name"])
	}
}

func TestExecTxRollback(t *testing.T) {
	db, err := sqldb.OpenDuckDB(":memory:")
	if err != nil {
		t.Fatalf("OpenDuckDB: %v", err)
	}
	defer db.Close()

	if err := sqldb.ExecTx(t.Context(), db, "CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatalf("ExecTx: %v", err)
	}

	if err := sqldb.ExecTx(t.Context(), db, "INSERT INTO missing VALUES (1)"); err == nil {
		t.Fatal("expected an error inserting into a missing table")
	}

	// The failed statement must not leave the connection in a bad state.
	if _, err := sqldb.QueryMap(t.Context(), db, "SELECT id FROM t"); err != nil {
		t.Fatalf("QueryMap after rollback: %v", err)
	}
}

func TestStatusCheck(t *testing.T) {
	db, err := sqldb.OpenDuckDB(":memory:")
	if err != nil {
		t.Fatalf("OpenDuckDB: %v", err)
	}
	defer db.Close()

	if err := sqldb.StatusCheck(t.Context(), db); err != nil {
		t.Fatalf("StatusCheck: %v", err)
	}
}
