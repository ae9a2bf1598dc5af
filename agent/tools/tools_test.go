package tools_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/hometrics/rentbot/agent/tools"
	"github.com/hometrics/rentbot/foundation/chronos"
	"github.com/hometrics/rentbot/foundation/client"
	"github.com/hometrics/rentbot/foundation/sqldb"
	"github.com/hometrics/rentbot/rentals"
)

func testStore(t *testing.T) *rentals.Store {
	t.Helper()

	db, err := sqldb.OpenDuckDB(":memory:")
	if err != nil {
		t.Fatalf("OpenDuckDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	const schema = `
		CREATE TABLE rentals (
			zip  VARCHAR,
			city VARCHAR,
			rent DOUBLE
		)`

	if err := sqldb.ExecTx(t.Context(), db, schema); err != nil {
		t.Fatalf("ExecTx: %v", err)
	}

	const seed = `INSERT INTO rentals VALUES ('07302', 'Jersey City', 2900.0), ('80202', 'Denver', 2100.0)`

	if err := sqldb.ExecTx(t.Context(), db, seed); err != nil {
		t.Fatalf("ExecTx: %v", err)
	}

	store, err := rentals.NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	return store
}

type toolContent struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
}

func decodeResponse(t *testing.T, resp client.D) toolContent {
	t.Helper()

	content, ok := resp["content"].(string)
	if !ok {
		t.Fatalf("tool response has no content: %#v", resp)
	}

	var tc toolContent
	if err := json.Unmarshal([]byte(content), &tc); err != nil {
		t.Fatalf("unmarshal tool content: %v", err)
	}

	return tc
}

func call(name string, args map[string]any) client.ToolCall {
	return client.ToolCall{
		ID:   "call_1",
		Type: "function",
		Function: client.Function{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestListTables(t *testing.T) {
	registry := map[string]tools.Tool{}
	tools.RegisterListTables(registry, testStore(t))

	resp := registry["list_sql_database_tool"].Call(t.Context(), call("list_sql_database_tool", nil))

	tc := decodeResponse(t, resp)
	if tc.Status != "SUCCESS" {
		t.Fatalf("got status %q: %v", tc.Status, tc.Data)
	}

	tables, _ := tc.Data["tables"].([]any)
	if len(tables) != 1 || tables[0] != "rentals" {
		t.Fatalf("got tables %v, want [rentals]", tables)
	}
}

func TestTableInfoTool(t *testing.T) {
	registry := map[string]tools.Tool{}
	tools.RegisterTableInfo(registry, testStore(t))

	resp := registry["info_sql_database_tool"].Call(t.Context(), call("info_sql_database_tool", map[string]any{
		"table_names": "rentals",
	}))

	tc := decodeResponse(t, resp)
	if tc.Status != "SUCCESS" {
		t.Fatalf("got status %q: %v", tc.Status, tc.Data)
	}

	if _, exists := tc.Data["schema"]; !exists {
		t.Fatal("missing schema in tool data")
	}
}

func TestTableInfoToolMissingArg(t *testing.T) {
	registry := map[string]tools.Tool{}
	tools.RegisterTableInfo(registry, testStore(t))

	// No table_names argument. The type assertion panic must surface as a
	// FAILED response, not a crash.
	resp := registry["info_sql_database_tool"].Call(t.Context(), call("info_sql_database_tool", map[string]any{}))

	tc := decodeResponse(t, resp)
	if tc.Status != "FAILED" {
		t.Fatalf("got status %q, want FAILED", tc.Status)
	}
}

func TestQuerySQLTool(t *testing.T) {
	registry := map[string]tools.Tool{}
	tools.RegisterQuerySQL(registry, testStore(t), 50)

	resp := registry["query_sql_database_tool"].Call(t.Context(), call("query_sql_database_tool", map[string]any{
		"query": "SELECT city FROM rentals ORDER BY rent DESC",
	}))

	tc := decodeResponse(t, resp)
	if tc.Status != "SUCCESS" {
		t.Fatalf("got status %q: %v", tc.Status, tc.Data)
	}

	if n, _ := tc.Data["row_count"].(float64); n != 2 {
		t.Fatalf("got row_count %v, want 2", tc.Data["row_count"])
	}
}

func TestQuerySQLToolRejectsDML(t *testing.T) {
	registry := map[string]tools.Tool{}
	tools.RegisterQuerySQL(registry, testStore(t), 50)

	resp := registry["query_sql_database_tool"].Call(t.Context(), call("query_sql_database_tool", map[string]any{
		"query": "DROP TABLE rentals",
	}))

	tc := decodeResponse(t, resp)
	if tc.Status != "FAILED" {
		t.Fatalf("got status %q, want FAILED", tc.Status)
	}
}

func TestCheckSQLTool(t *testing.T) {
	registry := map[string]tools.Tool{}
	tools.RegisterCheckSQL(registry, testStore(t))

	resp := registry["query_sql_checker_tool"].Call(t.Context(), call("query_sql_checker_tool", map[string]any{
		"query": "SELECT avg(rent) FROM rentals",
	}))

	if tc := decodeResponse(t, resp); tc.Status != "SUCCESS" {
		t.Fatalf("got status %q: %v", tc.Status, tc.Data)
	}

	resp = registry["query_sql_checker_tool"].Call(t.Context(), call("query_sql_checker_tool", map[string]any{
		"query": "SELEC avg(rent) FROM rentals",
	}))

	if tc := decodeResponse(t, resp); tc.Status != "FAILED" {
		t.Fatalf("got status %q, want FAILED", tc.Status)
	}
}

func TestCurrentDatetimeTool(t *testing.T) {
	registry := map[string]tools.Tool{}
	tools.RegisterCurrentDatetime(registry)

	resp := registry["get_current_datetime"].Call(t.Context(), call("get_current_datetime", nil))

	tc := decodeResponse(t, resp)
	if tc.Status != "SUCCESS" {
		t.Fatalf("got status %q", tc.Status)
	}

	if _, exists := tc.Data["datetime"]; !exists {
		t.Fatal("missing datetime in tool data")
	}
}

// =============================================================================

type stubForecaster struct {
	fc  chronos.Forecast
	err error
}

func (s *stubForecaster) Predict(ctx context.Context, historical []float64, length int) (chronos.Forecast, error) {
	if s.err != nil {
		return chronos.Forecast{}, s.err
	}
	return s.fc, nil
}

func TestForecastTool(t *testing.T) {
	registry := map[string]tools.Tool{}
	tools.RegisterForecast(registry, &stubForecaster{
		fc: chronos.Forecast{
			Median: []float64{2000, 2050},
			Low:    []float64{1900, 1940},
			High:   []float64{2100, 2160},
		},
	})

	resp := registry["get_time_series_prediction"].Call(t.Context(), call("get_time_series_prediction", map[string]any{
		"historical_values":           []any{1500.0, 1600.0, 1700.0},
		"number_of_values_to_predict": 2.0,
	}))

	tc := decodeResponse(t, resp)
	if tc.Status != "SUCCESS" {
		t.Fatalf("got status %q: %v", tc.Status, tc.Data)
	}

	median, _ := tc.Data["median"].([]any)
	if len(median) != 2 {
		t.Fatalf("got median %v, want 2 values", tc.Data["median"])
	}
}

func TestForecastToolError(t *testing.T) {
	registry := map[string]tools.Tool{}
	tools.RegisterForecast(registry, &stubForecaster{err: fmt.Errorf("service down")})

	resp := registry["get_time_series_prediction"].Call(t.Context(), call("get_time_series_prediction", map[string]any{
		"historical_values":           []any{1500.0},
		"number_of_values_to_predict": 2.0,
	}))

	if tc := decodeResponse(t, resp); tc.Status != "FAILED" {
		t.Fatalf("got status %q, want FAILED", tc.Status)
	}
}
