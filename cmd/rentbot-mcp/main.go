// Rentbot-mcp exposes the rentals SQL and forecasting tools over the MCP
// SSE protocol so other agent hosts can use them. It reads the same database
// the rentbot service ingests.
//
// # Running the server:
//
//	$ export DB_PATH=zarf/data/rentals.db
//	$ go run ./cmd/rentbot-mcp

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hometrics/rentbot/foundation/chronos"
	"github.com/hometrics/rentbot/foundation/sqldb"
	"github.com/hometrics/rentbot/rentals"
)

const queryMaxRows = 50

var (
	mcpHost    = "0.0.0.0:8000"
	dbPath     = "zarf/data/rentals.db"
	chronosURL = "http://localhost:8090/forecast"
)

func init() {
	if v := os.Getenv("MCP_HOST"); v != "" {
		mcpHost = v
	}

	if v := os.Getenv("DB_PATH"); v != "" {
		dbPath = v
	}

	if v := os.Getenv("CHRONOS_SERVER"); v != "" {
		chronosURL = v
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run() error {
	db, err := sqldb.OpenDuckDB(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	store, err := rentals.NewStore(db)
	if err != nil {
		return fmt.Errorf("new store: %w", err)
	}

	tls := mcpTools{
		store:      store,
		forecaster: chronos.New(chronosURL),
	}

	rentalTools := mcp.NewServer(&mcp.Implementation{Name: "rental_tools", Version: "v1.0.0"}, nil)

	f := func(request *http.Request) *mcp.Server {
		url := request.URL.Path

		switch url {
		case tls.RegisterListTablesTool(rentalTools),
			tls.RegisterTableInfoTool(rentalTools),
			tls.RegisterQuerySQLTool(rentalTools),
			tls.RegisterCheckSQLTool(rentalTools),
			tls.RegisterCurrentDatetimeTool(rentalTools),
			tls.RegisterForecastTool(rentalTools):
			return rentalTools

		default:
			return mcp.NewServer(&mcp.Implementation{Name: "unknown_tool", Version: "v1.0.0"}, nil)
		}
	}

	handler := mcp.NewSSEHandler(f, &mcp.SSEOptions{})

	fmt.Printf("mcp server serving at %s\n", mcpHost)

	return http.ListenAndServe(mcpHost, handler)
}

// =============================================================================

// mcpTools holds the dependencies the tool handlers need.
type mcpTools struct {
	store      *rentals.Store
	forecaster *chronos.Chronos
}

// RegisterListTablesTool registers the list tables tool with the given MCP server.
func (tls mcpTools) RegisterListTablesTool(mcpServer *mcp.Server) string {
	const toolName = "list_sql_database_tool"
	const toolDescription = "Input is an empty string, output is a comma-separated list of tables in the database."

	mcp.AddTool(mcpServer, &mcp.Tool{Name: toolName, Description: toolDescription}, tls.ListTablesHandler)

	return "/" + toolName
}

// ListTablesToolParams represents the parameters for this tool call.
type ListTablesToolParams struct{}

// ListTablesHandler returns the tables present in the rentals database.
func (tls mcpTools) ListTablesHandler(ctx context.Context, req *mcp.CallToolRequest, params ListTablesToolParams) (*mcp.CallToolResult, any, error) {
	tables, err := tls.store.Tables(ctx)
	if err != nil {
		return nil, nil, err
	}

	return textResult(struct {
		Tables string `json:"tables"`
	}{
		Tables: strings.Join(tables, ", "),
	})
}

// =============================================================================

// RegisterTableInfoTool registers the table info tool with the given MCP server.
func (tls mcpTools) RegisterTableInfoTool(mcpServer *mcp.Server) string {
	const toolName = "info_sql_database_tool"
	const toolDescription = "Input is a comma-separated list of tables, output is the schema and sample rows for those tables."

	mcp.AddTool(mcpServer, &mcp.Tool{Name: toolName, Description: toolDescription}, tls.TableInfoHandler)

	return "/" + toolName
}

// TableInfoToolParams represents the parameters for this tool call.
type TableInfoToolParams struct {
	TableNames string `json:"table_names" jsonschema:"A comma-separated list of table names to describe."`
}

// TableInfoHandler returns the schema and sample rows for the named tables.
func (tls mcpTools) TableInfoHandler(ctx context.Context, req *mcp.CallToolRequest, params TableInfoToolParams) (*mcp.CallToolResult, any, error) {
	info, err := tls.store.TableInfo(ctx, strings.Split(params.TableNames, ","))
	if err != nil {
		return nil, nil, err
	}

	return textResult(struct {
		Info string `json:"info"`
	}{
		Info: info,
	})
}

// =============================================================================

// RegisterQuerySQLTool registers the query tool with the given MCP server.
func (tls mcpTools) RegisterQuerySQLTool(mcpServer *mcp.Server) string {
	const toolName = "query_sql_database_tool"
	const toolDescription = "Input is a detailed and correct SQL query, output is a result from the database. Only SELECT statements are accepted."

	mcp.AddTool(mcpServer, &mcp.Tool{Name: toolName, Description: toolDescription}, tls.QuerySQLHandler)

	return "/" + toolName
}

// QuerySQLToolParams represents the parameters for this tool call.
type QuerySQLToolParams struct {
	Query string `json:"query" jsonschema:"A single SELECT statement to execute."`
}

// QuerySQLHandler executes a read-only query against the rentals database.
func (tls mcpTools) QuerySQLHandler(ctx context.Context, req *mcp.CallToolRequest, params QuerySQLToolParams) (*mcp.CallToolResult, any, error) {
	rows, err := tls.store.Query(ctx, params.Query, queryMaxRows)
	if err != nil {
		return nil, nil, err
	}

	return textResult(struct {
		Rows []map[string]any `json:"rows"`
	}{
		Rows: rows,
	})
}

// =============================================================================

// RegisterCheckSQLTool registers the query checker tool with the given MCP server.
func (tls mcpTools) RegisterCheckSQLTool(mcpServer *mcp.Server) string {
	const toolName = "query_sql_checker_tool"
	const toolDescription = "Input is a SQL query, output reports whether the query is a valid single SELECT statement."

	mcp.AddTool(mcpServer, &mcp.Tool{Name: toolName, Description: toolDescription}, tls.CheckSQLHandler)

	return "/" + toolName
}

// CheckSQLToolParams represents the parameters for this tool call.
type CheckSQLToolParams struct {
	Query string `json:"query" jsonschema:"The SQL statement to validate."`
}

// CheckSQLHandler validates a query without executing it.
func (tls mcpTools) CheckSQLHandler(ctx context.Context, req *mcp.CallToolRequest, params CheckSQLToolParams) (*mcp.CallToolResult, any, error) {
	if err := tls.store.CheckQuery(params.Query); err != nil {
		return textResult(struct {
			Valid bool   `json:"valid"`
			Error string `json:"error"`
		}{
			Valid: false,
			Error: err.Error(),
		})
	}

	return textResult(struct {
		Valid bool `json:"valid"`
	}{
		Valid: true,
	})
}

// =============================================================================

// RegisterCurrentDatetimeTool registers the datetime tool with the given MCP server.
func (tls mcpTools) RegisterCurrentDatetimeTool(mcpServer *mcp.Server) string {
	const toolName = "get_current_datetime"
	const toolDescription = "Returns the current date and time in RFC3339 format."

	mcp.AddTool(mcpServer, &mcp.Tool{Name: toolName, Description: toolDescription}, tls.CurrentDatetimeHandler)

	return "/" + toolName
}

// CurrentDatetimeToolParams represents the parameters for this tool call.
type CurrentDatetimeToolParams struct{}

// CurrentDatetimeHandler returns the current time.
func (tls mcpTools) CurrentDatetimeHandler(ctx context.Context, req *mcp.CallToolRequest, params CurrentDatetimeToolParams) (*mcp.CallToolResult, any, error) {
	return textResult(struct {
		CurrentDatetime string `json:"current_datetime"`
	}{
		CurrentDatetime: time.Now().Format(time.RFC3339),
	})
}

// =============================================================================

// RegisterForecastTool registers the forecasting tool with the given MCP server.
func (tls mcpTools) RegisterForecastTool(mcpServer *mcp.Server) string {
	const toolName = "get_time_series_prediction"
	const toolDescription = "Input is a series of historical values and the number of future values to predict, output is the median prediction with an 80 percent interval."

	mcp.AddTool(mcpServer, &mcp.Tool{Name: toolName, Description: toolDescription}, tls.ForecastHandler)

	return "/" + toolName
}

// ForecastToolParams represents the parameters for this tool call.
type ForecastToolParams struct {
	HistoricalValues []float64 `json:"historical_values" jsonschema:"The historical values ordered oldest to newest."`
	PredictionLength int       `json:"number_of_values_to_predict" jsonschema:"How many future values to predict."`
}

// ForecastHandler asks the inference service for a forecast of the series.
func (tls mcpTools) ForecastHandler(ctx context.Context, req *mcp.CallToolRequest, params ForecastToolParams) (*mcp.CallToolResult, any, error) {
	forecast, err := tls.forecaster.Predict(ctx, params.HistoricalValues, params.PredictionLength)
	if err != nil {
		return nil, nil, err
	}

	return textResult(struct {
		Median []float64 `json:"median"`
		Low    []float64 `json:"low"`
		High   []float64 `json:"high"`
	}{
		Median: forecast.Median,
		Low:    forecast.Low,
		High:   forecast.High,
	})
}

// =============================================================================

func textResult(info any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(info)
	if err != nil {
		return nil, nil, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{
			Text: string(data),
		}},
	}, nil, nil
}
