package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/hometrics/rentbot/foundation/client"
	"github.com/hometrics/rentbot/rentals"
)

// ListTables lets the model discover what tables exist. The system prompt
// instructs the model to always start here.
type ListTables struct {
	name  string
	store *rentals.Store
}

func RegisterListTables(tools map[string]Tool, store *rentals.Store) client.D {
	lt := ListTables{
		name:  "list_sql_database_tool",
		store: store,
	}
	tools[lt.name] = &lt

	return lt.toolDocument()
}

func (lt *ListTables) toolDocument() client.D {
	return client.D{
		"type": "function",
		"function": client.D{
			"name":        lt.name,
			"description": "List the names of all tables in the database. Always call this first to see what you can query.",
			"parameters": client.D{
				"type":       "object",
				"properties": client.D{},
			},
		},
	}
}

func (lt *ListTables) Call(ctx context.Context, toolCall client.ToolCall) (resp client.D) {
	defer func() {
		if r := recover(); r != nil {
			resp = ErrorResponse(toolCall.ID, fmt.Errorf("%s", r))
		}
	}()

	tables, err := lt.store.Tables(ctx)
	if err != nil {
		return ErrorResponse(toolCall.ID, err)
	}

	return SuccessResponse(toolCall.ID, "tables", tables)
}

// =============================================================================

// TableInfo returns schema and sample rows for the requested tables.
type TableInfo struct {
	name  string
	store *rentals.Store
}

func RegisterTableInfo(tools map[string]Tool, store *rentals.Store) client.D {
	ti := TableInfo{
		name:  "info_sql_database_tool",
		store: store,
	}
	tools[ti.name] = &ti

	return ti.toolDocument()
}

func (ti *TableInfo) toolDocument() client.D {
	return client.D{
		"type": "function",
		"function": client.D{
			"name":        ti.name,
			"description": "Get the schema and sample rows for the specified tables. Call list_sql_database_tool first to know the table names.",
			"parameters": client.D{
				"type": "object",
				"properties": client.D{
					"table_names": client.D{
						"type":        "string",
						"description": "A comma separated list of table names, e.g. 'rentals'",
					},
				},
				"required": []string{"table_names"},
			},
		},
	}
}

func (ti *TableInfo) Call(ctx context.Context, toolCall client.ToolCall) (resp client.D) {
	defer func() {
		if r := recover(); r != nil {
			resp = ErrorResponse(toolCall.ID, fmt.Errorf("%s", r))
		}
	}()

	names := toolCall.Function.Arguments["table_names"].(string)

	info, err := ti.store.TableInfo(ctx, strings.Split(names, ","))
	if err != nil {
		return ErrorResponse(toolCall.ID, err)
	}

	return SuccessResponse(toolCall.ID, "schema", info)
}

// =============================================================================

// QuerySQL executes a read-only query against the rentals database.
type QuerySQL struct {
	name    string
	store   *rentals.Store
	maxRows int
}

func RegisterQuerySQL(tools map[string]Tool, store *rentals.Store, maxRows int) client.D {
	qs := QuerySQL{
		name:    "query_sql_database_tool",
		store:   store,
		maxRows: maxRows,
	}
	tools[qs.name] = &qs

	return qs.toolDocument()
}

func (qs *QuerySQL) toolDocument() client.D {
	return client.D{
		"type": "function",
		"function": client.D{
			"name":        qs.name,
			"description": "Execute a SQL SELECT query and return the result rows. Validate the query with query_sql_checker_tool first. If the query fails, rewrite it and try again.",
			"parameters": client.D{
				"type": "object",
				"properties": client.D{
					"query": client.D{
						"type":        "string",
						"description": "A syntactically correct SQL SELECT statement",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

func (qs *QuerySQL) Call(ctx context.Context, toolCall client.ToolCall) (resp client.D) {
	defer func() {
		if r := recover(); r != nil {
			resp = ErrorResponse(toolCall.ID, fmt.Errorf("%s", r))
		}
	}()

	query := toolCall.Function.Arguments["query"].(string)

	data, err := qs.store.Query(ctx, query, qs.maxRows)
	if err != nil {
		return ErrorResponse(toolCall.ID, err)
	}

	return SuccessResponse(toolCall.ID, "rows", data, "row_count", len(data))
}

// =============================================================================

// CheckSQL validates a query without executing it.
type CheckSQL struct {
	name  string
	store *rentals.Store
}

func RegisterCheckSQL(tools map[string]Tool, store *rentals.Store) client.D {
	cs := CheckSQL{
		name:  "query_sql_checker_tool",
		store: store,
	}
	tools[cs.name] = &cs

	return cs.toolDocument()
}

func (cs *CheckSQL) toolDocument() client.D {
	return client.D{
		"type": "function",
		"function": client.D{
			"name":        cs.name,
			"description": "Check a SQL query for syntax errors and forbidden statements before executing it. Always call this before query_sql_database_tool.",
			"parameters": client.D{
				"type": "object",
				"properties": client.D{
					"query": client.D{
						"type":        "string",
						"description": "The SQL query to validate",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

func (cs *CheckSQL) Call(ctx context.Context, toolCall client.ToolCall) (resp client.D) {
	defer func() {
		if r := recover(); r != nil {
			resp = ErrorResponse(toolCall.ID, fmt.Errorf("%s", r))
		}
	}()

	query := toolCall.Function.Arguments["query"].(string)

	if err := cs.store.CheckQuery(query); err != nil {
		return ErrorResponse(toolCall.ID, err)
	}

	return SuccessResponse(toolCall.ID, "valid", true, "query", query)
}
