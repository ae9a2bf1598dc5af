// Rentbot is a business and data analysis chatbot for home rental prices.
// It loads the zillow-viewer rentals dataset into a local database, exposes
// SQL and forecasting tools to a hosted model, and serves a chat UI.
//
// # Running the service:
//
//	$ export LLM_SERVER=http://localhost:8080/v1/chat/completions
//	$ export CHRONOS_SERVER=http://localhost:8090/forecast
//	$ go run ./cmd/rentbot

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hometrics/rentbot/agent"
	"github.com/hometrics/rentbot/agent/tools"
	"github.com/hometrics/rentbot/cmd/rentbot/website"
	"github.com/hometrics/rentbot/foundation/chronos"
	"github.com/hometrics/rentbot/foundation/client"
	"github.com/hometrics/rentbot/foundation/mongodb"
	"github.com/hometrics/rentbot/foundation/sqldb"
	"github.com/hometrics/rentbot/rentals"
)

const (
	webReadTimeout     = 10 * time.Second
	webWriteTimeout    = 300 * time.Second
	webIdleTimeout     = 120 * time.Second
	webShutdownTimeout = 20 * time.Second

	datasetName   = "misikoff/zillow-viewer"
	datasetConfig = "rentals"
	datasetSplit  = "train"

	queryMaxRows = 50
)

var (
	llmURL      = "http://localhost:8080/v1/chat/completions"
	llmModel    = "gpt-oss-20b-Q8_0"
	llmAPIKey   = ""
	chronosURL  = "http://localhost:8090/forecast"
	datasetHost = "https://datasets-server.huggingface.co"
	geoURL      = "https://raw.githubusercontent.com/scpike/us-state-county-zip/master/geo-data.csv"
	dbEngine    = "duckdb"
	dbPath      = "zarf/data/rentals.db"
	dbHost      = "localhost:5432"
	dbUser      = "postgres"
	dbPassword  = "postgres"
	dbName      = "postgres"
	webAPIHost  = "0.0.0.0:3000"
	maxRows     = 10_000
	sessions    = "memory"
	mongoHost   = "mongodb://localhost:27017"
)

func init() {
	for _, v := range []struct {
		env string
		dst *string
	}{
		{"LLM_SERVER", &llmURL},
		{"LLM_MODEL", &llmModel},
		{"LLM_API_KEY", &llmAPIKey},
		{"CHRONOS_SERVER", &chronosURL},
		{"DATASET_SERVER", &datasetHost},
		{"GEO_DATA_URL", &geoURL},
		{"DB_ENGINE", &dbEngine},
		{"DB_PATH", &dbPath},
		{"DB_HOST", &dbHost},
		{"DB_USER", &dbUser},
		{"DB_PASSWORD", &dbPassword},
		{"DB_NAME", &dbName},
		{"WEB_API_HOST", &webAPIHost},
		{"SESSION_STORE", &sessions},
		{"MONGO_SERVER", &mongoHost},
	} {
		if s := os.Getenv(v.env); s != "" {
			*v.dst = s
		}
	}

	if v := os.Getenv("INGEST_MAX_ROWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			maxRows = n
		}
	}
}

// =============================================================================

func main() {
	log.Default().SetOutput(os.Stdout)

	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	// -------------------------------------------------------------------------

	fmt.Println("startup: status: loading zip code geography")

	geo, err := rentals.FetchGeo(ctx, client.StdoutLogger, geoURL)
	if err != nil {
		return fmt.Errorf("fetch geo: %w", err)
	}

	fmt.Printf("startup: status: geo loaded: zips[%d]\n", len(geo))

	// -------------------------------------------------------------------------

	fmt.Println("startup: status: ingesting rentals dataset")

	dc := rentals.NewDatasetClient(client.StdoutLogger, datasetHost, datasetName, datasetConfig, datasetSplit)

	inserted, err := rentals.Ingest(ctx, db, dc, geo, rentals.IngestConfig{
		MaxRows: maxRows,
		Log:     client.StdoutLogger,
	})
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	fmt.Printf("startup: status: ingest complete: inserted[%d]\n", inserted)

	// -------------------------------------------------------------------------

	store, err := rentals.NewStore(db)
	if err != nil {
		return fmt.Errorf("new store: %w", err)
	}

	forecaster := chronos.New(chronosURL)

	registry := map[string]tools.Tool{}
	toolDocuments := []client.D{
		tools.RegisterListTables(registry, store),
		tools.RegisterTableInfo(registry, store),
		tools.RegisterQuerySQL(registry, store, queryMaxRows),
		tools.RegisterCheckSQL(registry, store),
		tools.RegisterCurrentDatetime(registry),
		tools.RegisterForecast(registry, forecaster),
	}

	sessionStore, err := openSessionStore(ctx)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}

	counter, err := agent.NewTiktokenCounter("cl100k_base")
	if err != nil {
		fmt.Printf("startup: status: tiktoken unavailable, using estimates: %s\n", err)
		counter = agent.NewEstimateCounter()
	}

	var llmOptions []func(cln *client.Client)
	if llmAPIKey != "" {
		llmOptions = append(llmOptions, client.WithAPIKey(llmAPIKey))
	}

	agt := agent.New(agent.Config{
		LLM:     client.NewLLM(llmURL, llmModel, llmOptions...),
		Store:   sessionStore,
		Counter: counter,
		Log:     client.StdoutLogger,
	}, registry, toolDocuments)

	// -------------------------------------------------------------------------

	fmt.Println("startup: status: initializing web api support")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	cfg := website.Config{
		Agent:   agt,
		Timeout: webWriteTimeout,
		DB:      db,
	}

	api := http.Server{
		Addr:         webAPIHost,
		Handler:      website.WebAPI(cfg),
		ReadTimeout:  webReadTimeout,
		WriteTimeout: webWriteTimeout,
		IdleTimeout:  webIdleTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		fmt.Println("startup: status: api router and website started: host", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		fmt.Println("shutdown: status: shutdown started: signal", sig)
		defer fmt.Println("shutdown: status: shutdown complete: signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), webShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}

func openDB() (*sqlx.DB, error) {
	switch dbEngine {
	case "duckdb":
		return sqldb.OpenDuckDB(dbPath)

	case "postgres":
		return sqldb.Open(sqldb.Config{
			User:       dbUser,
			Password:   dbPassword,
			Host:       dbHost,
			Name:       dbName,
			DisableTLS: true,
		})

	default:
		return nil, fmt.Errorf("unknown db engine: %q", dbEngine)
	}
}

func openSessionStore(ctx context.Context) (agent.SessionStore, error) {
	switch sessions {
	case "memory":
		return agent.NewMemoryStore(), nil

	case "mongo":
		cln, err := mongodb.Connect(ctx, mongoHost, os.Getenv("MONGO_USER"), os.Getenv("MONGO_PASSWORD"))
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}

		return agent.NewMongoStore(ctx, cln, "rentbot")

	default:
		return nil, fmt.Errorf("unknown session store: %q", sessions)
	}
}
