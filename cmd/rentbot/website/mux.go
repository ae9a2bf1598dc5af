package website

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hometrics/rentbot/agent"
)

type Config struct {
	Agent   *agent.Agent
	Timeout time.Duration
	DB      *sqlx.DB
}

func WebAPI(cfg Config) http.Handler {
	mux := http.NewServeMux()

	rts := handlers{
		agent:   cfg.Agent,
		timeout: cfg.Timeout,
		db:      cfg.DB,
	}

	mux.HandleFunc("POST /chat", rts.chat)
	mux.HandleFunc("GET /healthz", rts.healthz)
	mux.HandleFunc("/", rts.fileServer())

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func sendError(w http.ResponseWriter, traceID string, context string, err error) {
	fmt.Printf("traceID: %s: chat: %s: ERROR: %s\n", traceID, context, err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
