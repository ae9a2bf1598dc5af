// Package website provides the api and web ui for the chatbot.
package website

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hometrics/rentbot/agent"
	"github.com/hometrics/rentbot/foundation/sqldb"
)

//go:embed static
var website embed.FS

const (
	websiteDir  = "static"
	websitePath = "/"
)

type handlers struct {
	agent   *agent.Agent
	timeout time.Duration
	db      *sqlx.DB
}

// chat runs one agent turn and streams the events back as SSE so the browser
// can render content as it arrives.
func (h *handlers) chat(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.NewString()

	fmt.Printf("traceID: %s: chat: started\n", traceID)
	defer fmt.Printf("traceID: %s: chat: complete\n", traceID)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, traceID, "NewDecoder", err)
		return
	}

	if req.Message == "" {
		sendError(w, traceID, "validate", fmt.Errorf("message is required"))
		return
	}

	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	fmt.Printf("traceID: %s: chat: session[%s] msg[%q]\n", traceID, req.SessionID, req.Message)

	flusher, ok := w.(http.Flusher)
	if !ok {
		sendError(w, traceID, "flusher", fmt.Errorf("streaming unsupported"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for ev := range h.agent.Chat(ctx, req.SessionID, req.Message) {
		data, err := json.Marshal(ev)
		if err != nil {
			fmt.Printf("traceID: %s: chat: marshal event: ERROR: %s\n", traceID, err)
			continue
		}

		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	statusCode := http.StatusOK

	if err := sqldb.StatusCheck(ctx, h.db); err != nil {
		status = fmt.Sprintf("db not ready: %s", err)
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (h *handlers) fileServer() func(w http.ResponseWriter, r *http.Request) {
	fSys, err := fs.Sub(website, websiteDir)
	if err != nil {
		fmt.Printf("switching to static folder: %s", err)
		return nil
	}

	fileServer := http.StripPrefix(websitePath, http.FileServer(http.FS(fSys)))

	f := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			p, err := website.ReadFile(fmt.Sprintf("%s/index.html", websiteDir))
			if err != nil {
				fmt.Printf("fileServer: index.html not found: %v\n", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write(p)
			return
		}

		fileServer.ServeHTTP(w, r)
	}

	return f
}
