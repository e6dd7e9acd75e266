// Command connmon-api serves aggregate flow statistics over HTTP from the
// observations ClickHouse stores, the read-side counterpart to
// cmd/connmon's optional persistent sink. Grounded on the teacher's
// cmd/ns-api/main.go, re-keyed to plain JSON instead of protojson since
// connmon carries no protobuf-generated types (see DESIGN.md).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"connmon/internal/config"
	"connmon/internal/query"
)

func main() {
	configPath := flag.String("c", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if !cfg.ClickHouse.Enabled {
		log.Fatalf("ClickHouse is not enabled in configuration; connmon-api has nothing to serve")
	}

	querier, err := query.NewQuerier(cfg.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to create querier: %v", err)
	}
	defer querier.Close()

	handler := &apiHandler{querier: querier}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/flows", handler.flowSummaries).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/flows/{name}/trace", handler.flowTrace).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("connmon-api listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("connmon-api shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("connmon-api exited.")
}

type apiHandler struct {
	querier *query.Querier
}

// flowSummaries handles GET /api/v1/flows?flow=<name>&since=<RFC3339>.
func (h *apiHandler) flowSummaries(w http.ResponseWriter, r *http.Request) {
	flowName := r.URL.Query().Get("flow")

	var since time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid since parameter, want RFC3339", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	summaries, err := h.querier.FlowSummaries(r.Context(), flowName, since)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, summaries)
}

// flowTrace handles GET /api/v1/flows/{name}/trace?limit=<n>.
func (h *apiHandler) flowTrace(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	rows, err := h.querier.FlowTrace(r.Context(), name, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("connmon-api: failed to encode response: %v", err)
	}
}
