package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/eviatarm/go-spotify-history-enricher/internal/db"
	"github.com/eviatarm/go-spotify-history-enricher/internal/enrich"
	"github.com/eviatarm/go-spotify-history-enricher/internal/history"
)

// Backend supplies the data the API serves.
type Backend interface {
	// LatestRun returns the most recent run, or db.ErrNotFound.
	LatestRun(ctx context.Context) (*db.Run, error)
	// AllFailures returns every recorded fetch failure.
	AllFailures(ctx context.Context) ([]db.FetchFailure, error)
	// Dataset builds the enriched dataset.
	Dataset(ctx context.Context) (*enrich.Dataset, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	backend Backend
	logger  *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(backend Backend, logger *zap.Logger) *Handlers {
	return &Handlers{backend: backend, logger: logger}
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Report handles GET /api/report, returning the latest run report.
func (h *Handlers) Report(w http.ResponseWriter, r *http.Request) {
	run, err := h.backend.LatestRun(r.Context())
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "no completed runs", http.StatusNotFound)
		return
	}
	if err != nil {
		h.serverError(w, "loading latest run", err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	// The report is stored as a JSON document; serve it as-is.
	_, _ = w.Write(run.Report)
}

// Failures handles GET /api/failures.
func (h *Handlers) Failures(w http.ResponseWriter, r *http.Request) {
	failures, err := h.backend.AllFailures(r.Context())
	if err != nil {
		h.serverError(w, "loading failures", err)
		return
	}
	if failures == nil {
		failures = []db.FetchFailure{}
	}
	h.writeJSON(w, http.StatusOK, failures)
}

// Dataset handles GET /api/dataset.
func (h *Handlers) Dataset(w http.ResponseWriter, r *http.Request) {
	dataset, err := h.backend.Dataset(r.Context())
	if err != nil {
		h.serverError(w, "building dataset", err)
		return
	}
	h.writeJSON(w, http.StatusOK, dataset)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encoding response", zap.Error(err))
	}
}

func (h *Handlers) serverError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// StoreBackend implements Backend over the cache database and a loaded
// history.
type StoreBackend struct {
	DB      *db.DB
	History *history.Store
}

func (b *StoreBackend) LatestRun(ctx context.Context) (*db.Run, error) {
	return b.DB.Runs().Latest(ctx)
}

func (b *StoreBackend) AllFailures(ctx context.Context) ([]db.FetchFailure, error) {
	return b.DB.Failures().All(ctx)
}

func (b *StoreBackend) Dataset(ctx context.Context) (*enrich.Dataset, error) {
	return enrich.BuildDataset(ctx, b.History, b.DB)
}
