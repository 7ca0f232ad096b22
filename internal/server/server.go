// Package server exposes chart documents and cached tables over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/verte-zerg/sparcsviz/internal/aggregate"
	"github.com/verte-zerg/sparcsviz/internal/charts"
	apperrors "github.com/verte-zerg/sparcsviz/internal/errors"
	"github.com/verte-zerg/sparcsviz/internal/model"
	"github.com/verte-zerg/sparcsviz/internal/telemetry"
)

// Config holds server settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Source is reported by /healthz.
	Source string
}

// Server serves a loaded Catalog. It never mutates the catalog, so
// handlers run concurrently without locks.
type Server struct {
	config  Config
	catalog *aggregate.Catalog
	metrics *telemetry.Metrics
	clock   func() time.Time
}

// New builds a server over a loaded catalog. metrics may be nil.
func New(config Config, catalog *aggregate.Catalog, metrics *telemetry.Metrics) *Server {
	return &Server{
		config:  config,
		catalog: catalog,
		metrics: metrics,
		clock:   time.Now,
	}
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /charts", s.handleKinds)
	mux.HandleFunc("GET /charts/{kind}", s.handleChart)
	mux.HandleFunc("GET /tables", s.handleTables)
	mux.HandleFunc("GET /tables/{name}", s.handleTable)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("serving %d charts on %s", len(charts.Kinds()), s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Printf("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

type kindResponse struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tables      []string `json:"tables"`
	Params      []string `json:"params"`
}

func (s *Server) handleKinds(w http.ResponseWriter, _ *http.Request) {
	kinds := charts.Describe()
	out := make([]kindResponse, len(kinds))
	for i, k := range kinds {
		out[i] = kindResponse{Name: k.Name, Description: k.Description, Tables: nonNil(k.Tables), Params: nonNil(k.Params)}
	}
	writeJSON(w, http.StatusOK, map[string]any{"kinds": out})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	query := r.URL.Query()
	pretty := query.Get("pretty") != ""
	params := make(map[string]string, len(query))
	for key := range query {
		if key != "pretty" {
			params[key] = query.Get(key)
		}
	}

	start := s.clock()
	body, err := s.render(r.Context(), kind, params, pretty)
	if s.metrics != nil {
		s.metrics.ObserveBuild(kind, err, s.clock().Sub(start))
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) render(ctx context.Context, kind string, params map[string]string, pretty bool) ([]byte, error) {
	doc, err := charts.BuildContext(ctx, s.catalog, kind, params)
	if err != nil {
		return nil, err
	}
	if pretty {
		return doc.Pretty()
	}
	return doc.Serialize()
}

func (s *Server) handleTables(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tables": nonNil(s.catalog.Names())})
}

type columnResponse struct {
	Name string          `json:"name"`
	Type model.FieldType `json:"type"`
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	tbl, ok := s.catalog.Table(name)
	if !ok {
		writeError(w, apperrors.WithMetadata(apperrors.CodeNotFound, "table not found", map[string]string{"table": name}))
		return
	}
	cols := tbl.Columns()
	out := make([]columnResponse, len(cols))
	for i, c := range cols {
		out[i] = columnResponse{Name: c.Name, Type: c.Type}
	}
	rows := tbl.Rows()
	if rows == nil {
		rows = []model.Row{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": tbl.Name(), "columns": out, "rows": rows})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"source": s.config.Source,
		"tables": s.catalog.Len(),
	})
}

type errorResponse struct {
	Code     apperrors.Code    `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := code.HTTPStatus()
	resp := errorResponse{Code: code, Message: err.Error()}
	if de, ok := apperrors.As(err); ok {
		resp.Metadata = de.Metadata
	}
	if status >= http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
