package http

import (
	"context"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"

	"github.com/couchcryptid/hdb-property-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/hdb-property-etl/internal/domain"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// PropertySource loads the enriched property table for display.
type PropertySource interface {
	Properties(ctx context.Context) (domain.PropertyTable, error)
}

// Server exposes the operational endpoints, plus the property
// dashboard when a PropertySource is configured.
type Server struct {
	httpServer *http.Server
	source     PropertySource
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, and /metrics
// routes. A non-nil source also mounts GET / and GET /api/properties.
func NewServer(addr string, ready ReadinessChecker, source PropertySource, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		source: source,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	if source != nil {
		mux.HandleFunc("GET /{$}", s.handleDashboard)
		mux.HandleFunc("GET /api/properties", s.handleProperties)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// propertiesView is the rendered table, shared by the HTML and JSON routes.
type propertiesView struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Count   int        `json:"count"`
	Town    string     `json:"town,omitempty"`
}

// loadView reads the table and applies the optional ?town= filter.
func (s *Server) loadView(r *http.Request) (propertiesView, error) {
	table, err := s.source.Properties(r.Context())
	if err != nil {
		return propertiesView{}, err
	}

	town := r.URL.Query().Get("town")
	records := table.Records
	if town != "" {
		records = lo.Filter(records, func(rec domain.PropertyRecord, _ int) bool {
			return rec.TownCode() == town
		})
	}

	rows := lo.Map(records, func(rec domain.PropertyRecord, _ int) []string {
		return lo.Map(table.Columns, func(col string, _ int) string { return rec.Get(col) })
	})
	return propertiesView{Columns: table.Columns, Rows: rows, Count: len(rows), Town: town}, nil
}

func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request) {
	view, err := s.loadView(r)
	if err != nil {
		s.logger.Warn("properties unavailable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	view, err := s.loadView(r)
	if err != nil {
		s.logger.Warn("properties unavailable", "error", err)
		http.Error(w, "property table not available: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, view); err != nil {
		s.logger.Error("render dashboard", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

// FileSource serves the enriched CSV written by the fetch command. The file
// is re-read on every request so a new run shows up without a restart.
type FileSource struct {
	Path string
}

func (f FileSource) Properties(_ context.Context) (domain.PropertyTable, error) {
	return csvfile.ReadTable(f.Path)
}

// CheckReadiness reports ready once the file can be loaded.
func (f FileSource) CheckReadiness(ctx context.Context) error {
	_, err := f.Properties(ctx)
	return err
}

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>HDB Property Information</title>
<style>
body { font-family: sans-serif; margin: 1.5rem; }
table { border-collapse: collapse; font-size: 0.85rem; }
th, td { border: 1px solid #ccc; padding: 0.25rem 0.5rem; text-align: left; }
th { background: #f0f0f0; position: sticky; top: 0; }
</style>
</head>
<body>
<h1>HDB Property Information</h1>
<p>{{.Count}} residential blocks{{if .Town}} in town code {{.Town}}{{end}}.</p>
<table>
<thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
</body>
</html>
`))
