// internal/server/router.go
//
// Status endpoints for a watched configuration.
//
// Context
// -------
// `confres watch --listen` serves the live snapshot so operators can see
// what a process would resolve right now:
//
//	GET /healthz        – liveness, always 200 "ok"
//	GET /metrics        – Prometheus exposition
//	GET /config         – masked JSON of the current snapshot
//	GET /config/{path}  – one gjson path out of that document
//	GET /files          – config files behind the snapshot
//
// Sensitive values are masked unless the router was built with reveal.

package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/confres/internal/middleware"
	"github.com/yanizio/confres/internal/printer"
	"github.com/yanizio/confres/internal/schema"
)

// Snapshot is what the router reads on every request; *watch.Watcher
// satisfies it.
type Snapshot interface {
	Config() map[string]any
	Files() []string
}

// Router builds the status handler.
func Router(src Snapshot, s schema.Node, reveal bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Security)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", promhttp.Handler())

	render := func(w http.ResponseWriter) ([]byte, bool) {
		doc, err := printer.JSON(src.Config(), s, printer.Options{Reveal: reveal})
		if err != nil {
			zap.S().Errorw("status render failed", "err", err)
			http.Error(w, "render error", http.StatusInternalServerError)
			return nil, false
		}
		return doc, true
	}

	r.Get("/config", func(w http.ResponseWriter, _ *http.Request) {
		doc, ok := render(w)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	})

	r.Get("/config/*", func(w http.ResponseWriter, req *http.Request) {
		doc, ok := render(w)
		if !ok {
			return
		}
		raw, found := printer.Query(doc, chi.URLParam(req, "*"))
		if !found {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(raw + "\n"))
	})

	r.Get("/files", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		files := src.Files()
		if files == nil {
			files = []string{}
		}
		if err := json.NewEncoder(w).Encode(files); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	return r
}
