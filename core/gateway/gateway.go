// Package gateway serves the engine's artifacts over HTTP, read-only: the
// latest validation report, per-role patch artifacts and per-team patch
// documents, plus a websocket tap on the governance event stream. Mutations
// stay with the CLIs; the gateway exists so dashboards and reviewers do not
// need filesystem or Redis access.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/polgov/polgov/core/infra/artifacts"
	"github.com/polgov/polgov/core/infra/bus"
	"github.com/polgov/polgov/core/infra/logging"
	"github.com/polgov/polgov/core/infra/metrics"
	"github.com/polgov/polgov/core/linter"
	"github.com/polgov/polgov/core/teams"
)

const component = "gateway"

// Server is the read-only artifact gateway.
type Server struct {
	store    artifacts.Store
	events   *bus.Memory
	metrics  metrics.GatewayMetrics
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// New builds a gateway over the given artifact store. The event bus may be
// nil; the websocket endpoint then reports unavailability.
func New(store artifacts.Store, events *bus.Memory, gm metrics.GatewayMetrics) *Server {
	s := &Server{
		store:   store,
		events:  events,
		metrics: gm,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/report", s.instrument("report", s.handleReport))
	mux.HandleFunc("GET /api/v1/roles/{key}/artifacts", s.instrument("role_artifacts", s.handleRoleArtifacts))
	mux.HandleFunc("GET /api/v1/roles/{key}/artifacts/{kind}", s.instrument("role_artifact", s.handleRoleArtifact))
	mux.HandleFunc("GET /api/v1/teams/{key}/patches", s.instrument("team_patches", s.handleTeamPatches))
	mux.HandleFunc("GET /api/v1/teams/{key}/patches/latest", s.instrument("team_patch_latest", s.handleTeamPatchLatest))
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	s.mux = mux
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe runs the gateway until the context is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logging.Info(component, "listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) instrument(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		if s.metrics != nil {
			s.metrics.ObserveRequest(r.Method, route, strconv.Itoa(rec.status), time.Since(start).Seconds())
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var report linter.Report
	if _, err := s.store.Get(r.Context(), linter.ReportArtifact, &report); err != nil {
		http.Error(w, "no validation report available", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

var roleArtifactSuffixes = map[string]string{
	"patch":         ".patch",
	"patched":       ".patched",
	"reverse-patch": ".reverse-patch",
}

func (s *Server) handleRoleArtifacts(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	names, err := s.store.List(r.Context(), key+".")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(names) == 0 {
		http.Error(w, "no artifacts for role "+key, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"role": key, "artifacts": names})
}

func (s *Server) handleRoleArtifact(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	suffix, ok := roleArtifactSuffixes[r.PathValue("kind")]
	if !ok {
		http.Error(w, "unknown artifact kind", http.StatusBadRequest)
		return
	}
	var doc json.RawMessage
	if _, err := s.store.Get(r.Context(), key+suffix, &doc); err != nil {
		http.Error(w, "artifact not found", http.StatusNotFound)
		return
	}
	writeRaw(w, doc)
}

func (s *Server) handleTeamPatches(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	names, err := s.store.List(r.Context(), key+"_")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"team": key, "patches": names})
}

func (s *Server) handleTeamPatchLatest(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	name, err := teams.Latest(r.Context(), s.store, key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	var doc json.RawMessage
	if _, err := s.store.Get(r.Context(), name, &doc); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeRaw(w, doc)
}

// handleEvents upgrades to a websocket and mirrors governance events to the
// client until it disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch, cancel := s.events.Subscribe()
	defer cancel()

	// Reader goroutine notices client disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, open := <-ch:
			if !open {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					logging.Debug(component, "event write failed", "err", err)
				}
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, doc json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}
