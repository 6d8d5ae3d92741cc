// Package report serves the outcome of wat runs: an HTML index of the
// latest run, run history as JSON, the captured images with thumbnails,
// Prometheus metrics and the same data as MCP tools.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/wat/capture"
	"github.com/hazyhaar/wat/history"
	"github.com/hazyhaar/wat/horosafe"
	"github.com/hazyhaar/wat/observability"
	"github.com/hazyhaar/wat/shield"
	"github.com/hazyhaar/wat/suite"
)

// Server exposes a capture store and its run history.
type Server struct {
	Store   capture.Store
	History *history.Store // optional
	Suite   *suite.Suite   // comparisons and approvals; Store must match
	Logger  *slog.Logger
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.Stack(s.logger()) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(observability.Registry, promhttp.HandlerOpts{}))

	r.Get("/", s.handleIndex)
	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/latest", s.handleRun)
		r.Get("/runs/{runID}", s.handleRun)
		r.Get("/artifacts/{ns}", s.handleArtifacts)
	})
	r.Get("/img/{ns}/{actor}/{tag}", s.handleImage)
	r.Get("/thumb/{ns}/{actor}/{tag}", s.handleThumb)
	return r
}

// ListenAndServe serves Handler on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger().Info("report: listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger().Info("report: stopped")
	return nil
}

func validNamespace(ns string) bool {
	return ns == capture.Latest || ns == capture.Reference || ns == capture.Diff
}

// imagePath resolves a capture path from untrusted route parameters.
func (s *Server) imagePath(r *http.Request) (string, error) {
	ns := chi.URLParam(r, "ns")
	if !validNamespace(ns) {
		return "", fs.ErrNotExist
	}
	actor, tag := chi.URLParam(r, "actor"), chi.URLParam(r, "tag")
	if err := horosafe.ValidateIdentifier(actor); err != nil {
		return "", err
	}
	if err := horosafe.ValidateIdentifier(tag); err != nil {
		return "", err
	}
	return horosafe.SafePath(s.Store.Root, ns+"/"+actor+"/"+tag+".png")
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	path, err := s.imagePath(r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, path)
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	ns := chi.URLParam(r, "ns")
	if !validNamespace(ns) {
		writeError(w, http.StatusNotFound, fs.ErrNotExist)
		return
	}
	arts, err := s.Store.List(ns)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if arts == nil {
		arts = []capture.Artifact{}
	}
	writeJSON(w, http.StatusOK, arts)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeJSON(w, http.StatusOK, []history.Run{})
		return
	}
	runs, err := s.History.Runs(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeError(w, http.StatusNotFound, history.ErrNotFound)
		return
	}
	var (
		d   history.Detail
		err error
	)
	if id := chi.URLParam(r, "runID"); id != "" {
		d, err = s.History.Get(r.Context(), id)
	} else {
		d, err = s.History.Latest(r.Context())
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, history.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, horosafe.ErrPathTraversal):
		return http.StatusBadRequest
	}
	var ioErr *capture.IOError
	if errors.As(err, &ioErr) {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
