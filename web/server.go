// Package web serves the scan history, statistics and the runtime
// configuration as a small JSON API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"lautenbacher.net/gorfid/config"
	"lautenbacher.net/gorfid/scanner"
	"lautenbacher.net/gorfid/util"
)

// ScanSource is the part of the scanner the API reads from.
type ScanSource interface {
	History() []util.ScanEvent
	Latest() *util.AtomicEvent[util.ScanEvent]
	Stats() scanner.Stats
}

type Server struct {
	scans  ScanSource
	cfile  string
	srv    *http.Server
	router *mux.Router
}

func NewServer(addr string, scans ScanSource, cfile string) *Server {
	s := &Server{
		scans: scans,
		cfile: cfile,
	}
	s.router = s.routes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.getHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/scans", s.getScans).Methods(http.MethodGet)
	r.HandleFunc("/api/scans/latest", s.getLatest).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.getStats).Methods(http.MethodGet)
	r.Handle("/api/config", config.ConfigHandler(s.cfile)).Methods(http.MethodGet, http.MethodPost)
	return r
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	slog.Info("Web API listening", "address", ln.Addr().String())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Web API stopped unexpectedly", "error", err)
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		slog.Error("Error shutting down web API", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func (s *Server) getScans(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.scans.History())
}

func (s *Server) getLatest(w http.ResponseWriter, _ *http.Request) {
	ev, ok := s.scans.Latest().Value()
	if !ok {
		http.Error(w, "No scan yet", http.StatusNotFound)
		return
	}
	writeJSON(w, ev)
}

func (s *Server) getStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.scans.Stats())
}
