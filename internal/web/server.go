// Package web provides an HTTP status server for the pedal decoder daemon.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/sweeney/pedal-decoder/internal/driver"
	"github.com/sweeney/pedal-decoder/internal/status"
)

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	toggle     func() error
}

// New creates a Server that reads state from the given tracker. If toggle is
// non-nil, POST /relay/toggle calls it.
func New(addr string, tracker *status.Tracker, toggle func() error) *Server {
	s := &Server{tracker: tracker, toggle: toggle}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/relay/toggle", s.handleToggle)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap, s.toggle != nil)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if s.toggle == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.toggle(); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, driver.ErrRelayThrottled) {
			code = http.StatusTooManyRequests
		}
		http.Error(w, err.Error(), code)
		return
	}
	// The status page form posts without asking for JSON.
	if r.Header.Get("Accept") == "application/json" {
		w.Header().Set("Content-Type", "application/json")
		w.Write(status.FormatJSON(s.tracker.Snapshot()))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
