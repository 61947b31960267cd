// Package status serves the interceptor's HTTP status surface: health, link
// statistics, Prometheus metrics and a websocket event stream.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/LeJamon/xrpl-interceptor/internal/peermanagement"
	"github.com/LeJamon/xrpl-interceptor/internal/peermanagement/metrics"
)

const shutdownTimeout = 5 * time.Second

// LinkSource provides the link state served by /health and /links.
// *peermanagement.Supervisor implements it.
type LinkSource interface {
	Snapshot() []peermanagement.LinkStats
	ActiveLinks() int
	Failures() map[string]error
}

// Server is the HTTP status server.
type Server struct {
	addr     string
	links    LinkSource
	registry *prometheus.Registry
	hub      *Hub
	logger   *zap.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// NewServer creates a status server listening on addr. A nil registry
// disables /metrics.
func NewServer(addr string, links LinkSource, registry *prometheus.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		addr:     addr,
		links:    links,
		registry: registry,
		hub:      NewHub(logger),
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/links", s.handleLinks)
	s.mux.HandleFunc("/events", s.handleEvents)
	if registry != nil {
		s.mux.Handle("/metrics", metrics.Handler(registry))
	}
	return s
}

// Pump publishes events until ch is closed or ctx is done.
func (s *Server) Pump(ctx context.Context, ch <-chan peermanagement.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.hub.Publish(ev)
		}
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("Status server listening", zap.String("address", ln.Addr().String()))

	select {
	case err := <-errCh:
		s.hub.Close()
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type healthResponse struct {
	Status   string `json:"status"`
	Links    int    `json:"links"`
	Failed   int    `json:"failed"`
	Watchers int    `json:"watchers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Links:    s.links.ActiveLinks(),
		Failed:   len(s.links.Failures()),
		Watchers: s.hub.Subscribers(),
	})
}

type linksResponse struct {
	Links    []peermanagement.LinkStats `json:"links"`
	Failures map[string]string          `json:"failures,omitempty"`
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	resp := linksResponse{Links: s.links.Snapshot()}
	if failures := s.links.Failures(); len(failures) > 0 {
		resp.Failures = make(map[string]string, len(failures))
		for id, err := range failures {
			resp.Failures[id] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Event subscriber upgrade failed", zap.Error(err))
		return
	}

	c := s.hub.add(conn)
	go s.hub.readLoop(c)
	go s.hub.writeLoop(c)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
