// Package webui hosts the web fragments components register while a flow
// runs, together with the run history and live component status.
package webui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/seasr/flowkit/internal/flow"
	"github.com/seasr/flowkit/internal/state"
)

// Config holds configuration for the web UI server.
type Config struct {
	Host   string
	Port   int
	Store  state.Store
	Logger *slog.Logger
}

// Server serves registered fragments, the run list and run events. It
// implements component.WebUI.
type Server struct {
	host     string
	port     int
	store    state.Store
	logger   *slog.Logger
	notifier *Notifier

	mu        sync.RWMutex
	fragments map[string]http.Handler
}

// NewServer creates a server. Store may be nil, in which case the run
// endpoints answer 503.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		host:      cfg.Host,
		port:      cfg.Port,
		store:     cfg.Store,
		logger:    logger,
		notifier:  NewNotifier(),
		fragments: make(map[string]http.Handler),
	}
}

// Register serves h at path until it is unregistered.
func (s *Server) Register(path string, h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fragments[path]; ok {
		s.logger.Warn("replacing web fragment", "path", path)
	}
	s.fragments[path] = h
}

// Unregister stops serving path.
func (s *Server) Unregister(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fragments, path)
}

// Fragments returns the registered paths in sorted order.
func (s *Server) Fragments() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.fragments))
	for p := range s.fragments {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Publish forwards a runner event to the connected event streams. It is
// meant to be used as flow.Config.OnEvent.
func (s *Server) Publish(ev flow.Event) {
	s.notifier.Publish(ev)
}

// Notifier returns the server's event notifier.
func (s *Server) Notifier() *Notifier {
	return s.notifier
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Get("/", s.handleIndex)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleRuns)
		r.Get("/{id}", s.handleRun)
		r.Get("/{id}/events", s.handleRunEvents)
	})
	r.NotFound(s.serveFragment)
	return r
}

func (s *Server) serveFragment(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	h, ok := s.fragments[r.URL.Path]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	h.ServeHTTP(w, r)
}

// Serve starts the server and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr(), err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting web UI", "addr", "http://"+ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down web UI")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
