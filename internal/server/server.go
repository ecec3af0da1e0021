package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rivalscope/rivalscope/pkg/pipeline"
	"github.com/rivalscope/rivalscope/pkg/storage"
	"github.com/sirupsen/logrus"
)

// Locker serializes database writers. *utils.DBLock satisfies it.
type Locker interface {
	LockContext(ctx context.Context) error
	Unlock() error
}

// Server exposes the dashboard data as a JSON API.
type Server struct {
	DB       *storage.DB
	Pipeline *pipeline.Pipeline
	Lock     Locker // optional
	Username string
	Password string
	Log      logrus.FieldLogger
}

func New(db *storage.DB, p *pipeline.Pipeline, user, pass string) *Server {
	return &Server{
		DB:       db,
		Pipeline: p,
		Username: user,
		Password: pass,
		Log:      logrus.StandardLogger(),
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/summary", s.basicAuth(s.handleSummary))
	mux.HandleFunc("GET /api/providers", s.basicAuth(s.handleProviders))
	mux.HandleFunc("POST /api/providers/{slug}/active", s.basicAuth(s.handleSetActive))
	mux.HandleFunc("GET /api/products", s.basicAuth(s.handleProducts))
	mux.HandleFunc("GET /api/products/{id}/history", s.basicAuth(s.handleHistory))
	mux.HandleFunc("GET /api/changes", s.basicAuth(s.handleChanges))
	mux.HandleFunc("GET /api/alerts", s.basicAuth(s.handleAlerts))
	mux.HandleFunc("GET /api/catalog", s.basicAuth(s.handleCatalog))
	mux.HandleFunc("GET /api/matches", s.basicAuth(s.handleMatches))
	mux.HandleFunc("POST /api/matches/{id}/review", s.basicAuth(s.handleReviewMatch))
	mux.HandleFunc("GET /api/jobs", s.basicAuth(s.handleJobs))
	mux.HandleFunc("GET /api/stats", s.basicAuth(s.handleStats))

	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.Log.Infof("Starting server on %s", addr)
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
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// write runs fn under the writer lock when one is configured.
func (s *Server) write(ctx context.Context, fn func() error) error {
	if s.Lock == nil {
		return fn()
	}
	if err := s.Lock.LockContext(ctx); err != nil {
		return err
	}
	defer func() {
		if err := s.Lock.Unlock(); err != nil {
			s.Log.Warnf("Could not release database lock: %v", err)
		}
	}()
	return fn()
}
