package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rivalscope/rivalscope/pkg/pipeline"
)

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.Debugf("writing response: %v", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, pipeline.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.Log.Errorf("api: %v", err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Pipeline.GetDashboardSummary(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, summary)
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.DB.ListProviders(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, providers)
}

type ActiveRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req ActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	slug := r.PathValue("slug")
	err := s.write(r.Context(), func() error {
		return s.DB.SetProviderActive(r.Context(), slug, req.Active)
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := s.DB.ListProducts(r.Context(), q.Get("provider"), q.Get("include_superseded") == "true")
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, products)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.DB.PriceHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, history)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	window := 7 * 24 * time.Hour
	if raw := r.URL.Query().Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			http.Error(w, "since must be a positive duration such as 72h", http.StatusBadRequest)
			return
		}
		window = d
	}
	changes, err := s.DB.PriceChangesSince(r.Context(), time.Now().Add(-window))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, changes)
}

func limitParam(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return n, nil
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	alerts, err := s.DB.RecentAlerts(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, alerts)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.DB.Catalog(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, catalog)
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	var (
		v   interface{}
		err error
	)
	if id := r.URL.Query().Get("internal_product_id"); id != "" {
		v, err = s.DB.MatchesFor(r.Context(), id)
	} else {
		v, err = s.DB.Matches(r.Context())
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, v)
}

func (s *Server) handleReviewMatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.write(r.Context(), func() error {
		return s.DB.ReviewMatch(r.Context(), id)
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, 20)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	jobs, err := s.DB.RecentJobs(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, jobs)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.DB.Stats(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, stats)
}
