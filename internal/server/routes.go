package server

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lazypower/rapport/internal/signal"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const maxBundleBytes = 64 << 10

// maxWindowMinutes is the longest window a time.Duration can hold.
var maxWindowMinutes = float64(math.MaxInt64) / float64(time.Minute)

// parseWindow reads the window query parameter in minutes. Zero and negative
// windows are allowed and produce empty results. Windows past the Duration
// range are clamped to it.
func parseWindow(r *http.Request, def time.Duration) (time.Duration, error) {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return def, nil
	}
	minutes, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		return 0, fmt.Errorf("window must be a number of minutes, got %q", raw)
	}
	if minutes >= maxWindowMinutes {
		return time.Duration(math.MaxInt64), nil
	}
	return time.Duration(minutes * float64(time.Minute)), nil
}

func parseLimit(r *http.Request, def int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// cached serves key from the aggregate cache, computing it with fn on a miss.
// A result computed across an invalidate is returned but not stored.
func (s *Server) cached(key string, fn func() (any, error)) (any, error) {
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}
	s.cacheMu.Lock()
	gen := s.cacheGen
	s.cacheMu.Unlock()

	v, err := fn()
	if err != nil {
		return nil, err
	}

	s.cacheMu.Lock()
	if s.cacheGen == gen {
		s.cache.Set(key, v, cache.DefaultExpiration)
	}
	s.cacheMu.Unlock()
	return v, nil
}

// invalidate drops every cached aggregate after a write.
func (s *Server) invalidate() {
	s.cacheMu.Lock()
	s.cacheGen++
	s.cache.Flush()
	s.cacheMu.Unlock()
}

func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBundleBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}

	var b signal.Bundle
	if err := json.Unmarshal(body, &b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	snap := s.engine.Observe(r.Context(), b)
	s.invalidate()
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleListInteractions(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r, s.engine.Window())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := parseLimit(r, 100)

	events, err := s.db.QueryRecentInteractions(r.Context(), window)
	if err != nil {
		s.log.Error("query interactions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	count := len(events)
	if len(events) > limit {
		events = events[:limit]
	}
	if events == nil {
		events = []signal.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"window_minutes": window.Minutes(),
		"count":          count,
		"interactions":   events,
	})
}

func (s *Server) handleBond(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r, s.engine.Window())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch source := r.URL.Query().Get("source"); source {
	case "", "memory":
		writeJSON(w, http.StatusOK, s.engine.Bond(window))
	case "store":
		b, err := s.engine.StoredBond(r.Context(), window)
		if err != nil {
			s.log.Error("stored bond", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, b)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("source must be memory or store, got %q", source))
	}
}

func (s *Server) handleProximity(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r, s.engine.Window())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Proximity(window))
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	kind, err := signal.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if kind == signal.KindDistance {
		writeError(w, http.StatusBadRequest, "distance has no labels, use /api/distance")
		return
	}
	window, err := parseWindow(r, s.engine.Window())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	v, err := s.cached(fmt.Sprintf("trend:%s:%d", kind, window), func() (any, error) {
		counts, err := s.db.AggregateSignalCounts(r.Context(), kind, window)
		if err != nil {
			return nil, err
		}
		return signal.NewTrend(kind, counts), nil
	})
	if err != nil {
		s.log.Error("aggregate trend", zap.String("kind", string(kind)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDistance(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r, s.engine.Window())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	v, err := s.cached(fmt.Sprintf("distance:%d", window), func() (any, error) {
		return s.db.AggregateDistanceStats(r.Context(), window)
	})
	if err != nil {
		s.log.Error("aggregate distance", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleWeights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Weights())
}

func (s *Server) handleWeightHistory(w http.ResponseWriter, r *http.Request) {
	versions, err := s.db.ListWeightVersions(r.Context(), parseLimit(r, 20))
	if err != nil {
		s.log.Error("list weight versions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(versions),
		"versions": versions,
	})
}

func (s *Server) handleReinforce(w http.ResponseWriter, r *http.Request) {
	res := s.engine.Reinforce(r.Context())
	s.invalidate()

	stageErrors := make([]string, 0, len(res.Errors))
	for _, err := range res.Errors {
		stageErrors = append(stageErrors, err.Error())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"decision": res.Decision,
		"reward":   res.Reward,
		"previous": res.Previous,
		"weights":  res.Weights,
		"analysis": res.Analysis,
		"saved":    res.Saved,
		"errors":   stageErrors,
	})
}
