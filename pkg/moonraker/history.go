// Run history API endpoints for Moonraker.
// Serves the post-processing runs recorded by the history store.
package moonraker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"adaptive-mesh/pkg/history"
)

// parseListOptions reads limit and start, ignoring malformed values.
func parseListOptions(get func(string) string) history.ListOptions {
	opts := history.ListOptions{Limit: history.DefaultLimit}
	if v, err := strconv.Atoi(get("limit")); err == nil {
		opts.Limit = v
	}
	if v, err := strconv.Atoi(get("start")); err == nil {
		opts.Start = v
	}
	return opts
}

func (s *Server) listRuns(ctx context.Context, opts history.ListOptions) (any, error) {
	runs, err := s.history.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	totals, err := s.history.Totals(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"count": totals.Runs,
		"jobs":  runs,
	}, nil
}

func (s *Server) historyTotals(ctx context.Context) (any, error) {
	totals, err := s.history.Totals(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"job_totals": totals}, nil
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	result, err := s.listRuns(r.Context(), parseListOptions(r.URL.Query().Get))
	if err != nil {
		s.writeJSONError(w, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{"result": result})
}

func (s *Server) handleHistoryTotals(w http.ResponseWriter, r *http.Request) {
	result, err := s.historyTotals(r.Context())
	if err != nil {
		s.writeJSONError(w, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{"result": result})
}

func (s *Server) handleHistoryJob(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")
	if uid == "" {
		s.writeJSONError(w, fmt.Errorf("missing uid parameter"), http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		run, err := s.history.Get(r.Context(), uid)
		if err != nil {
			s.writeJSONError(w, err, historyStatus(err))
			return
		}
		s.writeJSON(w, map[string]any{"result": map[string]any{"job": run}})

	case http.MethodDelete:
		if err := s.history.Delete(r.Context(), uid); err != nil {
			s.writeJSONError(w, err, historyStatus(err))
			return
		}
		s.writeJSON(w, map[string]any{
			"result": map[string]any{
				"deleted_jobs": []string{uid},
			},
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func historyStatus(err error) int {
	if errors.Is(err, history.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
