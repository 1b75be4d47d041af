package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/xtxerr/logbook/internal/errors"
	"github.com/xtxerr/logbook/internal/history"
	"github.com/xtxerr/logbook/internal/history/timerange"
	"github.com/xtxerr/logbook/internal/logging"
)

// RefreshIntervalHeader advertises the polling interval on refresh=true.
const RefreshIntervalHeader = "X-Refresh-Interval"

var errInternal = errors.ErrInternal

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type pathsResponse struct {
	Context string   `json:"context"`
	Range   rangeOut `json:"range"`
	Paths   []string `json:"paths"`
}

type contextsResponse struct {
	Range    rangeOut `json:"range"`
	Contexts []string `json:"contexts"`
}

type rangeOut struct {
	Duration string `json:"duration,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleValues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := history.ValuesRequest{
		Context:               q.Get("context"),
		Time:                  timeParams(q),
		Paths:                 q.Get("paths"),
		Resolution:            q.Get("resolution"),
		BBox:                  q.Get("bbox"),
		IncludeMovingAverages: boolParam(q, "includeMovingAverages"),
		IncludeSummary:        boolParam(q, "includeSummary"),
		ConvertUnits:          boolParam(q, "convertUnits"),
		ConvertTimesToLocal:   boolParam(q, "convertTimesToLocal"),
		Timezone:              q.Get("timezone"),
	}

	resp, err := s.svc.Values(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if boolParam(q, "refresh") {
		interval := s.refreshInterval(resp.Resolution)
		setNoCache(w, interval)
		resp.Refresh = &history.RefreshInfo{
			Enabled:         true,
			IntervalSeconds: int(interval / time.Second),
			NextRefresh:     s.cfg.Now().Add(interval).UTC().Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePaths(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := timeParams(q)

	paths, err := s.svc.Paths(r.Context(), q.Get("context"), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if paths == nil {
		paths = []string{}
	}

	writeJSON(w, http.StatusOK, pathsResponse{
		Context: q.Get("context"),
		Range:   rangeOut{Duration: params.Duration, From: params.From, To: params.To},
		Paths:   paths,
	})
}

func (s *Server) handleContexts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := timeParams(q)

	contexts, err := s.svc.Contexts(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if contexts == nil {
		contexts = []string{}
	}

	writeJSON(w, http.StatusOK, contextsResponse{
		Range:    rangeOut{Duration: params.Duration, From: params.From, To: params.To},
		Contexts: contexts,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// =============================================================================
// Helpers
// =============================================================================

func timeParams(q url.Values) timerange.Params {
	return timerange.Params{
		Duration: q.Get("duration"),
		From:     q.Get("from"),
		To:       q.Get("to"),
		Start:    q.Get("start"),
		UseUTC:   boolParam(q, "useUTC"),
	}
}

// boolParam reads a boolean flag. A present flag without a value is true.
func boolParam(q url.Values, name string) bool {
	values, ok := q[name]
	if !ok {
		return false
	}
	if len(values) == 0 || values[0] == "" {
		return true
	}
	b, err := strconv.ParseBool(values[0])
	return err == nil && b
}

// refreshInterval is the bucket width clamped to the configured bounds.
func (s *Server) refreshInterval(resolutionMs int64) time.Duration {
	d := time.Duration(resolutionMs) * time.Millisecond
	if d < s.cfg.RefreshMin {
		d = s.cfg.RefreshMin
	}
	if d > s.cfg.RefreshMax {
		d = s.cfg.RefreshMax
	}
	return d.Truncate(time.Second)
}

func setNoCache(w http.ResponseWriter, interval time.Duration) {
	h := w.Header()
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set(RefreshIntervalHeader, strconv.Itoa(int(interval/time.Second)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("write response", "error", err)
	}
}

// writeError maps err to a status. Internal errors are logged and replaced
// by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	msg := err.Error()

	l := logging.WithContext(r.Context())
	switch {
	case status >= 500 && status != http.StatusGatewayTimeout:
		l.Error("request failed", "path", r.URL.Path, "error", err)
		msg = errInternal.Error()
	case errors.IsCanceled(err):
		l.Info("request canceled", "path", r.URL.Path, "error", err)
	default:
		l.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}

	writeJSON(w, status, errorResponse{
		Error:     msg,
		RequestID: logging.RequestIDFromContext(r.Context()),
	})
}
