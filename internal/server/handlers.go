package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/yacobolo/cssaudit/internal/fetch"
	"github.com/yacobolo/cssaudit/internal/scan"
	"github.com/yacobolo/cssaudit/internal/store"
)

const (
	defaultHistoryLimit = 20
	defaultResultsLimit = 20
	maxRequestBody      = 1 << 20
)

type urlsRequest struct {
	URLs []string `json:"urls"`
}

type excludeRequest struct {
	URL      string `json:"url"`
	Excluded bool   `json:"excluded"`
}

type monitoringRequest struct {
	IntervalMinutes int `json:"intervalMinutes"`
}

func (s *Server) listURLs(w http.ResponseWriter, r *http.Request) {
	records, err := s.coord.ListURLs(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) deleteURL(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	err := s.coord.DeleteURL(r.Context(), u)
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "url not found", http.StatusNotFound)
	case errors.Is(err, fetch.ErrUnsupportedURL):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		s.internalError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, map[string]int{"deleted": 1})
	}
}

func (s *Server) deleteURLs(w http.ResponseWriter, r *http.Request) {
	var req urlsRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := s.coord.DeleteURLs(r.Context(), req.URLs)
	if isBadInput(err) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) setExcluded(w http.ResponseWriter, r *http.Request) {
	var req excludeRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	rec, err := s.coord.SetURLExcluded(r.Context(), req.URL, req.Excluded)
	if isBadInput(err) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.coord.Stats(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	settings, err := s.coord.Settings(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	var patch store.SettingsPatch
	if !decode(w, r, &patch) {
		return
	}
	settings, err := s.coord.UpdateSettings(r.Context(), patch)
	if isBadInput(err) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit", defaultHistoryLimit)
	if !ok {
		return
	}
	entries, err := s.coord.History(r.Context(), limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) startScan(w http.ResponseWriter, r *http.Request) {
	err := s.coord.StartScan(r.Context())
	if s.scanStartError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) startScanURLs(w http.ResponseWriter, r *http.Request) {
	var req urlsRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := s.coord.StartScanURLs(r.Context(), req.URLs)
	if s.scanStartError(w, r, err) {
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "started", "urls": n})
}

// scanStartError writes the response for a failed scan start and reports
// whether it did.
func (s *Server) scanStartError(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, scan.ErrScanInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
	case isBadInput(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.internalError(w, r, err)
	}
	return true
}

func (s *Server) scanStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.coord.Status(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) scanResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	urls := q["url"]
	for _, list := range q["urls"] {
		for _, u := range strings.Split(list, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
	}
	if len(urls) == 0 {
		http.Error(w, "at least one url is required", http.StatusBadRequest)
		return
	}
	offset, ok := intParam(w, r, "offset", 0)
	if !ok {
		return
	}
	limit, ok := intParam(w, r, "limit", defaultResultsLimit)
	if !ok {
		return
	}
	page, err := s.coord.Results(r.Context(), urls, offset, limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) startMonitoring(w http.ResponseWriter, r *http.Request) {
	var req monitoringRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	interval := req.IntervalMinutes
	if interval == 0 {
		settings, err := s.coord.Settings(r.Context())
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		interval = settings.MonitoringIntervalMinutes
	}
	if err := s.coord.StartMonitoring(r.Context(), interval); err != nil {
		if errors.Is(err, scan.ErrInvalidInterval) || isBadInput(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"monitoring": true, "intervalMinutes": interval})
}

func (s *Server) stopMonitoring(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.StopMonitoring(r.Context()); err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"monitoring": false})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func isBadInput(err error) bool {
	return errors.Is(err, scan.ErrNoURLs) ||
		errors.Is(err, scan.ErrConfigurationMissing) ||
		errors.Is(err, fetch.ErrUnsupportedURL) ||
		errors.Is(err, store.ErrInvalidSettings)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		http.Error(w, name+" must be a non-negative integer", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(data)
}
