package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goodtune/kfocus/internal/policy"
	"github.com/goodtune/kfocus/internal/session"
	"github.com/goodtune/kfocus/internal/timeutil"
	"github.com/goodtune/kfocus/internal/usage"
)

const defaultTop = 5

// LimitRequest sets a daily limit. Exactly one of Minutes or Seconds is
// required.
type LimitRequest struct {
	Domain  string `json:"domain" validate:"required,max=2048"`
	Minutes int64  `json:"minutes,omitempty" validate:"gte=0,lte=1440"`
	Seconds int64  `json:"seconds,omitempty" validate:"gte=0,lte=86400"`
}

// LimitResponse is a stored limit.
type LimitResponse struct {
	Domain    string `json:"domain"`
	Seconds   int64  `json:"seconds"`
	Formatted string `json:"formatted"`
}

// StatusResponse reports one domain against its limit.
type StatusResponse struct {
	Domain string `json:"domain"`
	policy.Status
	Level          policy.Level `json:"level"`
	UsedFormatted  string       `json:"usedFormatted"`
	LimitFormatted string       `json:"limitFormatted,omitempty"`
}

// ObservedSession is the session currently being timed.
type ObservedSession struct {
	Domain         string    `json:"domain"`
	TabID          int       `json:"tabId"`
	StartedAt      time.Time `json:"startedAt"`
	ElapsedSeconds int64     `json:"elapsedSeconds"`
}

// StatsEntry is one row of the daily statistics.
type StatsEntry struct {
	usage.SiteTime
	Formatted string `json:"formatted"`
}

// StatsResponse summarizes today's usage.
type StatsResponse struct {
	Top          []StatsEntry     `json:"top"`
	TotalSeconds int64            `json:"totalSeconds"`
	LastReset    string           `json:"lastReset,omitempty"`
	Current      *ObservedSession `json:"current,omitempty"`
}

func (s *Server) handleListLimits(w http.ResponseWriter, r *http.Request) {
	limits, err := s.store.Limits().List(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list limits")
		writeError(w, http.StatusInternalServerError, "Failed to list limits")
		return
	}
	writeJSON(w, http.StatusOK, limits)
}

func (s *Server) handleSetLimit(w http.ResponseWriter, r *http.Request) {
	var req LimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validateStruct(req); err != nil {
		var verrs ValidationErrors
		if errors.As(err, &verrs) {
			writeValidationError(w, verrs)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var seconds int64
	switch {
	case req.Minutes > 0 && req.Seconds > 0:
		writeValidationError(w, ValidationErrors{{Field: "minutes", Message: "cannot be combined with seconds"}})
		return
	case req.Minutes > 0:
		seconds = req.Minutes * 60
	case req.Seconds > 0:
		seconds = req.Seconds
	default:
		writeValidationError(w, ValidationErrors{{Field: "minutes", Message: "minutes or seconds must be greater than 0"}})
		return
	}

	domain, ok := timeutil.NormalizeDomain(req.Domain)
	if !ok {
		writeValidationError(w, ValidationErrors{{Field: "domain", Message: "must be a valid domain"}})
		return
	}

	if err := s.store.Limits().Set(r.Context(), domain, seconds); err != nil {
		s.logger.Error().Err(err).Str("domain", domain).Msg("Failed to save limit")
		writeError(w, http.StatusInternalServerError, "Failed to save limit")
		return
	}

	s.logger.Info().Str("domain", domain).Int64("seconds", seconds).Msg("Limit saved")
	writeJSON(w, http.StatusOK, LimitResponse{
		Domain:    domain,
		Seconds:   seconds,
		Formatted: timeutil.FormatDuration(seconds),
	})
}

func (s *Server) handleDeleteLimit(w http.ResponseWriter, r *http.Request) {
	domain, ok := timeutil.NormalizeDomain(chi.URLParam(r, "domain"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid domain")
		return
	}

	if err := s.store.Limits().Delete(r.Context(), domain); err != nil {
		s.logger.Error().Err(err).Str("domain", domain).Msg("Failed to delete limit")
		writeError(w, http.StatusInternalServerError, "Failed to delete limit")
		return
	}

	s.logger.Info().Str("domain", domain).Msg("Limit removed")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	domain, ok := timeutil.NormalizeDomain(chi.URLParam(r, "domain"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid domain")
		return
	}

	status, err := s.evaluator.Evaluate(r.Context(), domain)
	if err != nil {
		s.logger.Error().Err(err).Str("domain", domain).Msg("Failed to evaluate domain")
		writeError(w, http.StatusInternalServerError, "Failed to evaluate domain")
		return
	}

	resp := StatusResponse{
		Domain:        domain,
		Status:        status,
		Level:         policy.ComputeLevel(status),
		UsedFormatted: timeutil.FormatDuration(status.Used),
	}
	if status.Limit > 0 {
		resp.LimitFormatted = timeutil.FormatDuration(status.Limit)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	top := defaultTop
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "top must be between 1 and 100")
			return
		}
		top = n
	}

	ctx := r.Context()
	timeBySite, err := s.store.Usage().TimeBySite(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read usage")
		writeError(w, http.StatusInternalServerError, "Failed to read usage")
		return
	}

	lastReset, err := s.store.Usage().LastReset(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read last reset")
	}

	resp := StatsResponse{
		Top:          make([]StatsEntry, 0, top),
		TotalSeconds: usage.Total(timeBySite),
		LastReset:    lastReset,
	}
	for _, site := range usage.TopSites(timeBySite, top) {
		resp.Top = append(resp.Top, StatsEntry{SiteTime: site, Formatted: timeutil.FormatDuration(site.Seconds)})
	}

	if cur, ok := s.coordinator.Current(); ok {
		elapsed := timeutil.ElapsedSeconds(cur.StartedAt, s.clock.Now())
		if elapsed < 0 {
			elapsed = 0
		}
		resp.Current = &ObservedSession{
			Domain:         cur.Domain,
			TabID:          cur.TabID,
			StartedAt:      cur.StartedAt,
			ElapsedSeconds: elapsed,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.Submit(r.Context(), session.ResetRequested{Trigger: "api"}); err != nil {
		s.logger.Error().Err(err).Msg("Manual reset failed")
		writeError(w, http.StatusInternalServerError, "Reset failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
