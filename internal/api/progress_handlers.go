package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/simplecrawler/internal/progress/sinks"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 500
	defaultSitesLimit   = 100
	maxSitesLimit       = 1000
)

// Source supplies the in-memory progress snapshots.
type Source interface {
	Sessions() []sinks.SessionStatus
	Sites() []sinks.SiteStats
}

// ProgressHandler exposes read-only crawl progress endpoints.
type ProgressHandler struct {
	source Source
	logger *zap.Logger
}

// NewProgressHandler wires the progress source and logger.
func NewProgressHandler(source Source, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{
		source: source,
		logger: logger,
	}
}

// ListSessions handles GET /api/sessions?state=&limit=&offset=. It returns a
// JSON object {"sessions": [...]} on success, 400 for invalid filters or 503
// when no source is configured.
func (h *ProgressHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "progress source unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultSessionLimit, maxSessionLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var state *sinks.SessionState
	if stateParam := strings.TrimSpace(r.URL.Query().Get("state")); stateParam != "" {
		parsed, parseErr := parseState(stateParam)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		state = &parsed
	}

	var filtered []sinks.SessionStatus
	for _, s := range h.source.Sessions() {
		if state == nil || s.State == *state {
			filtered = append(filtered, s)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": toSessionDTOs(page(filtered, limit, offset)),
	})
}

// GetSession handles GET /api/sessions/{session_id}. It returns
// {"session": {...}} on success, 400 for malformed IDs, 404 when the session
// is unknown or 503 when no source is configured.
func (h *ProgressHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "progress source unavailable")
		return
	}
	sessionID, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, s := range h.source.Sessions() {
		if s.ID == sessionID.String() {
			writeJSON(w, http.StatusOK, map[string]any{"session": toSessionDTO(s)})
			return
		}
	}
	h.logger.Debug("session not found", zap.String("session_id", sessionID.String()))
	writeError(w, http.StatusNotFound, "session not found")
}

// ListSites handles GET /api/sites?limit=&offset=. It returns {"sites": [...]}
// on success, 400 for invalid query parameters or 503 when no source is
// configured.
func (h *ProgressHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "progress source unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultSitesLimit, maxSitesLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sites": toSiteDTOs(page(h.source.Sites(), limit, offset)),
	})
}

func page[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return nil
	}
	end := offset + limit
	if end > len(in) {
		end = len(in)
	}
	return in[offset:end]
}

func parseSessionID(r *http.Request) (uuid.UUID, error) {
	idStr := chi.URLParam(r, "session_id")
	if idStr == "" {
		return uuid.UUID{}, errors.New("session_id is required")
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid session_id")
	}
	return id, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseState(input string) (sinks.SessionState, error) {
	switch strings.ToLower(input) {
	case "running":
		return sinks.SessionRunning, nil
	case "exhausted", "done", "success":
		return sinks.SessionExhausted, nil
	case "limit", "terminated":
		return sinks.SessionLimit, nil
	case "error", "failed", "failure":
		return sinks.SessionError, nil
	default:
		return "", errors.New("invalid state")
	}
}

func toSessionDTOs(in []sinks.SessionStatus) []sessionDTO {
	out := make([]sessionDTO, 0, len(in))
	for _, s := range in {
		out = append(out, toSessionDTO(s))
	}
	return out
}

func toSessionDTO(s sinks.SessionStatus) sessionDTO {
	return sessionDTO{
		ID:         s.ID,
		State:      string(s.State),
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Reason:     s.Reason,
	}
}

// toSiteDTOs folds the per-status-class rows into one row per site.
func toSiteDTOs(in []sinks.SiteStats) []siteDTO {
	out := make([]siteDTO, 0, len(in))
	index := make(map[string]int, len(in))
	for _, s := range in {
		i, ok := index[s.Site]
		if !ok {
			i = len(out)
			index[s.Site] = i
			out = append(out, siteDTO{Site: s.Site})
		}
		dto := &out[i]
		if s.LastSeen.After(dto.LastUpdate) {
			dto.LastUpdate = s.LastSeen
		}
		dto.Visits += s.Visits
		dto.BytesTotal += s.Bytes
		switch s.StatusClass {
		case "2xx":
			dto.Fetch2xx += s.Fetches
		case "3xx":
			dto.Fetch3xx += s.Fetches
		case "4xx":
			dto.Fetch4xx += s.Fetches
		case "5xx":
			dto.Fetch5xx += s.Fetches
		default:
			dto.FetchOther += s.Fetches
		}
	}
	return out
}

type sessionDTO struct {
	ID         string     `json:"id"`
	State      string     `json:"state"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

type siteDTO struct {
	Site       string    `json:"site"`
	LastUpdate time.Time `json:"last_update"`
	Visits     int64     `json:"visits"`
	BytesTotal int64     `json:"bytes_total"`
	Fetch2xx   int64     `json:"fetch_2xx"`
	Fetch3xx   int64     `json:"fetch_3xx"`
	Fetch4xx   int64     `json:"fetch_4xx"`
	Fetch5xx   int64     `json:"fetch_5xx"`
	FetchOther int64     `json:"fetch_other"`
}
