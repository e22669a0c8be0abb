package sinks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/simplecrawler/internal/progress"
)

// SiteStats are the per-site fetch totals collected by a TallySink.
type SiteStats struct {
	Site        string    `json:"site" yaml:"site"`
	StatusClass string    `json:"status_class" yaml:"status_class"`
	Fetches     int64     `json:"fetches" yaml:"fetches"`
	Visits      int64     `json:"visits" yaml:"visits"`
	Bytes       int64     `json:"bytes" yaml:"bytes"`
	LastSeen    time.Time `json:"last_seen" yaml:"last_seen"`
}

// SessionState mirrors the lifecycle of a crawl session.
type SessionState string

// Session states derived from lifecycle events.
const (
	SessionRunning   SessionState = "running"
	SessionExhausted SessionState = "exhausted"
	SessionLimit     SessionState = "limit"
	SessionError     SessionState = "error"
)

// SessionStatus describes one crawl session seen by a TallySink.
type SessionStatus struct {
	ID         string       `json:"id" yaml:"id"`
	State      SessionState `json:"state" yaml:"state"`
	StartedAt  time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	// Reason is the termination or error message, empty while running.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// TallySink collapses fetch completions into per-site, per-status-class
// totals and tracks session lifecycles, all in memory, for the final crawl
// report and the live status API.
type TallySink struct {
	mu       sync.Mutex
	stats    map[statsKey]*statsDelta
	sessions map[[16]byte]*SessionStatus
}

// NewTallySink constructs an empty TallySink.
func NewTallySink() *TallySink {
	return &TallySink{
		stats:    make(map[statsKey]*statsDelta),
		sessions: make(map[[16]byte]*SessionStatus),
	}
}

// Consume folds the events of batch into the running totals.
func (s *TallySink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageFetchDone:
			if evt.Site != "" {
				s.recordSiteStats(evt)
			}
		case progress.StageCrawlStart:
			s.session(evt).StartedAt = evt.TS
		case progress.StageCrawlDone:
			s.finish(evt, SessionExhausted)
		case progress.StageCrawlTerminated:
			s.finish(evt, SessionLimit)
		case progress.StageCrawlError:
			s.finish(evt, SessionError)
		}
	}
	return nil
}

func (s *TallySink) session(evt progress.Event) *SessionStatus {
	st := s.sessions[evt.SessionID]
	if st == nil {
		st = &SessionStatus{ID: evt.SessionUUID().String(), State: SessionRunning}
		s.sessions[evt.SessionID] = st
	}
	return st
}

func (s *TallySink) finish(evt progress.Event, state SessionState) {
	st := s.session(evt)
	st.State = state
	st.Reason = evt.Note
	at := evt.TS
	st.FinishedAt = &at
}

// Sessions returns a snapshot of every session, oldest first.
func (s *TallySink) Sessions() []SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionStatus, 0, len(s.sessions))
	for _, st := range s.sessions {
		cp := *st
		if st.FinishedAt != nil {
			at := *st.FinishedAt
			cp.FinishedAt = &at
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *TallySink) recordSiteStats(evt progress.Event) {
	key := statsKey{
		site:        evt.Site,
		statusClass: string(evt.StatusClass),
	}
	stat := s.stats[key]
	if stat == nil {
		stat = &statsDelta{}
		s.stats[key] = stat
	}
	stat.fetches++
	stat.visits += evt.Visits
	stat.bytes += evt.Bytes
	if evt.TS.After(stat.at) || stat.at.IsZero() {
		stat.at = evt.TS
	}
}

// Sites returns a snapshot of the totals ordered by site then status class.
func (s *TallySink) Sites() []SiteStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SiteStats, 0, len(s.stats))
	for key, delta := range s.stats {
		out = append(out, SiteStats{
			Site:        key.site,
			StatusClass: key.statusClass,
			Fetches:     delta.fetches,
			Visits:      delta.visits,
			Bytes:       delta.bytes,
			LastSeen:    delta.at,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Site != out[j].Site {
			return out[i].Site < out[j].Site
		}
		return out[i].StatusClass < out[j].StatusClass
	})
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *TallySink) Close(context.Context) error {
	return nil
}

type statsKey struct {
	site        string
	statusClass string
}

type statsDelta struct {
	fetches int64
	visits  int64
	bytes   int64
	at      time.Time
}
