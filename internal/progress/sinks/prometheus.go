package sinks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/simplecrawler/internal/progress"
)

// PrometheusSink exports crawler progress metrics via Prometheus. Besides the
// per-site fetch counters it keeps a running tally per session, so pages and
// traffic are observed once per session when it ends. Fetch events dropped by
// the hub under backpressure are missing from those totals.
type PrometheusSink struct {
	sessionsStarted   prometheus.Counter
	sessionsCompleted *prometheus.CounterVec
	sessionsRunning   prometheus.Gauge
	sessionRuntime    *prometheus.HistogramVec
	sessionPages      *prometheus.HistogramVec
	sessionTraffic    *prometheus.HistogramVec

	fetchRequests *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	tracker *sessionTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_sessions_started_total",
			Help: "Total crawl sessions that have started.",
		}),
		sessionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_sessions_completed_total",
			Help: "Total crawl sessions completed partitioned by result and stop reason.",
		}, []string{"result", "reason"}),
		sessionsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_sessions_running",
			Help: "Current number of running crawl sessions.",
		}),
		sessionRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_session_runtime_seconds",
			Help:    "Wall time per completed crawl session.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		sessionPages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_session_pages",
			Help:    "Pages that returned 200 per completed crawl session.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"result"}),
		sessionTraffic: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_session_traffic_bytes",
			Help:    "Response bytes downloaded per completed crawl session.",
			Buckets: prometheus.ExponentialBuckets(1<<10, 8, 8),
		}, []string{"result"}),
		fetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_fetch_requests_total",
			Help: "Fetch completions partitioned by site and status class.",
		}, []string{"site", "status_class"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_fetch_bytes_total",
			Help: "Bytes downloaded per site.",
		}, []string{"site"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by site and status class.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"site", "status_class"}),
		tracker: newSessionTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.sessionsStarted,
		s.sessionsCompleted,
		s.sessionsRunning,
		s.sessionRuntime,
		s.sessionPages,
		s.sessionTraffic,
		s.fetchRequests,
		s.fetchBytes,
		s.fetchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageCrawlStart, progress.StageCrawlDone, progress.StageCrawlTerminated, progress.StageCrawlError:
		s.handleSessionEvent(evt)
	case progress.StageFetchDone:
		s.handleFetchEvent(evt)
	}
}

func (s *PrometheusSink) handleSessionEvent(evt progress.Event) {
	var result string
	switch evt.Stage {
	case progress.StageCrawlStart:
		s.sessionsStarted.Inc()
		if s.tracker.start(evt.SessionID) {
			s.sessionsRunning.Inc()
		}
		return
	case progress.StageCrawlDone:
		result = "exhausted"
	case progress.StageCrawlTerminated:
		result = "limit"
	default:
		result = "error"
	}
	s.sessionsCompleted.WithLabelValues(result, stopReason(evt)).Inc()
	if evt.Dur > 0 {
		s.sessionRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if tally, ok := s.tracker.complete(evt.SessionID); ok {
		s.sessionsRunning.Dec()
		s.sessionPages.WithLabelValues(result).Observe(float64(tally.pages))
		s.sessionTraffic.WithLabelValues(result).Observe(float64(tally.bytes))
	}
}

// stopReason turns the note of a session end event into a low-cardinality
// label. Limit notes are the fixed termination reasons; errors are bucketed.
func stopReason(evt progress.Event) string {
	note := strings.ToLower(strings.TrimSpace(evt.Note))
	switch evt.Stage {
	case progress.StageCrawlDone:
		return "frontier_exhausted"
	case progress.StageCrawlTerminated:
		for _, limit := range []string{"request limit", "content size limit", "traffic limit"} {
			if strings.HasPrefix(note, limit) {
				return strings.ReplaceAll(limit, " ", "_")
			}
		}
	case progress.StageCrawlError:
		switch {
		case strings.Contains(note, "context canceled"):
			return "canceled"
		case strings.Contains(note, "deadline exceeded"):
			return "deadline_exceeded"
		}
	}
	return "other"
}

func (s *PrometheusSink) handleFetchEvent(evt progress.Event) {
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	statusClass := string(evt.StatusClass)
	if statusClass == "" {
		statusClass = string(progress.StatusOther)
	}
	s.fetchRequests.WithLabelValues(site, statusClass).Inc()
	s.tracker.record(evt.SessionID, evt.Visits, evt.Bytes)
	if evt.Bytes > 0 {
		s.fetchBytes.WithLabelValues(site).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.fetchDuration.WithLabelValues(site, statusClass).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type sessionTally struct {
	pages int64
	bytes int64
}

// sessionTracker accumulates fetch totals for sessions that are running.
type sessionTracker struct {
	mu      sync.Mutex
	running map[[16]byte]*sessionTally
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{running: make(map[[16]byte]*sessionTally)}
}

func (t *sessionTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = &sessionTally{}
	return true
}

func (t *sessionTracker) record(id [16]byte, visits, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tally, ok := t.running[id]; ok {
		tally.pages += visits
		tally.bytes += bytes
	}
}

func (t *sessionTracker) complete(id [16]byte) (sessionTally, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tally, ok := t.running[id]
	if !ok {
		return sessionTally{}, false
	}
	delete(t.running, id)
	return *tally, true
}
