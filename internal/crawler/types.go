package crawler

import (
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// FetchCompleted is the event produced for every finished fetch, successful
// or not. A transport failure is reported with Status 0 and a non-nil Err.
type FetchCompleted struct {
	URL      string
	Status   int
	Body     []byte
	Links    []string
	Document *goquery.Document
	Err      error
	Duration time.Duration
}

// Received reports whether the server answered at all.
func (e FetchCompleted) Received() bool {
	return e.Err == nil
}

// OK reports whether the fetch produced a 200 response.
func (e FetchCompleted) OK() bool {
	return e.Err == nil && e.Status == http.StatusOK
}

// State holds the mutable counters of one crawl session. It is owned by the
// scheduler loop and never shared across goroutines.
type State struct {
	TotalPages     int
	TotalTraffic   int64
	LinksFollowed  int
	ActiveRequests int
}

// Result is the terminal report of a crawl session.
type Result struct {
	SessionID       string    `json:"session_id" yaml:"session_id"`
	RootURL         string    `json:"root_url" yaml:"root_url"`
	Reason          string    `json:"reason" yaml:"reason"`
	TotalPages      int       `json:"total_pages" yaml:"total_pages"`
	TotalTraffic    int64     `json:"total_traffic" yaml:"total_traffic"`
	LinksFollowed   int       `json:"links_followed" yaml:"links_followed"`
	LinksDiscovered int       `json:"links_discovered" yaml:"links_discovered"`
	StartedAt       time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt      time.Time `json:"finished_at" yaml:"finished_at"`
}

// ReasonFrontierExhausted is reported when the crawl ends without hitting a limit.
const ReasonFrontierExhausted = "frontier exhausted"
