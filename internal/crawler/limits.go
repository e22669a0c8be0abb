package crawler

import (
	"errors"
	"fmt"
	"net/http"
)

// Termination reasons. Callers match them with errors.Is.
var (
	ErrRequestLimit     = errors.New("request limit reached")
	ErrContentSizeLimit = errors.New("content size limit exceeded")
	ErrTrafficLimit     = errors.New("traffic limit exceeded")
)

// Limits are the optional stopping thresholds of a crawl. Zero disables a limit.
type Limits struct {
	// RequestLimit caps the number of counted pages.
	RequestLimit int
	// OnlyCountReceived counts only 200 responses against RequestLimit.
	OnlyCountReceived bool
	// ContentSizeLimit caps the byte length of a single response.
	ContentSizeLimit int64
	// TrafficLimit caps the cumulative response bytes of the session.
	TrafficLimit int64
	// CompleteRequestedFiles lets in-flight fetches finish once the traffic
	// limit is exceeded; the crawl then stops before the next dispatch.
	CompleteRequestedFiles bool
}

// Validate rejects negative thresholds.
func (l Limits) Validate() error {
	if l.RequestLimit < 0 {
		return fmt.Errorf("invalid request limit %d", l.RequestLimit)
	}
	if l.ContentSizeLimit < 0 {
		return fmt.Errorf("invalid content size limit %d", l.ContentSizeLimit)
	}
	if l.TrafficLimit < 0 {
		return fmt.Errorf("invalid traffic limit %d", l.TrafficLimit)
	}
	return nil
}

// Termination signals that a limit stopped the crawl. It carries the final
// report and is returned by Engine.Run alongside the same Result.
type Termination struct {
	Reason error
	Result Result
}

func (t *Termination) Error() string {
	return t.Reason.Error()
}

func (t *Termination) Unwrap() error {
	return t.Reason
}

// Enforcer evaluates Limits against the session counters.
type Enforcer struct {
	limits Limits
}

// NewEnforcer builds an Enforcer for the given limits.
func NewEnforcer(limits Limits) Enforcer {
	return Enforcer{limits: limits}
}

// Limits returns the configured thresholds.
func (e Enforcer) Limits() Limits {
	return e.limits
}

// BeforeFetch is evaluated before every dispatch.
func (e Enforcer) BeforeFetch(s *State) error {
	if e.limits.RequestLimit > 0 && s.TotalPages >= e.limits.RequestLimit {
		return &Termination{Reason: ErrRequestLimit}
	}
	if e.limits.TrafficLimit > 0 && e.limits.CompleteRequestedFiles && s.TotalTraffic > e.limits.TrafficLimit {
		return &Termination{Reason: ErrTrafficLimit}
	}
	return nil
}

// AfterFetch records one completed fetch in s and reports a termination if
// the response broke a limit.
func (e Enforcer) AfterFetch(s *State, status int, size int64) error {
	s.TotalPages++
	if e.limits.OnlyCountReceived && status != http.StatusOK {
		s.TotalPages--
	}
	if e.limits.ContentSizeLimit > 0 && size > e.limits.ContentSizeLimit {
		return &Termination{Reason: ErrContentSizeLimit}
	}
	if e.limits.TrafficLimit > 0 {
		s.TotalTraffic += size
		if s.TotalTraffic > e.limits.TrafficLimit && !e.limits.CompleteRequestedFiles {
			return &Termination{Reason: ErrTrafficLimit}
		}
	}
	return nil
}

// Admit reports whether another fetch may be dispatched. Besides the
// concurrency bound it reserves request-limit headroom for in-flight fetches
// so the page count can never overshoot RequestLimit.
func (e Enforcer) Admit(s *State, concurrency int) bool {
	if s.ActiveRequests >= concurrency {
		return false
	}
	if e.limits.RequestLimit > 0 && s.TotalPages+s.ActiveRequests >= e.limits.RequestLimit {
		// Let the gate fire once nothing is in flight.
		return s.ActiveRequests == 0
	}
	return true
}
