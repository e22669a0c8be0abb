package crawler

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ErrUnsupportedURL is returned for URLs the fetcher cannot request.
var ErrUnsupportedURL = errors.New("unsupported url")

// Entry is an absolute URL together with its parsed form. Entries are built
// once by NewEntry and never mutated afterwards.
type Entry struct {
	Raw string
	URL *url.URL
}

// NewEntry parses raw into an Entry. Only absolute http(s) URLs with a host
// are accepted.
func NewEntry(raw string) (Entry, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Entry{}, fmt.Errorf("parse url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return Entry{}, fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
	}
	if u.Host == "" {
		return Entry{}, fmt.Errorf("%w: missing host in %q", ErrUnsupportedURL, raw)
	}
	return Entry{Raw: raw, URL: u}, nil
}

// Host returns the host name without any port.
func (e Entry) Host() string {
	if e.URL == nil {
		return ""
	}
	return e.URL.Hostname()
}

// Path returns the URL path, which may be empty.
func (e Entry) Path() string {
	if e.URL == nil {
		return ""
	}
	return e.URL.Path
}

// withPort rewrites the entry to scheme://host:port+path. Ports 80 and 443
// and the zero value leave the entry untouched. Query and fragment are
// dropped by the rewrite.
func (e Entry) withPort(port int) Entry {
	if port <= 0 || port == 80 || port == 443 {
		return e
	}
	rewritten := &url.URL{
		Scheme: e.URL.Scheme,
		Host:   net.JoinHostPort(e.URL.Hostname(), strconv.Itoa(port)),
		Path:   e.URL.Path,
	}
	if e.URL.RawPath != "" {
		rewritten.RawPath = e.URL.RawPath
	}
	return Entry{Raw: rewritten.String(), URL: rewritten}
}
