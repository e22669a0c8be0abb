package crawler

import (
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/JakeFAU/simplecrawler/internal/metrics"
)

// Frontier holds the pending entries of a crawl, in discovery order, and the
// set of URLs already selected for fetching. Entry 0 is the crawl root and
// fixes the host and path used by the follow-mode filter.
//
// A Frontier is not safe for concurrent use; the scheduler loop owns it.
type Frontier struct {
	pending []Entry
	visited map[string]bool
	cursor  int
	mode    FollowMode
	port    int
	logger  *zap.Logger
}

// NewFrontier seeds a frontier with the crawl root.
func NewFrontier(root string, mode FollowMode, port int, logger *zap.Logger) (*Frontier, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid follow mode %d", mode)
	}
	entry, err := NewEntry(root)
	if err != nil {
		return nil, fmt.Errorf("root url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Frontier{
		pending: []Entry{entry},
		visited: make(map[string]bool),
		mode:    mode.resolve(),
		port:    port,
		logger:  logger,
	}, nil
}

// Root returns the crawl root entry.
func (f *Frontier) Root() Entry {
	return f.pending[0]
}

// Len returns the number of entries ever enqueued, root included.
func (f *Frontier) Len() int {
	return len(f.pending)
}

// Visited reports whether raw has been selected for fetching.
func (f *Frontier) Visited(raw string) bool {
	return f.visited[raw]
}

// Exhausted reports whether every pending entry has been considered.
func (f *Frontier) Exhausted() bool {
	return f.cursor >= len(f.pending)
}

// Enqueue appends a discovered link unless it was already visited. The same
// URL may be enqueued several times before it is dispatched; Candidates
// skips the duplicates.
func (f *Frontier) Enqueue(raw string) bool {
	if f.visited[raw] {
		return false
	}
	entry, err := NewEntry(raw)
	if err != nil {
		f.logger.Debug("Skipping (unsupported url)", zap.String("url", raw), zap.Error(err))
		metrics.ObserveSkip("unsupported")
		return false
	}
	f.pending = append(f.pending, entry)
	return true
}

// Candidates lazily walks the pending entries that have not been considered
// yet. For each entry gate is checked first; a non-nil gate error is yielded
// once and ends the sequence. Entries rejected by the follow mode or already
// visited are skipped. Yielded entries are marked visited.
//
// The walk observes entries appended while it is in progress.
func (f *Frontier) Candidates(gate func() error) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for f.cursor < len(f.pending) {
			if gate != nil {
				if err := gate(); err != nil {
					yield(Entry{}, err)
					return
				}
			}
			entry := f.pending[f.cursor].withPort(f.port)
			f.cursor++

			if ok, reason := f.mode.allows(f.Root(), entry); !ok {
				f.logger.Debug("Skipping ("+reason+")", zap.String("url", entry.Raw))
				metrics.ObserveSkip("follow_mode")
				continue
			}
			if f.visited[entry.Raw] {
				continue
			}
			f.visited[entry.Raw] = true
			if !yield(entry, nil) {
				return
			}
		}
	}
}
