package crawler

import (
	"bytes"
	"context"
	"iter"

	"go.uber.org/zap"

	"github.com/JakeFAU/simplecrawler/internal/extract"
	"github.com/JakeFAU/simplecrawler/internal/metrics"
	"github.com/JakeFAU/simplecrawler/internal/progress"
)

// round pulls candidates from the frontier and keeps at most
// Options.Concurrency fetches in flight until the candidate sequence is
// exhausted and every fetch has completed.
//
// Completions are handled one at a time on the calling goroutine, so the
// frontier and the session state have a single writer. A termination raised
// by the gate stops admission while in-flight fetches still run the full
// completion pipeline. A termination raised by a completion, or context
// cancellation, also discards the results that are still outstanding.
func (e *Engine) round(ctx context.Context) error {
	next, stop := iter.Pull2(e.frontier.Candidates(e.gate))
	defer stop()

	var (
		halt      error
		discard   bool
		exhausted bool
		done      = ctx.Done()
	)
	for {
		if err := ctx.Err(); err != nil {
			if halt == nil {
				halt = err
			}
			discard = true
		}
		for halt == nil && !exhausted && e.enforcer.Admit(&e.state, e.opts.Concurrency) {
			entry, err, ok := next()
			switch {
			case !ok:
				exhausted = true
			case err != nil:
				halt = err
			default:
				e.launch(ctx, entry)
			}
		}
		if e.state.ActiveRequests == 0 {
			return halt
		}

		select {
		case evt := <-e.results:
			e.state.ActiveRequests--
			metrics.SetActiveRequests(e.state.ActiveRequests)
			if discard {
				e.logger.Debug("Discarding response after stop", zap.String("url", evt.URL))
				continue
			}
			if err := e.complete(ctx, evt); err != nil {
				if halt == nil {
					halt = err
				}
				discard = true
			}
		case <-done:
			done = nil
		}
	}
}

func (e *Engine) gate() error {
	return e.enforcer.BeforeFetch(&e.state)
}

func (e *Engine) launch(ctx context.Context, entry Entry) {
	e.state.ActiveRequests++
	e.state.LinksFollowed++
	metrics.SetActiveRequests(e.state.ActiveRequests)
	e.logger.Debug("Crawling", zap.String("url", entry.Raw))
	e.emit(progress.Event{Stage: progress.StageFetchStart, Site: metrics.SanitizeSite(entry.Raw), URL: entry.Raw})

	go func() {
		e.results <- e.fetch(ctx, entry)
	}()
}

func (e *Engine) fetch(ctx context.Context, entry Entry) FetchCompleted {
	start := e.clock.Now()
	resp, err := e.fetcher.Fetch(ctx, FetchRequest{URL: entry.Raw})
	evt := FetchCompleted{URL: entry.Raw, Duration: e.clock.Now().Sub(start)}
	if err != nil {
		evt.Err = err
		return evt
	}
	evt.Status = resp.StatusCode
	evt.Body = resp.Body
	if resp.Duration > 0 {
		evt.Duration = resp.Duration
	}
	return evt
}

// complete runs the per-response pipeline: limit check, persistence, link
// extraction against the crawl root, enqueue, then callbacks.
func (e *Engine) complete(ctx context.Context, evt FetchCompleted) error {
	size := int64(len(evt.Body))
	logger := e.logger.With(zap.String("url", evt.URL))
	e.emit(progress.Event{
		Stage:       progress.StageFetchDone,
		Site:        metrics.SanitizeSite(evt.URL),
		URL:         evt.URL,
		Bytes:       size,
		Visits:      boolToInt64(evt.OK()),
		StatusClass: progress.ClassifyStatus(evt.Status),
		Dur:         nonNegative(evt.Duration),
	})

	if err := e.enforcer.AfterFetch(&e.state, evt.Status, size); err != nil {
		logger.Error("Limit exceeded", zap.Error(err), zap.Int64("bytes", size))
		return err
	}

	if !evt.Received() {
		logger.Error("Request failed", zap.Error(evt.Err))
	} else {
		if evt.OK() {
			logger.Info("Crawled", zap.Int("status", evt.Status), zap.Int64("bytes", size))
		} else {
			logger.Error("Unexpected status", zap.Int("status", evt.Status), zap.Int64("bytes", size))
		}
		e.persist(ctx, evt, logger)
		e.followLinks(&evt, logger)
	}

	if e.dispatcher != nil {
		e.dispatcher.Dispatch(ctx, evt)
	}
	return nil
}

func (e *Engine) persist(ctx context.Context, evt FetchCompleted, logger *zap.Logger) {
	if e.store == nil {
		return
	}
	key, err := storageKey(e.hasher, evt.URL)
	if err != nil {
		logger.Error("Could not derive storage key", zap.Error(err))
		return
	}
	uri, err := e.store.PutObject(ctx, key, htmlContentType, bytes.NewReader(evt.Body))
	if err != nil {
		logger.Error("Could not store document", zap.String("key", key), zap.Error(err))
		return
	}
	logger.Debug("Stored document", zap.String("uri", uri))
}

func (e *Engine) followLinks(evt *FetchCompleted, logger *zap.Logger) {
	doc, err := extract.Parse(evt.Body)
	if err != nil {
		logger.Error("Could not parse document", zap.Error(err))
		return
	}
	evt.Document = doc

	links, err := extract.LinksFrom(doc, e.frontier.Root().Raw)
	if err != nil {
		logger.Error("Could not extract links", zap.Error(err))
		return
	}
	evt.Links = links

	enqueued := 0
	for _, link := range links {
		if e.frontier.Enqueue(link) {
			enqueued++
		}
	}
	metrics.ObserveLinks(len(links), enqueued)
	logger.Debug("Links extracted", zap.Int("found", len(links)), zap.Int("enqueued", enqueued))
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
