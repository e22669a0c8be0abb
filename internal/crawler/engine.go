package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/simplecrawler/internal/clock/system"
	"github.com/JakeFAU/simplecrawler/internal/id/uuid"
	"github.com/JakeFAU/simplecrawler/internal/metrics"
	"github.com/JakeFAU/simplecrawler/internal/progress"
)

// ErrAlreadyStarted is returned when Run is called twice on the same Engine.
var ErrAlreadyStarted = errors.New("crawl already started")

// Engine drives one crawl session from the root URL until the frontier is
// exhausted, a limit fires or the context is canceled.
type Engine struct {
	opts       Options
	frontier   *Frontier
	enforcer   Enforcer
	state      State
	fetcher    Fetcher
	store      BlobStore
	hasher     Hasher
	dispatcher Dispatcher
	emitter    progress.Emitter
	clock      Clock
	ids        IDGenerator
	logger     *zap.Logger

	results chan FetchCompleted
	session [16]byte
	started atomic.Bool
}

// NewEngine validates opts and wires the collaborators. store, dispatcher,
// emitter, clock and ids are optional; a nil store disables persistence.
func NewEngine(
	opts Options,
	fetcher Fetcher,
	store BlobStore,
	hasher Hasher,
	dispatcher Dispatcher,
	emitter progress.Emitter,
	clock Clock,
	ids IDGenerator,
	logger *zap.Logger,
) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid crawl options: %w", err)
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if store != nil && hasher == nil {
		return nil, errors.New("hasher is required when a blob store is configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	if ids == nil {
		ids = uuid.New()
	}
	opts = opts.withDefaults()

	frontier, err := NewFrontier(opts.RootURL, opts.FollowMode, opts.Port, logger)
	if err != nil {
		return nil, err
	}
	metrics.Init()

	return &Engine{
		opts:       opts,
		frontier:   frontier,
		enforcer:   NewEnforcer(opts.Limits),
		fetcher:    fetcher,
		store:      store,
		hasher:     hasher,
		dispatcher: dispatcher,
		emitter:    emitter,
		clock:      clock,
		ids:        ids,
		logger:     logger,
		results:    make(chan FetchCompleted, opts.Concurrency),
	}, nil
}

// Run crawls until completion. It always returns the final Result. The error
// is nil when the frontier was exhausted, a *Termination when a limit
// stopped the crawl, or a wrapped context error on cancellation. No fetch
// goroutine started by Run outlives it.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	if !e.started.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyStarted
	}
	sessionID, err := e.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("session id: %w", err)
	}
	e.session = progress.SessionBytes(sessionID)
	e.logger = e.logger.With(zap.String("session_id", sessionID))
	e.frontier.logger = e.logger

	startedAt := e.clock.Now()
	root := e.frontier.Root()
	e.logger.Info("Crawl started",
		zap.String("root", root.Raw),
		zap.Int("concurrency", e.opts.Concurrency),
		zap.Stringer("follow_mode", e.opts.FollowMode),
	)
	e.emit(progress.Event{Stage: progress.StageCrawlStart, Site: metrics.SanitizeSite(root.Raw), URL: root.Raw})

	var runErr error
	for runErr == nil && !e.frontier.Exhausted() {
		runErr = e.round(ctx)
	}

	res := Result{
		SessionID:       sessionID,
		RootURL:         root.Raw,
		TotalPages:      e.state.TotalPages,
		TotalTraffic:    e.state.TotalTraffic,
		LinksFollowed:   e.state.LinksFollowed,
		LinksDiscovered: e.frontier.Len(),
		StartedAt:       startedAt,
		FinishedAt:      e.clock.Now(),
	}
	return e.finish(res, runErr)
}

func (e *Engine) finish(res Result, runErr error) (Result, error) {
	fields := []zap.Field{
		zap.Int("total_pages", res.TotalPages),
		zap.Int64("total_traffic", res.TotalTraffic),
		zap.Int("links_followed", res.LinksFollowed),
	}
	elapsed := res.FinishedAt.Sub(res.StartedAt)

	var term *Termination
	switch {
	case runErr == nil:
		res.Reason = ReasonFrontierExhausted
		e.logger.Info("Crawl complete", fields...)
		e.emit(progress.Event{Stage: progress.StageCrawlDone, Dur: nonNegative(elapsed)})
		return res, nil
	case errors.As(runErr, &term):
		res.Reason = term.Reason.Error()
		term.Result = res
		metrics.ObserveTermination(res.Reason)
		e.logger.Info("Crawl terminated", append(fields, zap.String("reason", res.Reason))...)
		e.emit(progress.Event{
			Stage: progress.StageCrawlTerminated,
			Dur:   nonNegative(elapsed),
			Note:  res.Reason,
		})
		return res, term
	default:
		res.Reason = runErr.Error()
		e.logger.Error("Crawl interrupted", append(fields, zap.Error(runErr))...)
		e.emit(progress.Event{
			Stage: progress.StageCrawlError,
			Dur:   nonNegative(elapsed),
			Note:  res.Reason,
		})
		return res, fmt.Errorf("crawl interrupted: %w", runErr)
	}
}

func (e *Engine) emit(evt progress.Event) {
	if e.emitter == nil {
		return
	}
	evt.SessionID = e.session
	evt.TS = e.clock.Now()
	e.emitter.Emit(evt)
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
