// Package dispatcher delivers completed fetches to user callbacks.
package dispatcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/simplecrawler/internal/crawler"
	"github.com/JakeFAU/simplecrawler/internal/metrics"
)

// Handler receives the fetched URL and its parsed document.
type Handler func(url string, doc *goquery.Document) error

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithFulfilled registers the handler invoked for every received response.
func WithFulfilled(h Handler) Option {
	return func(d *Dispatcher) {
		d.fulfilled = h
	}
}

// WithRejected registers the handler invoked for non-200 responses and
// transport failures.
func WithRejected(h Handler) Option {
	return func(d *Dispatcher) {
		d.rejected = h
	}
}

// Dispatcher implements crawler.Dispatcher. Handlers are set once at
// construction; failures and panics are logged and never propagate.
type Dispatcher struct {
	fulfilled Handler
	rejected  Handler
	logger    *zap.Logger
}

var _ crawler.Dispatcher = (*Dispatcher)(nil)

// New creates a Dispatcher.
func New(logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch invokes the registered handlers for evt. A received response
// goes to the fulfilled handler; a non-200 status or a transport failure
// additionally goes to the rejected handler.
func (d *Dispatcher) Dispatch(_ context.Context, evt crawler.FetchCompleted) {
	doc := evt.Document
	if doc == nil {
		doc = emptyDocument()
	}
	if evt.Received() && d.fulfilled != nil {
		d.invoke("fulfilled", d.fulfilled, evt.URL, doc)
	}
	if !evt.OK() && d.rejected != nil {
		d.invoke("rejected", d.rejected, evt.URL, doc)
	}
}

func (d *Dispatcher) invoke(name string, h Handler, url string, doc *goquery.Document) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ObserveCallbackFailure(name)
			d.logger.Error("Callback panicked",
				zap.String("handler", name),
				zap.String("url", url),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	if err := h(url, doc); err != nil {
		metrics.ObserveCallbackFailure(name)
		d.logger.Error("Callback failed",
			zap.String("handler", name),
			zap.String("url", url),
			zap.Error(err),
		)
	}
}

func emptyDocument() *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(""))
	if err != nil {
		// html.Parse does not fail on an empty reader.
		panic(err)
	}
	return doc
}
