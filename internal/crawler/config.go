package crawler

import (
	"errors"
	"fmt"
)

// DefaultConcurrency is the number of fetches allowed in flight at once.
const DefaultConcurrency = 5

// Options is the immutable configuration of one crawl session.
type Options struct {
	RootURL     string
	Concurrency int
	// FollowMode defaults to DefaultFollowMode when left zero.
	FollowMode FollowMode
	// Port, when set to anything but 80 or 443, is forced onto every fetched URL.
	Port   int
	Limits Limits
}

// Validate checks Options before any crawling starts.
func (o Options) Validate() error {
	if o.RootURL == "" {
		return errors.New("root url is required")
	}
	if _, err := NewEntry(o.RootURL); err != nil {
		return fmt.Errorf("root url: %w", err)
	}
	if o.Concurrency < 0 {
		return fmt.Errorf("invalid concurrency %d", o.Concurrency)
	}
	if !o.FollowMode.Valid() {
		return fmt.Errorf("invalid follow mode %d", o.FollowMode)
	}
	if o.Port < 0 || o.Port > 65535 {
		return fmt.Errorf("invalid port %d", o.Port)
	}
	if err := o.Limits.Validate(); err != nil {
		return err
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.Concurrency == 0 {
		o.Concurrency = DefaultConcurrency
	}
	o.FollowMode = o.FollowMode.resolve()
	return o
}
