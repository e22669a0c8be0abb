package system_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/simplecrawler/internal/clock/system"
	"github.com/JakeFAU/simplecrawler/internal/crawler"
)

var _ crawler.Clock = system.New()

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := system.New()
	require.NotNil(t, clk)

	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.After(before) && got.Before(after), "got %v, want between %v and %v", got, before, after)
}

func TestClockNowNonDecreasing(t *testing.T) {
	t.Parallel()

	clk := system.New()
	first := clk.Now()
	second := clk.Now()
	assert.False(t, second.Before(first))
}
