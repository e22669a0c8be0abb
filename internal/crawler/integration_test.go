package crawler_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/simplecrawler/internal/crawler"
	"github.com/JakeFAU/simplecrawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/simplecrawler/internal/fetcher/colly"
	"github.com/JakeFAU/simplecrawler/internal/hash/sha256"
	"github.com/JakeFAU/simplecrawler/internal/storage/local"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<html><head><title>Home</title></head><body>
<a href="/docs/">docs</a> <a href="/blog/">blog</a> <a href="/broken">broken</a>
<a href="https://elsewhere.invalid/">away</a></body></html>`)
		case "/docs/":
			fmt.Fprint(w, `<html><title>Docs</title><a href="/docs/start">start</a></html>`)
		case "/docs/start":
			fmt.Fprint(w, `<html><title>Start</title><a href="/">home</a></html>`)
		case "/blog/":
			fmt.Fprint(w, `<html><title>Blog</title></html>`)
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type titles struct {
	mu       sync.Mutex
	ok       map[string]string
	rejected []string
}

func (c *titles) fulfilled(url string, doc *goquery.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ok[url] = doc.Find("title").Text()
	return nil
}

func (c *titles) reject(url string, _ *goquery.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected = append(c.rejected, url)
	return errors.New("rejected handlers may fail without stopping the crawl")
}

func TestCrawlAgainstHTTPServer(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	cb := &titles{ok: map[string]string{}}
	d := dispatcher.New(nil, dispatcher.WithFulfilled(cb.fulfilled), dispatcher.WithRejected(cb.reject))

	engine, err := crawler.NewEngine(
		crawler.Options{RootURL: srv.URL + "/", Concurrency: 2, FollowMode: crawler.FollowSameHost},
		collyfetcher.New(collyfetcher.Config{UserAgent: "simplecrawler-test"}, nil),
		store,
		sha256.New(),
		d,
		nil, nil, nil, nil,
	)
	require.NoError(t, err)

	res, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, crawler.ReasonFrontierExhausted, res.Reason)
	assert.Equal(t, 5, res.TotalPages)

	assert.Equal(t, map[string]string{
		srv.URL + "/":           "Home",
		srv.URL + "/docs/":      "Docs",
		srv.URL + "/docs/start": "Start",
		srv.URL + "/blog/":      "Blog",
		srv.URL + "/broken":     "",
	}, cb.ok)
	assert.Equal(t, []string{srv.URL + "/broken"}, cb.rejected)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	want := make([]string, 0, 5)
	for _, u := range []string{"/", "/docs/", "/docs/start", "/blog/", "/broken"} {
		sum, err := sha256.New().Hash([]byte(srv.URL + u))
		require.NoError(t, err)
		want = append(want, sum+".html")
	}
	sort.Strings(want)
	assert.Equal(t, want, names)

	home, err := os.ReadFile(filepath.Join(dir, want[0]))
	require.NoError(t, err)
	assert.NotEmpty(t, home)
}

func TestCrawlSubPathAgainstHTTPServer(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	cb := &titles{ok: map[string]string{}}
	engine, err := crawler.NewEngine(
		crawler.Options{RootURL: srv.URL + "/docs/", FollowMode: crawler.FollowSubPath},
		collyfetcher.New(collyfetcher.Config{}, nil),
		nil,
		nil,
		dispatcher.New(nil, dispatcher.WithFulfilled(cb.fulfilled)),
		nil, nil, nil, nil,
	)
	require.NoError(t, err)

	res, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalPages)
	assert.Len(t, cb.ok, 2)
}
