package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/simplecrawler/internal/api"
	"github.com/JakeFAU/simplecrawler/internal/app"
	"github.com/JakeFAU/simplecrawler/internal/config"
	"github.com/JakeFAU/simplecrawler/internal/crawler"
	"github.com/JakeFAU/simplecrawler/internal/dispatcher"
	"github.com/JakeFAU/simplecrawler/internal/metrics"
	"github.com/JakeFAU/simplecrawler/internal/progress/sinks"
)

// App defines the application interface the crawl command uses.
// This allows us to inject a test app.
type App interface {
	Run(ctx context.Context) (crawler.Result, error)
	Sites() []sinks.SiteStats
	Sessions() []sinks.SessionStatus
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger, app.WithHandlers(dispatcher.WithFulfilled(logTitle(logger))))
}

// report is the document printed when a crawl ends.
type report struct {
	crawler.Result `yaml:",inline"`
	Sites          []sinks.SiteStats `yaml:"sites,omitempty"`
}

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url]",
		Short: "Crawl starting from a seed URL",
		Long: `Fetches the seed URL and every link it leads to that the follow mode
allows. The seed may also come from crawler.seed_url in the config file.
A YAML report is printed when the crawl ends; a crawl stopped by a limit is
still a success.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCrawlCommand,
	}

	f := cmd.Flags()
	f.Int("concurrency", crawler.DefaultConcurrency, "maximum fetches in flight")
	f.Int("follow-mode", crawler.DefaultFollowMode.Level(), "0=all, 1=same host, 2=same domain, 3=sub-path")
	f.Int("port", 0, "force this port onto every fetched URL")
	f.Int("request-limit", 0, "stop after this many pages (0 disables)")
	f.Bool("only-count-received", false, "count only 200 responses against the request limit")
	f.Int64("content-size-limit", 0, "stop when a single response exceeds this many bytes")
	f.Int64("traffic-limit", 0, "stop when total downloaded bytes exceed this")
	f.Bool("complete-requested-files", false, "let in-flight fetches finish after the traffic limit")
	f.String("user-agent", "", "User-Agent header")
	f.Bool("follow-redirects", true, "follow HTTP redirects")
	f.Duration("delay", 0, "minimum delay between requests to the same host")
	f.Duration("connect-timeout", 0, "connect timeout")
	f.Duration("read-timeout", 0, "read timeout")
	f.Bool("insecure", false, "skip TLS certificate verification")
	f.String("storage", "", "storage backend: local, memory, gcs or none")
	f.String("base-dir", "", "working directory for the local backend")
	f.String("metrics-addr", "", "serve /metrics, /healthz and the /api status endpoints on this address while crawling")
	f.Bool("trace", false, "record an OpenTelemetry span per fetch (see tracing.exporter)")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, args []string) error {
	rt, err := resolveState(cmd.Context())
	if err != nil {
		return err
	}
	cfg := rt.cfg
	if len(args) == 1 {
		cfg.Crawler.SeedURL = args[0]
	}
	if cfg.Crawler.SeedURL == "" {
		return errors.New("a seed URL is required")
	}

	ctx := cmd.Context()
	appInstance, err := newApp(ctx, cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}

	res, runErr := runWithMetrics(ctx, appInstance, cfg.Metrics.ListenAddr, rt.logger)
	if cerr := appInstance.Close(context.WithoutCancel(ctx)); cerr != nil {
		rt.logger.Warn("Failed to close application services", zap.Error(cerr))
	}

	if err := writeReport(cmd.OutOrStdout(), report{Result: res, Sites: appInstance.Sites()}); err != nil {
		return err
	}

	var term *crawler.Termination
	if runErr != nil && !errors.As(runErr, &term) {
		return fmt.Errorf("run crawler: %w", runErr)
	}
	return nil
}

// runWithMetrics runs the crawl and, when addr is set, the metrics server
// and status API next to it. The server stops once the crawl returns.
func runWithMetrics(ctx context.Context, a App, addr string, logger *zap.Logger) (crawler.Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServe := context.WithCancel(gctx)
	defer stopServe()

	if addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return crawler.Result{}, fmt.Errorf("metrics listen: %w", err)
		}
		g.Go(func() error {
			return metrics.Serve(serveCtx, ln, logger, api.Routes(a, logger))
		})
	}

	var (
		res    crawler.Result
		runErr error
	)
	g.Go(func() error {
		defer stopServe()
		res, runErr = a.Run(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, runErr
}

func writeReport(w io.Writer, r report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

func logTitle(logger *zap.Logger) dispatcher.Handler {
	return func(url string, doc *goquery.Document) error {
		if title := doc.Find("title").First().Text(); title != "" {
			logger.Info("Page title", zap.String("url", url), zap.String("title", title))
		}
		return nil
	}
}
