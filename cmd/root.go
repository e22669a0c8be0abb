// Package cmd defines and implements the CLI commands for the simplecrawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/simplecrawler/internal/config"
	"github.com/JakeFAU/simplecrawler/internal/logging"
)

// stateKeyType is the key for storing the loaded CLI state in the context.
type stateKeyType string

const stateKey stateKeyType = "state"

// cliState is what the root command prepares for its subcommands.
type cliState struct {
	cfg    config.Config
	logger *zap.Logger
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "simplecrawler",
		Short: "A small concurrent web crawler.",
		Long: `simplecrawler fetches pages starting from a seed URL, stores every
response under its working directory and follows links according to the
configured follow mode until the frontier is exhausted or a limit fires.`,
		SilenceUsage: true,

		// This hook runs BEFORE the subcommand's RunE, once flags are parsed.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), stateKey, &cliState{cfg: cfg, logger: logger}))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "log crawl progress to stdout")

	cmd.AddCommand(newCrawlCmd())

	return cmd
}

func resolveState(ctx context.Context) (*cliState, error) {
	rt, ok := ctx.Value(stateKey).(*cliState)
	if !ok || rt == nil {
		return nil, errors.New("configuration not loaded")
	}
	return rt, nil
}

// Execute is the main entry point. It cancels the crawl on SIGINT or SIGTERM
// and exits non-zero only when the command fails.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
