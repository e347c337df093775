package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"wxarchiver/pkg/auth"
	"wxarchiver/pkg/browser"
	"wxarchiver/pkg/capture"
	"wxarchiver/pkg/config"
	"wxarchiver/pkg/logger"
	"wxarchiver/pkg/storage"
	"wxarchiver/pkg/ui"
)

// retryCmd represents the retry-failed command
var retryCmd = &cobra.Command{
	Use:   "retry-failed",
	Short: "Refetch the articles recorded in the failure log",
	Long: `Replay failed.jsonl with force enabled.

The log is deduplicated by URL, keeping the first record, and moved to
failed.jsonl.bak once the capture browser is running, so articles that fail
again are written to a fresh log. If the browser cannot start, the log is left
untouched.`,
	Args: cobra.NoArgs,
	Run:  runRetryFailed,
}

func init() {
	rootCmd.AddCommand(retryCmd)
	retryCmd.Flags().StringP("out", "o", "", "archive root directory (default ./out)")
	retryCmd.Flags().Bool("headless", true, "run the capture browser without a window")
	retryCmd.Flags().String("cookie", "", "cookie header string or path to a file containing it")
	retryCmd.Flags().String("profile", "", "stored cookie profile name")
	retryCmd.Flags().Duration("min-delay", 0, "minimum pause between articles")
	retryCmd.Flags().Duration("max-delay", 0, "maximum pause between articles")
}

func runRetryFailed(cmd *cobra.Command, args []string) {
	flags := changedFlags(cmd.Flags(), "capture-headless")
	flags["force"] = true
	cfg := loadConfig(flags)
	cookies := resolveCookies(cfg)

	ctx, stop := signalContext()
	defer stop()

	if _, err := retryFailed(ctx, cfg, browser.NewChromeLauncher(logger.GetLogger()), cookies); err != nil {
		fail("Retry stopped", err)
	}
}

// retryFailed replays the failure log. The log is moved aside only after the
// capture session has launched.
func retryFailed(ctx context.Context, cfg *config.Config, launcher browser.Launcher, cookies []auth.Cookie) (capture.Stats, error) {
	records, err := storage.ReadFailures(cfg.FailedPath())
	if err != nil {
		return capture.Stats{}, fmt.Errorf("failed to read failure log: %w", err)
	}
	if len(storage.DedupFailures(records)) == 0 {
		ui.PrintSuccess("No failed articles to retry")
		return capture.Stats{}, nil
	}

	return fetchLinks(ctx, cfg, launcher, cookies, func() ([]storage.LinkRecord, error) {
		drained, err := storage.DrainFailures(cfg.FailedPath())
		if err != nil {
			return nil, fmt.Errorf("failed to read failure log: %w", err)
		}
		ui.PrintInfo("Retrying", fmt.Sprintf("%d articles (previous log kept at %s.bak)", len(drained), cfg.FailedPath()))
		return storage.AsLinks(drained), nil
	})
}
