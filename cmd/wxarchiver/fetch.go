package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"wxarchiver/pkg/assets"
	"wxarchiver/pkg/auth"
	"wxarchiver/pkg/browser"
	"wxarchiver/pkg/capture"
	"wxarchiver/pkg/config"
	"wxarchiver/pkg/httpclient"
	"wxarchiver/pkg/logger"
	"wxarchiver/pkg/storage"
	"wxarchiver/pkg/ui"
	"wxarchiver/pkg/wechat"
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Capture every article in the link ledger",
	Long: `Render each article in links.jsonl, oldest first, and archive it.

Every article gets its own directory with article.html, article.md and
meta.json; images are saved under assets/<article id>/. Articles already marked
complete are skipped unless --force is given. Failures are appended to
failed.jsonl and can be replayed with 'wxarchiver retry-failed'.`,
	Example: `  # Capture with the default 30s-120s pause between articles
  wxarchiver fetch --out ./archive

  # Faster pacing for a small account
  wxarchiver fetch --min-delay 10s --max-delay 20s

  # Refetch everything, including completed articles
  wxarchiver fetch --force`,
	Args: cobra.NoArgs,
	Run:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	addFetchFlags(fetchCmd, true)
}

func addFetchFlags(cmd *cobra.Command, standalone bool) {
	if standalone {
		cmd.Flags().StringP("out", "o", "", "archive root directory (default ./out)")
		cmd.Flags().Bool("headless", true, "run the capture browser without a window")
		cmd.Flags().String("cookie", "", "cookie header string or path to a file containing it")
		cmd.Flags().String("profile", "", "stored cookie profile name")
		cmd.Flags().String("chrome-path", "", "Chrome/Chromium executable")
	}
	cmd.Flags().String("links", "", "link ledger path (default <out>/links.jsonl)")
	cmd.Flags().Duration("min-delay", 0, "minimum pause between articles")
	cmd.Flags().Duration("max-delay", 0, "maximum pause between articles")
	cmd.Flags().Int("max-retries", 0, "attempts per article")
	cmd.Flags().Bool("force", false, "refetch articles already marked complete")
}

func runFetch(cmd *cobra.Command, args []string) {
	cfg := loadConfig(changedFlags(cmd.Flags(), "capture-headless"))
	cookies := resolveCookies(cfg)

	ctx, stop := signalContext()
	defer stop()

	links, err := ledgerLinks(cfg)
	if err != nil {
		fail("Failed to read link ledger", err)
	}
	if len(links) == 0 {
		ui.PrintWarning("The link ledger is empty. Run 'wxarchiver crawl-links' first.")
		return
	}

	launcher := browser.NewChromeLauncher(logger.GetLogger())
	if _, err := fetchLinks(ctx, cfg, launcher, cookies, staticLinks(links)); err != nil {
		fail("Capture stopped", err)
	}
}

func ledgerLinks(cfg *config.Config) ([]storage.LinkRecord, error) {
	ledger, err := storage.LoadLedger(cfg.LinksPath(), wechat.NormalizeArticleURL)
	if err != nil {
		return nil, err
	}
	if ledger.Skipped() > 0 {
		ui.PrintWarning(fmt.Sprintf("Skipped %d unreadable ledger lines", ledger.Skipped()))
	}
	return ledger.Records(), nil
}

func staticLinks(links []storage.LinkRecord) func() ([]storage.LinkRecord, error) {
	return func() ([]storage.LinkRecord, error) { return links, nil }
}

// fetchLinks captures links on one browser session and prints the batch summary.
// source is consulted only once the session is up.
func fetchLinks(ctx context.Context, cfg *config.Config, launcher browser.Launcher, cookies []auth.Cookie, source func() ([]storage.LinkRecord, error)) (capture.Stats, error) {
	log := logger.GetLogger()
	ui.PrintInfo("Archive", cfg.Output.BaseDirectory)

	store, err := storage.NewManager(cfg.Output.BaseDirectory, log)
	if err != nil {
		return capture.Stats{}, err
	}

	session, err := launcher.Launch(ctx, capture.SessionOptions(&cfg.Browser, cookies))
	if err != nil {
		return capture.Stats{}, err
	}
	defer session.Close()

	links, err := source()
	if err != nil {
		return capture.Stats{}, err
	}
	ui.PrintInfo("Articles", fmt.Sprintf("%d", len(links)))

	reconciler := assets.NewReconciler(httpclient.NewClient(&cfg.HTTP, log), log)
	capturer := capture.NewCapturer(store, reconciler, &cfg.Browser, log)
	batch := capture.NewBatch(session, capturer, store, &cfg.Capture, cfg.FailedPath(), log)

	tracker := ui.NewStatusTracker(len(links))
	batch.Observe = func(ev capture.Event) {
		title := ev.Link.Title
		detail := ""
		switch {
		case ev.Meta != nil:
			if ev.Meta.Title != "" {
				title = ev.Meta.Title
			}
			detail = fmt.Sprintf("%d images", ev.Meta.ImageCount)
		case ev.Err != nil:
			detail = ev.Err.Error()
		}
		tracker.Record(string(ev.Outcome), title, detail)
	}

	ui.PrintHighlight("Capturing articles")
	stats, err := batch.Run(ctx, links)
	ui.PrintSummary(stats.Total, stats.Succeeded, stats.Skipped, stats.Failed, stats.Elapsed)
	return stats, err
}
