package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"wxarchiver/pkg/auth"
	"wxarchiver/pkg/browser"
	"wxarchiver/pkg/config"
	"wxarchiver/pkg/discovery"
	"wxarchiver/pkg/logger"
	"wxarchiver/pkg/storage"
	"wxarchiver/pkg/ui"
	"wxarchiver/pkg/wechat"
)

var historyURL string

// crawlCmd represents the crawl-links command
var crawlCmd = &cobra.Command{
	Use:   "crawl-links",
	Short: "Discover every article URL of an account",
	Long: `Discover the account's article URLs and append new ones to links.jsonl.

Without cookies a browser window opens on the platform login page; scan the QR
code and the article list is paged through the platform API. With cookies the
account's mobile history page is scrolled instead.

The ledger is flushed after every page, so an interrupted crawl keeps what it
found, and platform pagination resumes from its last checkpoint.`,
	Example: `  # Interactive login, then page through the platform article list
  wxarchiver crawl-links --history-url 'https://mp.weixin.qq.com/mp/profile_ext?action=home&__biz=MzA5...=='

  # Reuse a copied cookie header and a custom archive root
  wxarchiver crawl-links --history-url '...' --cookie ./cookie.txt --out ./archive

  # Start platform pagination from the newest article again
  wxarchiver crawl-links --history-url '...' --restart`,
	Args: cobra.NoArgs,
	Run:  runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)
	addCrawlFlags(crawlCmd)
}

func addCrawlFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&historyURL, "history-url", "", "account history URL containing __biz (required)")
	cmd.Flags().StringP("out", "o", "", "archive root directory (default ./out)")
	cmd.Flags().Int("max-pages", 0, "maximum list pages or scroll rounds")
	cmd.Flags().Bool("headless", false, "run the discovery browser without a window")
	cmd.Flags().String("cookie", "", "cookie header string or path to a file containing it")
	cmd.Flags().String("profile", "", "stored cookie profile name")
	cmd.Flags().Bool("restart", false, "ignore any saved pagination checkpoint")
	cmd.Flags().String("chrome-path", "", "Chrome/Chromium executable")
	_ = cmd.MarkFlagRequired("history-url")
}

func runCrawl(cmd *cobra.Command, args []string) {
	cfg := loadConfig(changedFlags(cmd.Flags(), "discovery-headless"))
	cookies := resolveCookies(cfg)

	ctx, stop := signalContext()
	defer stop()

	if _, err := crawlLinks(ctx, cfg, cookies); err != nil {
		fail("Link discovery failed", err)
	}
}

// crawlLinks runs one discovery pass against the configured ledger
func crawlLinks(ctx context.Context, cfg *config.Config, cookies []auth.Cookie) (*discovery.Result, error) {
	log := logger.GetLogger()
	ui.PrintInfo("History URL", historyURL)
	ui.PrintInfo("Ledger", cfg.LinksPath())

	ledger, err := storage.LoadLedger(cfg.LinksPath(), wechat.NormalizeArticleURL)
	if err != nil {
		return nil, err
	}
	if ledger.Skipped() > 0 {
		ui.PrintWarning(fmt.Sprintf("Skipped %d unreadable ledger lines", ledger.Skipped()))
	}

	strategy := discovery.NewStrategy(browser.NewChromeLauncher(log), cfg, cookies, log)
	ui.PrintHighlight(fmt.Sprintf("Discovering links (%s)", strategy.Name()))

	result, err := discovery.NewEngine(ledger, log).Run(ctx, strategy, historyURL)
	if result != nil {
		ui.PrintSuccess(fmt.Sprintf("Links: %d new, %d total", result.Added, result.Total))
	}
	return result, err
}
