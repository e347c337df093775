package main

import (
	"github.com/spf13/cobra"
	"wxarchiver/pkg/browser"
	"wxarchiver/pkg/logger"
	"wxarchiver/pkg/ui"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover links, then capture every article",
	Long: `Run crawl-links followed by fetch against the same archive root.

Discovery uses a visible browser by default and capture a headless one; the
--headless flag applies to discovery only. Capture runs even when discovery
stopped early, as long as the ledger holds links.`,
	Example: `  wxarchiver run --history-url '...' --out ./archive --min-delay 20s --max-delay 60s`,
	Args:    cobra.NoArgs,
	Run:     runAll,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addCrawlFlags(runCmd)
	addFetchFlags(runCmd, false)
}

func runAll(cmd *cobra.Command, args []string) {
	cfg := loadConfig(changedFlags(cmd.Flags(), "discovery-headless"))
	cookies := resolveCookies(cfg)

	ctx, stop := signalContext()
	defer stop()

	if _, err := crawlLinks(ctx, cfg, cookies); err != nil {
		fail("Link discovery failed", err)
	}

	links, err := ledgerLinks(cfg)
	if err != nil {
		fail("Failed to read link ledger", err)
	}
	if len(links) == 0 {
		ui.PrintWarning("Discovery found no links; nothing to capture.")
		return
	}

	launcher := browser.NewChromeLauncher(logger.GetLogger())
	if _, err := fetchLinks(ctx, cfg, launcher, cookies, staticLinks(links)); err != nil {
		fail("Capture stopped", err)
	}
}
