package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"wxarchiver/pkg/auth"
	"wxarchiver/pkg/config"
	"wxarchiver/pkg/errors"
	"wxarchiver/pkg/logger"
	"wxarchiver/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wxarchiver",
	Short: "Archive the article history of a WeChat official account",
	Long: `wxarchiver builds a local, browsable archive of an official account's articles.

Work happens in two resumable stages:
  - crawl-links discovers every article URL and appends it to links.jsonl
  - fetch renders each article, saves its images and writes HTML, Markdown and meta.json

Both stages can be interrupted and re-run; finished work is never repeated.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.SetColor(!noColor)
		if quiet || logLevel == "error" {
			ui.SetQuietMode(true)
		}

		if cmd.Name() != "version" && cmd.Name() != "help" {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.wxarchiver.yaml or ~/.config/wxarchiver/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.SetVersionTemplate(`wxarchiver {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// flagKeys maps command line flag names onto configuration merge keys
var flagKeys = map[string]string{
	"out":         "out",
	"links":       "links",
	"chrome-path": "chrome-path",
	"cookie":      "cookie",
	"profile":     "profile",
	"max-pages":   "max-pages",
	"min-delay":   "min-delay",
	"max-delay":   "max-delay",
	"max-retries": "max-retries",
	"force":       "force",
	"restart":     "restart",
}

// changedFlags collects the flags the user actually set. headlessKey names the
// browser section --headless applies to.
func changedFlags(flags *pflag.FlagSet, headlessKey string) map[string]interface{} {
	out := make(map[string]interface{})
	flags.Visit(func(f *pflag.Flag) {
		if f.Name == "headless" && headlessKey != "" {
			if v, err := flags.GetBool(f.Name); err == nil {
				out[headlessKey] = v
			}
			return
		}
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		switch f.Value.Type() {
		case "bool":
			v, _ := flags.GetBool(f.Name)
			out[key] = v
		case "int":
			v, _ := flags.GetInt(f.Name)
			out[key] = v
		case "duration":
			v, _ := flags.GetDuration(f.Name)
			out[key] = v
		default:
			v := f.Value.String()
			if key == "links" {
				if abs, err := filepath.Abs(v); err == nil {
					v = abs
				}
			}
			out[key] = v
		}
	})
	if logLevel != "" {
		out["log-level"] = logLevel
	}
	return out
}

// loadConfig resolves configuration and initializes logging, exiting on failure
func loadConfig(flags map[string]interface{}) *config.Config {
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logging", err.Error())
		os.Exit(1)
	}
	logger.GetLogger().WithField("version", version).Debug("wxarchiver starting")
	return cfg
}

// resolveCookies picks the session cookies for a run. None is not an error.
func resolveCookies(cfg *config.Config) []auth.Cookie {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	arg := cfg.Credentials.Cookie
	if arg == "" {
		arg = cfg.Credentials.CookieFile
	}
	cookies, source, err := manager.Resolve(arg, cfg.Credentials.Profile)
	if err != nil {
		ui.PrintError("Failed to load cookies", err.Error())
		os.Exit(1)
	}

	if source != auth.SourceNone {
		ui.PrintInfo("Cookies", fmt.Sprintf("%d from %s", len(cookies), source))
		logger.GetLogger().WithFields(map[string]interface{}{
			"source":  string(source),
			"cookies": len(cookies),
		}).Info("Session cookies resolved")
	}
	return cookies
}

// signalContext is canceled on Ctrl-C or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// fail reports err, with a hint when a person has to act, and exits
func fail(title string, err error) {
	logger.GetLogger().WithError(err).Error(title)
	ui.PrintError(title, err.Error())
	if hint := operatorHint(err); hint != "" {
		ui.PrintWarning(hint)
	}
	os.Exit(1)
}

func operatorHint(err error) string {
	switch errors.TypeOf(err) {
	case errors.ErrorTypeSessionExpired:
		return "The session cookie has expired. Refresh it with 'wxarchiver auth set' and run again."
	case errors.ErrorTypeAccountNotEligible:
		return "Link a platform account you can log in with, then run again."
	case errors.ErrorTypeLoginTimeout:
		return "No login was detected. Run again and scan the QR code in the browser window."
	case errors.ErrorTypeVerificationTimeout:
		return "The verification wall was not cleared in time. Run again with a visible browser."
	case errors.ErrorTypeBlocked:
		return "The platform is asking for verification. Run with a visible browser or wait before retrying."
	}
	return ""
}
