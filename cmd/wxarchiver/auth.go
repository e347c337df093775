package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"wxarchiver/pkg/auth"
	"wxarchiver/pkg/ui"
)

var (
	authProfile string
	authCookie  string
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored session cookies",
	Long: `Manage session cookies used by crawl-links and fetch.

Cookies are stored under a profile name using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - The WXARCHIVER_COOKIE environment variable (read only)

The cookie grants access to your account. Never share it.`,
}

// authSetCmd represents the auth set command
var authSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store a session cookie under a profile",
	Long: `Store a copied Cookie header under a profile name.

Without --cookie you are prompted for it; input is hidden. Type 'help' at the
prompt for step-by-step instructions.`,
	Example: `  # Interactive prompt
  wxarchiver auth set

  # Store a file's contents under a named profile
  wxarchiver auth set --profile work --cookie ./cookie.txt`,
	Args: cobra.NoArgs,
	Run:  runAuthSet,
}

// authShowCmd represents the auth show command
var authShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List stored profiles with masked cookie values",
	Args:  cobra.NoArgs,
	Run:   runAuthShow,
}

// authDeleteCmd represents the auth delete command
var authDeleteCmd = &cobra.Command{
	Use:   "delete [profile]",
	Short: "Remove a stored profile",
	Args:  cobra.MaximumNArgs(1),
	Run:   runAuthDelete,
}

// authGuideCmd represents the auth guide command
var authGuideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Explain how to copy a session cookie from a browser",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		auth.ShowCookieExtractionGuide(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authShowCmd)
	authCmd.AddCommand(authDeleteCmd)
	authCmd.AddCommand(authGuideCmd)

	authSetCmd.Flags().StringVar(&authProfile, "profile", auth.DefaultProfile, "profile name")
	authSetCmd.Flags().StringVar(&authCookie, "cookie", "", "cookie header string or path to a file containing it")
}

func newAuthManager() *auth.Manager {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}
	return manager
}

func runAuthSet(cmd *cobra.Command, args []string) {
	manager := newAuthManager()

	raw := authCookie
	if raw == "" {
		var err error
		raw, err = promptCookie()
		if err != nil {
			ui.PrintError("Failed to read cookie", err.Error())
			os.Exit(1)
		}
	}

	cookies, err := auth.LoadCookies(raw)
	if err != nil {
		ui.PrintError("Failed to read cookie", err.Error())
		os.Exit(1)
	}
	if len(cookies) == 0 {
		ui.PrintError("No cookies found", "expected name=value pairs separated by ';'")
		os.Exit(1)
	}

	profile := &auth.Profile{
		Name:         authProfile,
		Cookie:       auth.CookieHeader(cookies),
		LastModified: time.Now(),
	}
	if err := manager.Store(profile); err != nil {
		ui.PrintError("Failed to store cookie", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess(fmt.Sprintf("Stored %d cookies under profile '%s'", len(cookies), authProfile))
	ui.PrintInfo("Cookie", auth.SanitizeProfile(profile).Cookie)
}

func runAuthShow(cmd *cobra.Command, args []string) {
	profiles, err := newAuthManager().List()
	if err != nil {
		ui.PrintError("Failed to list profiles", err.Error())
		os.Exit(1)
	}

	if len(profiles) == 0 {
		ui.PrintInfo("No stored profiles", "Use 'wxarchiver auth set' to add one")
		return
	}

	ui.PrintHighlight("Stored Profiles")
	for i, p := range profiles {
		sanitized := auth.SanitizeProfile(p)
		fmt.Printf("%d. Profile: %s\n", i+1, sanitized.Name)
		fmt.Printf("   Cookie: %s\n", sanitized.Cookie)
		fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
}

func runAuthDelete(cmd *cobra.Command, args []string) {
	name := auth.DefaultProfile
	if len(args) > 0 {
		name = args[0]
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("Remove profile '%s'? (y/N): ", name)
	input, _ := reader.ReadString('\n')
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
		return
	}

	if err := newAuthManager().Delete(name); err != nil {
		ui.PrintError("Failed to remove profile", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("Profile removed: " + name)
}

// promptCookie asks for the cookie header until something other than 'help' is entered
func promptCookie() (string, error) {
	auth.ShowQuickExtractGuide(os.Stdout)
	for {
		fmt.Print("\nCookie: ")
		value, err := readPassword()
		if err != nil {
			return "", err
		}
		if strings.EqualFold(value, "help") {
			auth.ShowCookieExtractionGuide(os.Stdout)
			continue
		}
		return value, nil
	}
}

// readPassword reads a line from stdin without echoing
func readPassword() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		value, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(value)), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
