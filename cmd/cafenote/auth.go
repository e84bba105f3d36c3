package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cafenote/pkg/auth"
	"cafenote/pkg/session"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored Naver session cookies",
	Long: `Manage the browser session cookies cafenote uses to talk to Naver.

Cookies are stored using:
  - System keychain (when available)
  - Encrypted file under ~/.config/cafenote
  - CAFENOTE_COOKIES environment variable (read only)

Never share your cookies or config files!`,
}

var loginCmd = &cobra.Command{
	Use:   "login [account]",
	Short: "Store a logged-in cookie header",
	Long: `Store the Cookie header of a logged-in browser session.

The header is read without echo and must contain the NID_AUT cookie.
The account name defaults to the configured account ("default").`,
	Example: `  # Store cookies for the default account
  cafenote auth login

  # Store a second account
  cafenote auth login work`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [account]",
	Short: "Remove stored cookies",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts with masked cookies",
	RunE:  runAuthList,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the stored session is authenticated",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(authListCmd)
	authCmd.AddCommand(statusCmd)
}

func accountArg(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return cfg.Naver.Account
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewDefaultManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	name := accountArg(args)
	out := console.Writer()
	reader := bufio.NewReader(os.Stdin)

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Fprintf(out, "Account %q already has stored cookies. Overwrite? (y/N): ", name)
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			console.Println("Login cancelled.")
			return nil
		}
	}

	auth.WriteQuickGuide(out)

	var header string
	for {
		fmt.Fprint(out, "🍪 Cookie header: ")
		header, err = readSecret(reader)
		if err != nil {
			return fmt.Errorf("failed to read cookie header: %w", err)
		}
		if strings.EqualFold(header, "help") {
			auth.WriteCookieGuide(out)
			continue
		}
		break
	}

	cookies, err := session.ParseCookieHeader(header, cfg.Naver.CookieDomain)
	if err != nil {
		return err
	}
	if !hasCookie(cookies, cfg.Naver.AuthCookie) {
		return fmt.Errorf("cookie header has no %s cookie; copy it from a logged-in browser tab", cfg.Naver.AuthCookie)
	}

	fmt.Fprint(out, "🌐 User agent (Enter for default): ")
	ua, _ := reader.ReadString('\n')

	account := &auth.Account{
		Name:         name,
		Cookies:      header,
		UserAgent:    strings.TrimSpace(ua),
		LastModified: time.Now(),
	}
	if err := manager.Store(account); err != nil {
		return fmt.Errorf("failed to store cookies: %w", err)
	}

	console.Success(fmt.Sprintf("Stored %d cookies for account %q", len(cookies), name))
	return nil
}

func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(console.Writer())
		return strings.TrimSpace(string(b)), err
	}
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func hasCookie(cookies []*http.Cookie, name string) bool {
	for _, c := range cookies {
		if c.Name == name && c.Value != "" {
			return true
		}
	}
	return false
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewDefaultManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	name := accountArg(args)
	if err := manager.Delete(name); err != nil {
		return fmt.Errorf("failed to remove account %q: %w", name, err)
	}
	console.Success(fmt.Sprintf("Removed stored cookies for %q", name))
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewDefaultManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	accounts, err := manager.List()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		console.Println("No stored accounts. Run 'cafenote auth login' to add one.")
		return nil
	}
	for _, a := range accounts {
		safe := auth.SanitizeAccount(a)
		marker := "  "
		if a.Name == cfg.Naver.Account {
			marker = "* "
		}
		console.Printf("%s%-12s %s  (updated %s)\n", marker, safe.Name, safe.Cookies, safe.LastModified.Format("2006-01-02 15:04"))
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	manager, err := auth.NewDefaultManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	sess := session.New(session.Options{
		Domain:     cfg.Naver.CookieDomain,
		AuthCookie: cfg.Naver.AuthCookie,
		Loader: func(context.Context) (string, error) {
			return manager.CookieHeader(cfg.Naver.Account)
		},
	})
	defer sess.Close()

	if err := sess.Open(ctx); err != nil {
		console.Warning(fmt.Sprintf("Account %q: no usable session (%v)", cfg.Naver.Account, err))
		return nil
	}
	if sess.IsAuthenticated() {
		console.Success(fmt.Sprintf("Account %q is logged in", cfg.Naver.Account))
	} else {
		console.Warning(fmt.Sprintf("Account %q has cookies but no %s; crawls run anonymously and sends are refused", cfg.Naver.Account, cfg.Naver.AuthCookie))
	}
	return nil
}
