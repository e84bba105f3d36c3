package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cafenote/pkg/errors"
)

var (
	sendMessage    string
	sendTemplate   string
	sendOnly       []string
	sendSkip       []string
	sendYes        bool
	sendDailyLimit int
	sendPreflight  bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a note to the authors of the latest crawl",
	Long: `Send one note to each member collected by the latest crawl.

Recipients are processed one at a time with a fresh compose form for each.
Sending stops once the account's daily counter reaches the limit (50).
Every delivered note is recorded in the ledger.`,
	Example: `  # Use a saved template
  cafenote send --template hello

  # Inline message to two members only
  cafenote send -m "Hello!" --only abc123,def456 --yes`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendMessage, "message", "m", "", "note body")
	sendCmd.Flags().StringVarP(&sendTemplate, "template", "t", "", "name of a saved template to use as the body")
	sendCmd.Flags().StringSliceVar(&sendOnly, "only", nil, "send only to these member keys or nicknames")
	sendCmd.Flags().StringSliceVar(&sendSkip, "skip", nil, "leave out these member keys or nicknames")
	sendCmd.Flags().BoolVarP(&sendYes, "yes", "y", false, "do not ask for confirmation")
	sendCmd.Flags().IntVar(&sendDailyLimit, "daily-limit", 0, "stop at this daily count instead of the configured limit")
	sendCmd.Flags().BoolVar(&sendPreflight, "preflight", false, "ask the captcha endpoint before each send")
	sendCmd.MarkFlagsMutuallyExclusive("message", "template")
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(context.Background())
	defer stop()

	cfg.MergeCommandLineFlags(map[string]interface{}{
		"daily-limit": sendDailyLimit,
		"preflight":   sendPreflight,
	})

	a, cleanup, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer cleanup()

	body := sendMessage
	if sendTemplate != "" {
		tpl, err := a.DB.TemplateByName(ctx, sendTemplate)
		if err != nil {
			return fmt.Errorf("template %q: %w", sendTemplate, err)
		}
		body = tpl.Body
	}
	if strings.TrimSpace(body) == "" {
		return errors.Validation("a note body is required: pass --message or --template")
	}

	snap, err := a.RecipientsFromLatest(ctx, sendOnly, sendSkip)
	if err != nil {
		return err
	}
	if len(snap.Members) == 0 {
		console.Warning("No recipients left after filtering")
		return nil
	}

	console.Logo()
	console.Info("Crawl", fmt.Sprintf("%s (%s, %s)", snap.RunID, snap.Period, snap.CreatedAt.Format("2006-01-02 15:04")))
	console.Info("Recipients", fmt.Sprintf("%d", len(snap.Members)))
	console.Info("Message", preview(body, 60))

	if !sendYes && !confirm(fmt.Sprintf("Send this note to %d members?", len(snap.Members))) {
		console.Println("Nothing sent.")
		return nil
	}

	results, err := a.Sender.Run(ctx, snap.Members, body)
	if err != nil {
		return err
	}
	if results.FailureCount > 0 {
		console.Warning(fmt.Sprintf("%d notes failed; rerun 'cafenote crawl' to retry them later", results.FailureCount))
	}
	return nil
}

func confirm(question string) bool {
	fmt.Fprintf(console.Writer(), "%s (y/N): ", question)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.ToLower(strings.TrimSpace(answer)) == "y"
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
