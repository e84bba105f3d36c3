package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"cafenote/pkg/window"
)

var (
	crawlPeriod   string
	crawlMaxPages int
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Collect recent authors from the active boards",
	Long: `Walk every active source newest-first and collect each member who posted
within the period and has not been contacted before.

The result is saved as a snapshot in the results directory; 'cafenote send'
reads the latest one.`,
	Example: `  # Authors of the last day
  cafenote crawl

  # The last week, at most 10 pages per board
  cafenote crawl --period 1week --max-pages 10`,
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)
	crawlCmd.Flags().StringVarP(&crawlPeriod, "period", "p", "", "crawl window: 1day, 2days, 3days, 1week, 1month (default from config)")
	crawlCmd.Flags().IntVar(&crawlMaxPages, "max-pages", 0, "stop each board after this many pages (0 keeps the configured value)")
}

func runCrawl(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(context.Background())
	defer stop()

	cfg.MergeCommandLineFlags(map[string]interface{}{"max-pages": crawlMaxPages})
	raw := crawlPeriod
	if raw == "" {
		raw = cfg.Crawl.DefaultPeriod
	}
	period, err := window.ParsePeriod(raw)
	if err != nil {
		return err
	}

	console.Logo()
	a, cleanup, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := a.Crawler.Run(ctx, period)
	if err != nil {
		return err
	}

	for _, src := range result.Sources {
		if src.Err != nil {
			console.Warning(fmt.Sprintf("%s: stopped after %d pages: %v", sourceLabel(src.Source.Name, src.Source.Ref()), src.Pages, src.Err))
		}
	}
	if len(result.Members) > 0 {
		console.Info("Snapshot", result.RunID)
		console.Println("Next: cafenote send --template <name>")
	}
	return nil
}

func sourceLabel(name, ref string) string {
	if name == "" || name == ref {
		return ref
	}
	return fmt.Sprintf("%s (%s)", name, ref)
}
