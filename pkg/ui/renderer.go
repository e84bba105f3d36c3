package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"cafenote/pkg/events"
)

const (
	barWidth = 20
	barFull  = "━"
	barEmpty = "─"
)

// Renderer turns crawl and send events into console output. In verbose mode
// every collected author and every recipient gets its own line; otherwise a
// single progress line is redrawn in place.
type Renderer struct {
	mu       sync.Mutex
	console  *Console
	notifier *Notifier
	verbose  bool
	now      func() time.Time

	started   time.Time
	collected int
	sent      int
	failed    int
	total     int
	daily     int
	limit     int
	lastLine  int
}

// NewRenderer creates a Renderer. notifier may be nil.
func NewRenderer(console *Console, notifier *Notifier, dailyLimit int, verbose bool) *Renderer {
	if console == nil {
		console = NewConsole(nil)
	}
	return &Renderer{
		console:  console,
		notifier: notifier,
		verbose:  verbose,
		limit:    dailyLimit,
		now:      time.Now,
	}
}

// Handle is an events.Handler
func (r *Renderer) Handle(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch d := ev.Data.(type) {
	case events.CrawlProgress:
		r.crawlProgress(d)
	case events.CrawlComplete:
		r.crawlComplete(d)
	case events.SendProgress:
		r.sendProgress(d)
	case events.SendComplete:
		r.sendComplete(d)
	}
}

func (r *Renderer) crawlProgress(p events.CrawlProgress) {
	if r.collected == 0 {
		r.started = r.now()
	}
	r.collected = p.Current
	if r.verbose {
		r.console.Printf("%s %-20s %s %s\n", Green("+"), p.Member.Nickname, Dim(p.Member.MemberKey), Dim(p.Source))
		return
	}
	r.redraw(fmt.Sprintf("%s collected %d • %s • %s",
		Cyan("[CRAWL]"), p.Current, p.Source, Dim(p.Member.Nickname)))
}

func (r *Renderer) crawlComplete(c events.CrawlComplete) {
	r.endLine()
	if !c.Success {
		r.console.Printf("%s Crawl failed after %d authors: %s\n", Red("✗"), c.Count, c.Error)
		if r.notifier != nil {
			r.notifier.Error("Crawl failed", c.Error)
		}
		r.resetCrawl()
		return
	}

	r.console.Printf("%s Collected %d new authors (%s)\n", Green("✓"), c.Count, c.Period)
	if !r.started.IsZero() {
		r.console.Printf("  %s in %s\n", Dim("•"), formatDuration(r.now().Sub(r.started)))
	}
	if r.notifier != nil {
		r.notifier.Success("Crawl complete", fmt.Sprintf("%d new authors in the last %s", c.Count, c.Period))
	}
	r.resetCrawl()
}

func (r *Renderer) sendProgress(p events.SendProgress) {
	r.total = p.Total
	r.daily = p.DailySentCount

	switch {
	case p.InitialInfo:
		r.started = r.now()
		r.console.Printf("%s %d recipients • %s\n", Magenta("[SEND]"), p.Total, r.dailyLabel())
		return
	case p.LimitReached:
		r.endLine()
		r.console.Printf("%s %s; %d recipients left untouched\n", Yellow("⚠"), p.Error, p.Total-p.Current)
		return
	case p.Success:
		r.sent++
	default:
		r.failed++
	}

	if r.verbose {
		mark, name := Green("✓"), ""
		if !p.Success {
			mark = Red("✗")
		}
		if p.Member != nil {
			name = p.Member.Nickname
		}
		line := fmt.Sprintf("%s [%d/%d] %s • %s", mark, p.Current, p.Total, name, r.dailyLabel())
		if p.Error != "" {
			line += " • " + Red(p.Error)
		}
		r.console.Println(line)
		return
	}

	line := fmt.Sprintf("%s [%s] %d/%d • %s", Magenta("[SEND]"), bar(p.Current, p.Total), p.Current, p.Total, r.dailyLabel())
	if r.failed > 0 {
		line += " • " + Red(fmt.Sprintf("%d failed", r.failed))
	}
	r.redraw(line)
}

func (r *Renderer) sendComplete(c events.SendComplete) {
	r.endLine()
	res := c.Results
	switch {
	case !c.Success && res.SuccessCount+res.FailureCount == 0:
		r.console.Printf("%s Send failed: %s\n", Red("✗"), c.Error)
		if r.notifier != nil {
			r.notifier.Error("Send failed", c.Error)
		}
	case !c.Success:
		r.console.Printf("%s Send stopped: %s\n", Yellow("⚠"), c.Error)
		r.console.Printf("  %s %d sent • %d failed\n", Dim("•"), res.SuccessCount, res.FailureCount)
	default:
		r.console.Printf("%s Sent %d notes", Green("✓"), res.SuccessCount)
		if res.FailureCount > 0 {
			r.console.Printf(" • %s", Red(fmt.Sprintf("%d failed", res.FailureCount)))
		}
		r.console.Println()
		if !r.started.IsZero() {
			r.console.Printf("  %s %s in %s\n", Dim("•"), r.dailyLabel(), formatDuration(r.now().Sub(r.started)))
		}
		if r.notifier != nil {
			r.notifier.Success("Send complete", fmt.Sprintf("%d sent, %d failed", res.SuccessCount, res.FailureCount))
		}
	}
	r.sent, r.failed, r.total = 0, 0, 0
	r.started = time.Time{}
}

func (r *Renderer) dailyLabel() string {
	if r.limit > 0 {
		return fmt.Sprintf("today %d/%d", r.daily, r.limit)
	}
	return fmt.Sprintf("today %d", r.daily)
}

func (r *Renderer) resetCrawl() {
	r.collected = 0
	r.started = time.Time{}
}

// redraw replaces the current in-place line
func (r *Renderer) redraw(line string) {
	pad := ""
	if n := r.lastLine - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	r.console.Printf("\r%s%s", line, pad)
	r.lastLine = len(line)
}

// endLine terminates an in-place line before regular output
func (r *Renderer) endLine() {
	if r.lastLine > 0 {
		r.console.Println()
		r.lastLine = 0
	}
}

func bar(done, total int) string {
	filled := 0
	if total > 0 {
		filled = done * barWidth / total
	}
	if filled > barWidth {
		filled = barWidth
	}
	return strings.Repeat(barFull, filled) + strings.Repeat(barEmpty, barWidth-filled)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
