package crawler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"cafenote/pkg/checkpoint"
	"cafenote/pkg/errors"
	"cafenote/pkg/events"
	"cafenote/pkg/logger"
	"cafenote/pkg/models"
	"cafenote/pkg/naver"
	"cafenote/pkg/ratelimit"
	"cafenote/pkg/window"
)

// DefaultMaxPages caps pagination per source
const DefaultMaxPages = 100

// Deps wires a Crawler. Fetcher, Sources and Ledger are required.
type Deps struct {
	Fetcher ArticleFetcher
	Sources SourceLister
	Ledger  Ledger
	Events  events.Publisher

	// Session, when set, is checked before a run; a missing auth cookie is
	// only a warning since some boards are public
	Session   AuthChecker
	Snapshots SnapshotSaver

	// Rules locates the article list; nil means naver.DefaultRules
	Rules []naver.ExtractionRule
	// PageDelay runs after every page fetch
	PageDelay ratelimit.Pacer
	MaxPages  int

	Now      func() time.Time
	NewRunID func() string
	Logger   logger.Logger
}

// Crawler collects distinct recent authors across the active sources
type Crawler struct {
	deps    Deps
	log     logger.Logger
	running atomic.Bool
}

// SourceOutcome reports how one source's pagination ended
type SourceOutcome struct {
	Source        models.Source
	Pages         int
	Collected     int
	ReachedCutoff bool
	Exhausted     bool
	Err           error
}

// Result is what a finished run returns
type Result struct {
	RunID   string
	Period  window.Period
	Cutoff  int64
	Members []models.AuthorRecord
	Sources []SourceOutcome
}

// New creates a Crawler, filling defaults for optional deps
func New(deps Deps) *Crawler {
	if deps.Events == nil {
		deps.Events = &events.Recorder{}
	}
	if deps.Rules == nil {
		deps.Rules = naver.DefaultRules
	}
	if deps.PageDelay == nil {
		deps.PageDelay = ratelimit.FixedDelay(500 * time.Millisecond)
	}
	if deps.MaxPages <= 0 {
		deps.MaxPages = DefaultMaxPages
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewRunID == nil {
		deps.NewRunID = uuid.NewString
	}
	if deps.Logger == nil {
		deps.Logger = logger.GetLogger()
	}
	return &Crawler{deps: deps, log: deps.Logger.WithField("component", "crawler")}
}

// Running reports whether a run is in flight
func (c *Crawler) Running() bool {
	return c.running.Load()
}

// run is the mutable state of one invocation
type run struct {
	id        string
	period    window.Period
	window    window.Window
	excluded  map[string]struct{}
	collected map[string]struct{}
	members   []models.AuthorRecord
}

// Run crawls every active source for authors who posted within period.
// Exactly one crawlComplete event is published per call, including calls
// rejected up front.
func (c *Crawler) Run(ctx context.Context, period window.Period) (*Result, error) {
	runID := c.deps.NewRunID()
	log := c.log.WithField("run_id", runID)

	if !c.running.CompareAndSwap(false, true) {
		err := errors.Busy("crawl")
		c.complete(runID, period, nil, err)
		return nil, err
	}
	defer c.running.Store(false)

	r, sources, err := c.prepare(ctx, runID, period)
	if err != nil {
		log.WithError(err).Error("Crawl rejected")
		c.complete(runID, period, nil, err)
		return nil, err
	}

	logger.LogComponentStart(log, "crawler", map[string]interface{}{
		"period":   string(r.period),
		"cutoff":   time.UnixMilli(r.window.Cutoff).UTC().Format(time.RFC3339),
		"sources":  len(sources),
		"excluded": len(r.excluded),
	})

	ctx = logger.IntoContext(ctx, log)
	result := &Result{RunID: runID, Period: r.period, Cutoff: r.window.Cutoff}
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		result.Sources = append(result.Sources, c.crawlSource(ctx, log, r, src))
	}
	result.Members = r.members

	runErr := ctx.Err()
	if runErr != nil {
		runErr = fmt.Errorf("crawl cancelled: %w", runErr)
		logger.LogComponentStop(log, "crawler", "cancelled")
	} else {
		logger.LogComponentStop(log, "crawler", "completed")
	}

	c.saveSnapshot(log, result, runErr)
	c.complete(runID, r.period, r.members, runErr)
	if runErr != nil {
		return result, runErr
	}
	return result, nil
}

// prepare validates the request and takes the ledger snapshot
func (c *Crawler) prepare(ctx context.Context, runID string, period window.Period) (*run, []models.Source, error) {
	p, err := window.ParsePeriod(string(period))
	if err != nil {
		return nil, nil, err
	}
	win, err := window.New(p, c.deps.Now())
	if err != nil {
		return nil, nil, err
	}

	sources, err := c.deps.Sources.ActiveSources(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load sources: %w", err)
	}
	if len(sources) == 0 {
		return nil, nil, errors.Validation("no active sources configured; add one with `cafenote sources add`")
	}

	if c.deps.Session != nil && !c.deps.Session.IsAuthenticated() {
		c.log.Warn("Session is not authenticated; member-only boards will return nothing")
	}

	excluded, err := c.deps.Ledger.LedgerKeys(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	return &run{
		id:        runID,
		period:    p,
		window:    win,
		excluded:  excluded,
		collected: make(map[string]struct{}),
	}, sources, nil
}

// crawlSource pages through one source until the window boundary, an empty
// page, the page cap, an error, or cancellation. Errors end only this source.
func (c *Crawler) crawlSource(ctx context.Context, log logger.Logger, r *run, src models.Source) SourceOutcome {
	out := SourceOutcome{Source: src}
	log = log.WithFields(map[string]interface{}{
		"source":      src.Name,
		"cafe_id":     src.CafeID,
		"category_id": src.CategoryID,
	})
	ctx = logger.IntoContext(ctx, log)

	for page := 1; page <= c.deps.MaxPages; page++ {
		if ctx.Err() != nil {
			return out
		}

		result, err := c.deps.Fetcher.FetchArticlePage(ctx, src.CafeID, src.CategoryID, page)
		if err == nil {
			out.Pages++
			if naver.ArticleCount(c.deps.Rules, result) == 0 {
				out.Exhausted = true
			} else {
				out.Collected += c.consume(r, src, naver.ExtractAuthorsWith(c.deps.Rules, result, src), &out)
			}
		}

		if pauseErr := c.deps.PageDelay.Pause(ctx); pauseErr != nil {
			return out
		}

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return out
			}
			out.Err = err
			log.WithError(err).WithField("page", page).Warn("Page fetch failed; skipping rest of source")
			return out
		case out.ReachedCutoff:
			log.DebugWithFields("Reached window boundary", map[string]interface{}{"page": page})
			return out
		case out.Exhausted:
			log.DebugWithFields("No more articles", map[string]interface{}{"page": page})
			return out
		}
	}

	log.WarnWithFields("Page cap reached", map[string]interface{}{"max_pages": c.deps.MaxPages})
	return out
}

// consume applies the window, the ledger snapshot and in-run dedup to one
// page of records, in page order. It returns how many were newly collected.
func (c *Crawler) consume(r *run, src models.Source, records []models.AuthorRecord, out *SourceOutcome) int {
	added := 0
	for _, rec := range records {
		if !r.window.Contains(rec.WriteTimestamp) {
			out.ReachedCutoff = true
			return added
		}
		if _, known := r.excluded[rec.MemberKey]; known {
			continue
		}
		if _, seen := r.collected[rec.MemberKey]; seen {
			continue
		}

		r.collected[rec.MemberKey] = struct{}{}
		r.members = append(r.members, rec)
		added++

		c.deps.Events.Publish(events.Event{
			Type:  events.CrawlProgressType,
			RunID: r.id,
			Data: events.CrawlProgress{
				Current: len(r.members),
				Member:  rec,
				Source:  src.Name,
				Period:  r.period,
			},
		})
	}
	return added
}

func (c *Crawler) complete(runID string, period window.Period, members []models.AuthorRecord, err error) {
	data := events.CrawlComplete{
		Success: err == nil,
		Count:   len(members),
		Members: members,
		Period:  period,
	}
	if data.Members == nil {
		data.Members = []models.AuthorRecord{}
	}
	if err != nil {
		data.Error = err.Error()
	}
	c.deps.Events.Publish(events.Event{Type: events.CrawlCompleteType, RunID: runID, Data: data})
}

func (c *Crawler) saveSnapshot(log logger.Logger, result *Result, runErr error) {
	if c.deps.Snapshots == nil {
		return
	}
	snap := &checkpoint.Snapshot{
		RunID:     result.RunID,
		Period:    result.Period,
		Cutoff:    result.Cutoff,
		Success:   runErr == nil,
		Members:   result.Members,
		CreatedAt: c.deps.Now(),
	}
	if snap.Members == nil {
		snap.Members = []models.AuthorRecord{}
	}
	if runErr != nil {
		snap.Error = runErr.Error()
	}
	if err := c.deps.Snapshots.Save(snap); err != nil {
		log.WithError(err).Warn("Failed to save crawl snapshot")
	}
}
