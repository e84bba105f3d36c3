// Package app assembles the crawl and send pipeline from configuration.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"cafenote/pkg/checkpoint"
	"cafenote/pkg/config"
	"cafenote/pkg/crawler"
	"cafenote/pkg/events"
	"cafenote/pkg/logger"
	"cafenote/pkg/metrics"
	"cafenote/pkg/models"
	"cafenote/pkg/naver"
	"cafenote/pkg/ratelimit"
	"cafenote/pkg/retry"
	"cafenote/pkg/sender"
	"cafenote/pkg/session"
	"cafenote/pkg/storage"
)

// Options are the runtime collaborators that do not come from Config
type Options struct {
	// Loader yields the cookie header for the session; nil leaves it closed
	Loader session.Loader
	// Handlers subscribe to the event bus in order
	Handlers []events.Handler
	// EventsLog, when set, receives every event as a JSON line
	EventsLog io.Writer
	// Registry collects metrics; nil creates a private one
	Registry *prometheus.Registry

	// PageDelay and SendDelay override the configured pacing (tests use NoDelay)
	PageDelay ratelimit.Pacer
	SendDelay ratelimit.Pacer
	Limiter   ratelimit.Limiter
	Logger    logger.Logger
}

// App is the wired pipeline. Close releases the database and session.
type App struct {
	Config    *config.Config
	DB        *storage.DB
	Session   *session.Session
	Client    *naver.Client
	Bus       *events.Bus
	Snapshots *checkpoint.Manager
	Registry  *prometheus.Registry
	Metrics   *metrics.Collector
	Crawler   *crawler.Crawler
	Sender    *sender.Sender

	log logger.Logger
}

// New opens storage, the session and the platform client, and builds both
// orchestrators on a shared event bus.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	db, err := storage.Open(cfg.Storage.Database)
	if err != nil {
		return nil, err
	}

	snapshots, err := checkpoint.NewManager(cfg.Storage.ResultsDir, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	sess := session.New(session.Options{
		Domain:     cfg.Naver.CookieDomain,
		AuthCookie: cfg.Naver.AuthCookie,
		Loader:     opts.Loader,
		Logger:     log,
	})
	if opts.Loader != nil {
		if err := sess.Open(ctx); err != nil {
			// crawls of public boards still work without a session
			log.WithError(err).Warn("No stored session; continuing anonymously")
		}
	}

	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	collector := metrics.NewCollector(registry)

	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)
	}
	client := naver.NewClient(cfg.Naver, sess,
		naver.WithLimiter(limiter),
		naver.WithRetry(retry.FromConfig(cfg.Retry, log)),
		naver.WithObserver(collector),
		naver.WithLogger(log),
		naver.WithPageSize(cfg.Crawl.PageSize),
	)

	bus := events.NewBus(log)
	for _, h := range opts.Handlers {
		bus.Subscribe(h)
	}
	if opts.EventsLog != nil {
		bus.Subscribe(events.JSONLines(opts.EventsLog))
	}
	bus.Subscribe(collector.Handle)

	pageDelay := opts.PageDelay
	if pageDelay == nil {
		pageDelay = ratelimit.FixedDelay(cfg.Crawl.PageDelay)
	}
	sendDelay := opts.SendDelay
	if sendDelay == nil {
		sendDelay = ratelimit.NewJitter(cfg.Send.MinDelay, cfg.Send.MaxDelay)
	}

	a := &App{
		Config:    cfg,
		DB:        db,
		Session:   sess,
		Client:    client,
		Bus:       bus,
		Snapshots: snapshots,
		Registry:  registry,
		Metrics:   collector,
		log:       log,
	}

	a.Crawler = crawler.New(crawler.Deps{
		Fetcher:   client,
		Sources:   db,
		Ledger:    db,
		Events:    bus,
		Session:   sess,
		Snapshots: snapshots,
		PageDelay: pageDelay,
		MaxPages:  cfg.Crawl.MaxPages,
		Logger:    log,
	})

	deps := sender.Deps{
		Forms:      client,
		Dispatcher: client,
		Ledger:     db,
		Session:    sess,
		Events:     bus,
		Delay:      sendDelay,
		DailyLimit: cfg.Send.DailyLimit,
		Logger:     log,
	}
	if cfg.Send.Preflight {
		deps.Preflight = client
	}
	a.Sender = sender.New(deps)

	return a, nil
}

// ServeMetrics exposes the registry until ctx is done
func (a *App) ServeMetrics(ctx context.Context) error {
	if !a.Config.Metrics.Enabled {
		return nil
	}
	return metrics.Serve(ctx, a.Config.Metrics.Address, a.Registry, a.log)
}

// Close forgets the session cookies and closes the database
func (a *App) Close() error {
	if err := a.Session.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to clear session")
	}
	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// RecipientsFromLatest loads the last crawl's members, drops everyone the
// ledger already holds and applies --only/--skip.
func (a *App) RecipientsFromLatest(ctx context.Context, only, skip []string) (*checkpoint.Snapshot, error) {
	snap, err := a.Snapshots.Latest()
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("no crawl results found in %s; run `cafenote crawl` first", a.Snapshots.Dir())
	}

	known, err := a.DB.LedgerKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	fresh := make([]models.AuthorRecord, 0, len(snap.Members))
	for _, m := range snap.Members {
		if _, ok := known[m.MemberKey]; !ok {
			fresh = append(fresh, m)
		}
	}
	if dropped := len(snap.Members) - len(fresh); dropped > 0 {
		a.log.InfoWithFields("Skipping members already in the ledger", map[string]interface{}{
			"run_id":  snap.RunID,
			"dropped": dropped,
		})
	}

	snap.Members = checkpoint.Select(fresh, only, skip)
	return snap, nil
}

