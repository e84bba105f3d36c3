// Package metrics exposes Prometheus counters for crawl and send runs.
package metrics

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cafenote/pkg/events"
	"cafenote/pkg/logger"
)

// Collector records pipeline metrics. It satisfies naver.RequestObserver and
// can be subscribed to an events.Bus through Handle.
type Collector struct {
	pagesFetched    prometheus.Counter
	authorsFound    prometheus.Counter
	notesSent       prometheus.Counter
	notesFailed     prometheus.Counter
	dailySent       prometheus.Gauge
	httpResponses   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	runs            *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cafenote_pages_fetched_total",
			Help: "Article list pages fetched successfully",
		}),
		authorsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cafenote_authors_collected_total",
			Help: "New authors collected by crawls",
		}),
		notesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cafenote_notes_sent_total",
			Help: "Notes the platform confirmed as sent",
		}),
		notesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cafenote_notes_failed_total",
			Help: "Notes that could not be sent",
		}),
		dailySent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cafenote_daily_sent_count",
			Help: "Provider-reported notes sent today",
		}),
		httpResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cafenote_http_responses_total",
			Help: "Platform responses by endpoint and status code (0 = transport failure)",
		}, []string{"endpoint", "status_code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cafenote_http_request_duration_seconds",
			Help:    "Platform request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cafenote_runs_total",
			Help: "Completed runs by kind and outcome",
		}, []string{"kind", "outcome"}),
	}

	reg.MustRegister(
		c.pagesFetched,
		c.authorsFound,
		c.notesSent,
		c.notesFailed,
		c.dailySent,
		c.httpResponses,
		c.requestDuration,
		c.runs,
	)
	return c
}

// ObserveRequest records one platform round trip
func (c *Collector) ObserveRequest(endpoint string, status int, duration time.Duration) {
	c.httpResponses.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	if endpoint == "articles" && status >= 200 && status < 300 {
		c.pagesFetched.Inc()
	}
}

// Handle turns pipeline events into metric updates
func (c *Collector) Handle(ev events.Event) {
	switch data := ev.Data.(type) {
	case events.CrawlProgress:
		c.authorsFound.Inc()
	case events.CrawlComplete:
		c.runs.WithLabelValues("crawl", outcome(data.Success)).Inc()
	case events.SendProgress:
		c.dailySent.Set(float64(data.DailySentCount))
		if data.InitialInfo || data.Member == nil {
			return
		}
		if data.Success {
			c.notesSent.Inc()
		} else {
			c.notesFailed.Inc()
		}
	case events.SendComplete:
		c.runs.WithLabelValues("send", outcome(data.Success)).Inc()
	}
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Handler serves the registry in the Prometheus text format
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.LogComponentStart(log, "metrics", map[string]interface{}{"address": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		logger.LogComponentStop(log, "metrics", "context done")
		return err
	}
}
