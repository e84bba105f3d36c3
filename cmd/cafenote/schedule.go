package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"cafenote/pkg/errors"
	"cafenote/pkg/logger"
	"cafenote/pkg/window"
)

var (
	scheduleCron   string
	schedulePeriod string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run crawls on a cron schedule until interrupted",
	Long: `Keep running and start a crawl every time the cron expression fires.
Each crawl writes a fresh snapshot, so 'cafenote send' always sees the most
recent result. Sending is never scheduled.`,
	Example: `  # Every morning at 9
  cafenote schedule --cron "0 9 * * *" --period 1day`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "five-field cron expression (default from config)")
	scheduleCmd.Flags().StringVarP(&schedulePeriod, "period", "p", "", "crawl window (default from config)")
}

// cronLogger adapts the application logger to cron.Logger
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.DebugWithFields(msg, pairs(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.WithError(err).ErrorWithFields(msg, pairs(keysAndValues))
}

func pairs(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(context.Background())
	defer stop()
	log := logger.GetLogger()

	spec := scheduleCron
	if spec == "" {
		spec = cfg.Schedule.Cron
	}
	if spec == "" {
		return errors.Validation("a cron expression is required: pass --cron or set schedule.cron")
	}
	raw := schedulePeriod
	if raw == "" {
		raw = cfg.Schedule.Period
	}
	if raw == "" {
		raw = cfg.Crawl.DefaultPeriod
	}
	period, err := window.ParsePeriod(raw)
	if err != nil {
		return err
	}

	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return errors.Validation(fmt.Sprintf("invalid cron expression %q: %v", spec, err))
	}

	a, cleanup, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer cleanup()

	cl := cronLogger{log: log}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	c.Schedule(schedule, cron.FuncJob(func() {
		if _, err := a.Crawler.Run(ctx, period); err != nil {
			log.WithError(err).Error("Scheduled crawl failed")
		}
	}))

	c.Start()
	console.Logo()
	console.Info("Schedule", spec)
	console.Info("Period", string(period))
	console.Info("Next run", schedule.Next(time.Now()).Format("2006-01-02 15:04"))
	console.Println("Press Ctrl-C to stop.")

	<-ctx.Done()
	<-c.Stop().Done()
	console.Println("Scheduler stopped.")
	return nil
}
