package sender

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"cafenote/pkg/errors"
	"cafenote/pkg/events"
	"cafenote/pkg/logger"
	"cafenote/pkg/models"
	"cafenote/pkg/naver"
	"cafenote/pkg/ratelimit"
)

// DefaultDailyLimit is the platform's per-account daily note cap
const DefaultDailyLimit = 50

// Deps wires a Sender. Forms, Dispatcher, Ledger and Session are required.
type Deps struct {
	Forms      FormPreparer
	Dispatcher Dispatcher
	Ledger     Ledger
	Session    AuthChecker
	Events     events.Publisher

	// Preflight, when set, runs before each dispatch; failures are logged only
	Preflight Preflighter
	// Delay runs between recipients; nil means 1-2s of jitter
	Delay      ratelimit.Pacer
	DailyLimit int

	NewRunID func() string
	Logger   logger.Logger
}

// Sender dispatches one note per recipient, strictly in order
type Sender struct {
	deps    Deps
	log     logger.Logger
	running atomic.Bool
}

// New creates a Sender, filling defaults for optional deps
func New(deps Deps) *Sender {
	if deps.Events == nil {
		deps.Events = &events.Recorder{}
	}
	if deps.Delay == nil {
		deps.Delay = ratelimit.NewJitter(time.Second, 2*time.Second)
	}
	if deps.DailyLimit <= 0 {
		deps.DailyLimit = DefaultDailyLimit
	}
	if deps.NewRunID == nil {
		deps.NewRunID = uuid.NewString
	}
	if deps.Logger == nil {
		deps.Logger = logger.GetLogger()
	}
	return &Sender{deps: deps, log: deps.Logger.WithField("component", "sender")}
}

// Running reports whether a run is in flight
func (s *Sender) Running() bool {
	return s.running.Load()
}

// batch is the mutable state of one invocation
type batch struct {
	id         string
	recipients []models.AuthorRecord
	body       string
	dailySent  int
	results    models.SendResults
	log        logger.Logger
}

// Run sends body to each recipient in order. It stops early once the
// provider-reported daily counter reaches the limit. One recipient's failure
// never stops the batch. Exactly one sendComplete event is published per call.
func (s *Sender) Run(ctx context.Context, recipients []models.AuthorRecord, body string) (*models.SendResults, error) {
	runID := s.deps.NewRunID()

	if !s.running.CompareAndSwap(false, true) {
		err := errors.Busy("send")
		s.complete(runID, models.SendResults{}, err)
		return nil, err
	}
	defer s.running.Store(false)

	if err := s.validate(recipients, body); err != nil {
		s.log.WithError(err).Error("Send rejected")
		s.complete(runID, models.SendResults{}, err)
		return nil, err
	}

	b := &batch{
		id:         runID,
		recipients: recipients,
		body:       body,
		log:        s.log.WithField("run_id", runID),
	}
	logger.LogComponentStart(b.log, "sender", map[string]interface{}{
		"recipients":  len(recipients),
		"daily_limit": s.deps.DailyLimit,
	})

	ctx = logger.IntoContext(ctx, b.log)
	s.announce(ctx, b)
	runErr := s.loop(ctx, b)

	if runErr != nil {
		logger.LogComponentStop(b.log, "sender", "cancelled")
	} else {
		logger.LogComponentStop(b.log, "sender", "completed")
	}
	b.log.InfoWithFields("Send finished", map[string]interface{}{
		"success":    b.results.SuccessCount,
		"failure":    b.results.FailureCount,
		"untouched":  len(recipients) - b.results.SuccessCount - b.results.FailureCount,
		"daily_sent": b.dailySent,
	})

	s.complete(runID, b.results, runErr)
	results := b.results
	return &results, runErr
}

func (s *Sender) validate(recipients []models.AuthorRecord, body string) error {
	if s.deps.Session == nil || !s.deps.Session.IsAuthenticated() {
		return errors.Auth("not logged in; run `cafenote auth login` first")
	}
	if len(recipients) == 0 {
		return errors.Validation("recipient list is empty")
	}
	if strings.TrimSpace(body) == "" {
		return errors.Validation("message body is empty")
	}
	return nil
}

// announce reads the provider's current counter once, before any send.
// The form it fetches is discarded; tokens are never reused.
func (s *Sender) announce(ctx context.Context, b *batch) {
	form, err := s.deps.Forms.PrepareForm(ctx, b.recipients[0].MemberKey)
	switch {
	case err != nil:
		b.log.WithError(err).Warn("Could not read today's sent count; assuming 0")
	case form.HasCount:
		b.dailySent = form.TodaySentCount
	}

	s.progress(b, events.SendProgress{
		Current:        0,
		Success:        true,
		DailySentCount: b.dailySent,
		InitialInfo:    true,
	})
}

func (s *Sender) loop(ctx context.Context, b *batch) error {
	last := len(b.recipients) - 1
	for i := range b.recipients {
		rec := &b.recipients[i]
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("send cancelled: %w", err)
		}

		if b.dailySent >= s.deps.DailyLimit {
			s.limitReached(b, i)
			return nil
		}

		form, err := s.deps.Forms.PrepareForm(ctx, rec.MemberKey)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("send cancelled: %w", ctx.Err())
			}
			s.fail(b, i, rec, err)
		} else {
			if form.HasCount {
				b.dailySent = form.TodaySentCount
			}
			if b.dailySent >= s.deps.DailyLimit {
				s.limitReached(b, i)
				return nil
			}
			if err := s.dispatch(ctx, b, i, rec, form); err != nil {
				return err
			}
		}

		if i < last && b.dailySent < s.deps.DailyLimit {
			if err := s.deps.Delay.Pause(ctx); err != nil {
				return fmt.Errorf("send cancelled: %w", err)
			}
		}
	}
	return nil
}

// dispatch sends to one recipient and records the outcome. It only returns
// an error when the run was cancelled mid-send.
func (s *Sender) dispatch(ctx context.Context, b *batch, i int, rec *models.AuthorRecord, form *naver.FormInfo) error {
	if s.deps.Preflight != nil {
		if err := s.deps.Preflight.Preflight(ctx, rec.MemberKey); err != nil {
			b.log.WithError(err).WithField("member_key", rec.MemberKey).Debug("Preflight failed; sending anyway")
		}
	}

	res, err := s.deps.Dispatcher.SendNote(ctx, rec.MemberKey, b.body, form)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("send cancelled: %w", ctx.Err())
	}
	if res != nil && res.HasCount {
		b.dailySent = res.TodaySentCount
	}
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		s.fail(b, i, rec, err)
		return nil
	}

	b.results.SuccessCount++
	logger.LogDispatch(b.log, rec.MemberKey, rec.Nickname, b.dailySent, nil)
	s.record(ctx, b, rec)
	s.progress(b, events.SendProgress{
		Current:        i + 1,
		Member:         rec,
		Success:        true,
		DailySentCount: b.dailySent,
	})
	return nil
}

// record writes the ledger entry for a delivered note. A duplicate means the
// member is already recorded, which is the goal, so it is not an error.
func (s *Sender) record(ctx context.Context, b *batch, rec *models.AuthorRecord) {
	_, err := s.deps.Ledger.CreateLedgerEntry(ctx, models.LedgerEntry{
		MemberKey: rec.MemberKey,
		Nickname:  rec.Nickname,
		SourceRef: rec.SourceRef,
	})
	switch {
	case err == nil:
	case errors.IsType(err, errors.ErrorTypeDuplicate):
		b.log.WithField("member_key", rec.MemberKey).Debug("Recipient already in ledger")
	default:
		b.log.WithError(err).WithField("member_key", rec.MemberKey).Warn("Failed to record recipient in ledger")
	}
}

func (s *Sender) fail(b *batch, i int, rec *models.AuthorRecord, err error) {
	b.results.FailureCount++
	logger.LogDispatch(b.log, rec.MemberKey, rec.Nickname, b.dailySent, err)
	s.progress(b, events.SendProgress{
		Current:        i + 1,
		Member:         rec,
		Success:        false,
		Error:          err.Error(),
		DailySentCount: b.dailySent,
	})
}

func (s *Sender) limitReached(b *batch, processed int) {
	b.log.WarnWithFields("Daily note limit reached; stopping", map[string]interface{}{
		"daily_sent": b.dailySent,
		"limit":      s.deps.DailyLimit,
		"remaining":  len(b.recipients) - processed,
	})
	s.progress(b, events.SendProgress{
		Current:        processed,
		Success:        false,
		Error:          fmt.Sprintf("daily limit of %d notes reached", s.deps.DailyLimit),
		DailySentCount: b.dailySent,
		LimitReached:   true,
	})
}

func (s *Sender) progress(b *batch, p events.SendProgress) {
	p.Total = len(b.recipients)
	s.deps.Events.Publish(events.Event{Type: events.SendProgressType, RunID: b.id, Data: p})
}

func (s *Sender) complete(runID string, results models.SendResults, err error) {
	data := events.SendComplete{Success: err == nil, Results: results}
	if err != nil {
		data.Error = err.Error()
	}
	s.deps.Events.Publish(events.Event{Type: events.SendCompleteType, RunID: runID, Data: data})
}
