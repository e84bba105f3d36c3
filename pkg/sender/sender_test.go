package sender

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"cafenote/pkg/errors"
	"cafenote/pkg/events"
	"cafenote/pkg/logger"
	"cafenote/pkg/models"
	"cafenote/pkg/naver"
	"cafenote/pkg/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider models the note service: a shared daily counter that every
// form reports and every successful send bumps.
type fakeProvider struct {
	mu        sync.Mutex
	daily     int
	tokens    int
	formErr   map[string]error
	sendErr   map[string]error
	reject    map[string]string
	noCount   bool
	forms     []string
	sends     []string
	usedToken map[string]bool
	onSend    func(memberKey string)
}

func newFakeProvider(daily int) *fakeProvider {
	return &fakeProvider{
		daily:     daily,
		formErr:   map[string]error{},
		sendErr:   map[string]error{},
		reject:    map[string]string{},
		usedToken: map[string]bool{},
	}
}

func (p *fakeProvider) PrepareForm(ctx context.Context, memberKey string) (*naver.FormInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forms = append(p.forms, memberKey)
	if err := p.formErr[memberKey]; err != nil {
		return nil, err
	}
	p.tokens++
	return &naver.FormInfo{
		Token:          fmt.Sprintf("tok-%d", p.tokens),
		SvcCode:        "1",
		TodaySentCount: p.daily,
		HasCount:       !p.noCount,
	}, nil
}

func (p *fakeProvider) SendNote(ctx context.Context, memberKey, content string, form *naver.FormInfo) (*naver.DispatchResult, error) {
	p.mu.Lock()
	p.sends = append(p.sends, memberKey)
	if p.usedToken[form.Token] {
		p.mu.Unlock()
		return nil, fmt.Errorf("token %s reused", form.Token)
	}
	p.usedToken[form.Token] = true
	onSend := p.onSend
	p.mu.Unlock()

	if onSend != nil {
		onSend(memberKey)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.sendErr[memberKey]; err != nil {
		return nil, err
	}
	if msg, ok := p.reject[memberKey]; ok {
		return &naver.DispatchResult{Success: false, Message: msg}, nil
	}
	p.daily++
	return &naver.DispatchResult{Success: true, TodaySentCount: p.daily, HasCount: !p.noCount}, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []models.LedgerEntry
	known   map[string]bool
	err     error
}

func (l *fakeLedger) CreateLedgerEntry(ctx context.Context, entry models.LedgerEntry) (*models.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.known[entry.MemberKey] {
		return nil, errors.Duplicate(entry.MemberKey)
	}
	if l.known == nil {
		l.known = map[string]bool{}
	}
	l.known[entry.MemberKey] = true
	l.entries = append(l.entries, entry)
	return &entry, nil
}

func (l *fakeLedger) keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.MemberKey)
	}
	return out
}

type authFlag bool

func (a authFlag) IsAuthenticated() bool { return bool(a) }

type countingPacer struct {
	mu    sync.Mutex
	calls int
}

func (p *countingPacer) Pause(ctx context.Context) error {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return ctx.Err()
}

type harness struct {
	provider *fakeProvider
	ledger   *fakeLedger
	recorder *events.Recorder
	pacer    *countingPacer
	log      *logger.TestLogger
	sender   *Sender
}

func newHarness(t *testing.T, daily int, mutate ...func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		provider: newFakeProvider(daily),
		ledger:   &fakeLedger{},
		recorder: &events.Recorder{},
		pacer:    &countingPacer{},
		log:      logger.NewTestLogger(),
	}
	deps := Deps{
		Forms:      h.provider,
		Dispatcher: h.provider,
		Ledger:     h.ledger,
		Session:    authFlag(true),
		Events:     h.recorder,
		Delay:      h.pacer,
		NewRunID:   func() string { return "run-1" },
		Logger:     h.log,
	}
	for _, m := range mutate {
		m(&deps)
	}
	h.sender = New(deps)
	return h
}

func recipients(keys ...string) []models.AuthorRecord {
	out := make([]models.AuthorRecord, len(keys))
	for i, k := range keys {
		out[i] = models.AuthorRecord{Nickname: "nick-" + k, MemberKey: k, SourceRef: "100/1"}
	}
	return out
}

func progressOf(t *testing.T, r *events.Recorder) []events.SendProgress {
	t.Helper()
	var out []events.SendProgress
	for _, ev := range r.OfType(events.SendProgressType) {
		p, ok := ev.Data.(events.SendProgress)
		require.True(t, ok)
		out = append(out, p)
	}
	return out
}

func completeOf(t *testing.T, r *events.Recorder) events.SendComplete {
	t.Helper()
	evs := r.OfType(events.SendCompleteType)
	require.Len(t, evs, 1, "exactly one completion event")
	c, ok := evs[0].Data.(events.SendComplete)
	require.True(t, ok)
	return c
}

func TestRun_AllSucceed(t *testing.T) {
	h := newHarness(t, 0)

	res, err := h.sender.Run(context.Background(), recipients("a", "b", "c"), "hello")
	require.NoError(t, err)
	assert.Equal(t, models.SendResults{SuccessCount: 3}, *res)

	assert.Equal(t, []string{"a", "b", "c"}, h.provider.sends)
	assert.Equal(t, []string{"a", "b", "c"}, h.ledger.keys())
	assert.Equal(t, 2, h.pacer.calls, "delay between recipients only")

	progress := progressOf(t, h.recorder)
	require.Len(t, progress, 4)
	assert.True(t, progress[0].InitialInfo)
	assert.Equal(t, 0, progress[0].Current)
	assert.Nil(t, progress[0].Member)
	for i, p := range progress[1:] {
		assert.Equal(t, i+1, p.Current)
		assert.Equal(t, 3, p.Total)
		assert.True(t, p.Success)
		assert.Equal(t, i+1, p.DailySentCount)
	}

	c := completeOf(t, h.recorder)
	assert.True(t, c.Success)
	assert.Equal(t, models.SendResults{SuccessCount: 3}, c.Results)
}

func TestRun_FreshTokenPerRecipient(t *testing.T) {
	h := newHarness(t, 0)

	_, err := h.sender.Run(context.Background(), recipients("a", "b"), "hello")
	require.NoError(t, err)

	// one count read plus one per recipient; a reused token would fail the send
	assert.Equal(t, []string{"a", "a", "b"}, h.provider.forms)
	assert.Len(t, h.provider.usedToken, 2)
}

func TestRun_StopsAtDailyLimit(t *testing.T) {
	h := newHarness(t, 48)

	res, err := h.sender.Run(context.Background(), recipients("r1", "r2", "r3"), "hello")
	require.NoError(t, err)
	assert.Equal(t, models.SendResults{SuccessCount: 2}, *res)

	assert.Equal(t, []string{"r1", "r2"}, h.provider.sends)
	assert.Equal(t, []string{"r1", "r2"}, h.ledger.keys())

	progress := progressOf(t, h.recorder)
	require.Len(t, progress, 4)
	assert.Equal(t, 48, progress[0].DailySentCount)
	assert.Equal(t, 49, progress[1].DailySentCount)
	assert.Equal(t, 50, progress[2].DailySentCount)

	limit := progress[3]
	assert.True(t, limit.LimitReached)
	assert.False(t, limit.Success)
	assert.Nil(t, limit.Member)
	assert.Equal(t, 2, limit.Current)

	c := completeOf(t, h.recorder)
	assert.True(t, c.Success)
	assert.Equal(t, 2, c.Results.SuccessCount)
	assert.True(t, h.log.HasMessage("Daily note limit reached; stopping"))
	assert.Equal(t, 1, h.pacer.calls, "no pause once the counter hits the limit")
}

func TestRun_AlreadyAtLimit(t *testing.T) {
	h := newHarness(t, 50)

	res, err := h.sender.Run(context.Background(), recipients("a", "b"), "hello")
	require.NoError(t, err)
	assert.Equal(t, models.SendResults{}, *res)
	assert.Empty(t, h.provider.sends)

	progress := progressOf(t, h.recorder)
	require.Len(t, progress, 2)
	assert.True(t, progress[1].LimitReached)
	assert.Equal(t, 0, progress[1].Current)
}

func TestRun_CustomLimit(t *testing.T) {
	h := newHarness(t, 0, func(d *Deps) { d.DailyLimit = 1 })

	res, err := h.sender.Run(context.Background(), recipients("a", "b"), "hello")
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, []string{"a"}, h.provider.sends)
}

func TestRun_FailureIsolated(t *testing.T) {
	h := newHarness(t, 0)
	h.provider.reject["b"] = "blocked by recipient"

	res, err := h.sender.Run(context.Background(), recipients("a", "b", "c"), "hello")
	require.NoError(t, err)
	assert.Equal(t, models.SendResults{SuccessCount: 2, FailureCount: 1}, *res)

	assert.Equal(t, []string{"a", "b", "c"}, h.provider.sends)
	assert.Equal(t, []string{"a", "c"}, h.ledger.keys(), "failed recipient is not recorded")

	progress := progressOf(t, h.recorder)
	require.Len(t, progress, 4)
	failed := progress[2]
	assert.False(t, failed.Success)
	require.NotNil(t, failed.Member)
	assert.Equal(t, "b", failed.Member.MemberKey)
	assert.Contains(t, failed.Error, "blocked by recipient")

	assert.True(t, completeOf(t, h.recorder).Success)
}

func TestRun_TransportErrorIsolated(t *testing.T) {
	h := newHarness(t, 0)
	h.provider.sendErr["a"] = errors.Network(fmt.Errorf("connection reset"))

	res, err := h.sender.Run(context.Background(), recipients("a", "b"), "hello")
	require.NoError(t, err)
	assert.Equal(t, models.SendResults{SuccessCount: 1, FailureCount: 1}, *res)
	assert.Equal(t, []string{"b"}, h.ledger.keys())
}

func TestRun_FormFailureCountsAndContinues(t *testing.T) {
	h := newHarness(t, 0)
	h.provider.formErr["b"] = errors.FormUnavailable("compose form has no token")

	res, err := h.sender.Run(context.Background(), recipients("a", "b", "c"), "hello")
	require.NoError(t, err)
	assert.Equal(t, models.SendResults{SuccessCount: 2, FailureCount: 1}, *res)
	assert.Equal(t, []string{"a", "c"}, h.provider.sends, "no dispatch without a form")
	assert.Equal(t, 2, h.pacer.calls)

	progress := progressOf(t, h.recorder)
	assert.Contains(t, progress[2].Error, "compose form has no token")
}

func TestRun_CountReadFailureAssumesZero(t *testing.T) {
	h := newHarness(t, 0)
	h.provider.formErr["a"] = errors.Upstream(503, "")

	res, err := h.sender.Run(context.Background(), recipients("a", "b"), "hello")
	require.NoError(t, err)
	assert.Equal(t, models.SendResults{SuccessCount: 1, FailureCount: 1}, *res)

	progress := progressOf(t, h.recorder)
	assert.True(t, progress[0].InitialInfo)
	assert.Equal(t, 0, progress[0].DailySentCount)
	assert.True(t, h.log.HasMessage("Could not read today's sent count; assuming 0"))
}

func TestRun_MissingCounterStaysAtLastKnown(t *testing.T) {
	h := newHarness(t, 7)
	h.provider.noCount = true

	res, err := h.sender.Run(context.Background(), recipients("a", "b"), "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, res.SuccessCount)

	for _, p := range progressOf(t, h.recorder) {
		assert.Equal(t, 0, p.DailySentCount)
	}
}

func TestRun_DuplicateLedgerEntrySwallowed(t *testing.T) {
	h := newHarness(t, 0)
	h.ledger.known = map[string]bool{"a": true}

	res, err := h.sender.Run(context.Background(), recipients("a", "b"), "hello")
	require.NoError(t, err)
	assert.Equal(t, models.SendResults{SuccessCount: 2}, *res)
	assert.Empty(t, h.log.GetMessagesByLevel("WARN"))
	assert.True(t, h.log.HasMessage("Recipient already in ledger"))
}

func TestRun_LedgerErrorDoesNotFailSend(t *testing.T) {
	h := newHarness(t, 0)
	h.ledger.err = fmt.Errorf("disk full")

	res, err := h.sender.Run(context.Background(), recipients("a"), "hello")
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessCount)
	assert.True(t, h.log.HasMessage("Failed to record recipient in ledger"))
}

type failingPreflight struct{ calls int }

func (f *failingPreflight) Preflight(ctx context.Context, memberKey string) error {
	f.calls++
	return fmt.Errorf("captcha endpoint unavailable")
}

func TestRun_PreflightFailureIsNotFatal(t *testing.T) {
	pre := &failingPreflight{}
	h := newHarness(t, 0, func(d *Deps) { d.Preflight = pre })

	res, err := h.sender.Run(context.Background(), recipients("a", "b"), "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 2, pre.calls)
}

func TestRun_Preconditions(t *testing.T) {
	tests := []struct {
		name       string
		auth       bool
		recipients []models.AuthorRecord
		body       string
		errType    errors.ErrorType
	}{
		{"not authenticated", false, recipients("a"), "hello", errors.ErrorTypeAuth},
		{"no recipients", true, nil, "hello", errors.ErrorTypeValidation},
		{"empty body", true, recipients("a"), "", errors.ErrorTypeValidation},
		{"blank body", true, recipients("a"), "  \n\t", errors.ErrorTypeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 0, func(d *Deps) { d.Session = authFlag(tt.auth) })

			res, err := h.sender.Run(context.Background(), tt.recipients, tt.body)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.errType, errors.TypeOf(err))

			assert.Empty(t, h.provider.forms)
			assert.Empty(t, h.recorder.OfType(events.SendProgressType))
			c := completeOf(t, h.recorder)
			assert.False(t, c.Success)
			assert.NotEmpty(t, c.Error)
		})
	}
}

func TestRun_BusyRejected(t *testing.T) {
	h := newHarness(t, 0)
	entered := make(chan struct{})
	release := make(chan struct{})
	h.provider.onSend = func(string) {
		close(entered)
		<-release
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.sender.Run(context.Background(), recipients("a"), "hello")
		done <- err
	}()
	<-entered
	assert.True(t, h.sender.Running())

	res, err := h.sender.Run(context.Background(), recipients("b"), "hello")
	assert.Nil(t, res)
	assert.True(t, errors.IsType(err, errors.ErrorTypeBusy))

	close(release)
	require.NoError(t, <-done)
	assert.False(t, h.sender.Running())

	completes := h.recorder.OfType(events.SendCompleteType)
	require.Len(t, completes, 2)
	busy := completes[0].Data.(events.SendComplete)
	assert.False(t, busy.Success)
	assert.Contains(t, busy.Error, "already in progress")
	assert.True(t, completes[1].Data.(events.SendComplete).Success)
}

func TestRun_CancelledMidBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(t, 0)
	h.provider.onSend = func(key string) {
		if key == "b" {
			cancel()
		}
	}
	h.provider.sendErr["b"] = context.Canceled

	res, err := h.sender.Run(ctx, recipients("a", "b", "c"), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, models.SendResults{SuccessCount: 1}, *res, "interrupted send is not counted")
	assert.Equal(t, []string{"a", "b"}, h.provider.sends)

	c := completeOf(t, h.recorder)
	assert.False(t, c.Success)
	assert.Equal(t, 1, c.Results.SuccessCount)
}

func TestRun_DefaultsApplied(t *testing.T) {
	s := New(Deps{})
	assert.Equal(t, DefaultDailyLimit, s.deps.DailyLimit)
	j, ok := s.deps.Delay.(*ratelimit.Jitter)
	require.True(t, ok)
	assert.Equal(t, 1, int(j.Min.Seconds()))
	assert.Equal(t, 2, int(j.Max.Seconds()))
	assert.NotEmpty(t, s.deps.NewRunID())
}
