package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"cafenote/pkg/events"
	"cafenote/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDesktop struct {
	titles []string
}

func (f *fakeDesktop) Send(title, message string) error {
	f.titles = append(f.titles, title)
	return nil
}

func newTestRenderer(verbose bool) (*Renderer, *bytes.Buffer, *fakeDesktop) {
	SetColor(false)
	buf := &bytes.Buffer{}
	console := NewConsole(buf)
	desktop := &fakeDesktop{}
	r := NewRenderer(console, NewNotifier(desktop, console), 50, verbose)
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(5 * time.Second)
		return clock
	}
	return r, buf, desktop
}

func TestRenderer_CrawlVerbose(t *testing.T) {
	r, buf, desktop := newTestRenderer(true)

	r.Handle(events.Event{Type: events.CrawlProgressType, Data: events.CrawlProgress{
		Current: 1,
		Member:  models.AuthorRecord{Nickname: "alice", MemberKey: "k1"},
		Source:  "Free board",
	}})
	r.Handle(events.Event{Type: events.CrawlCompleteType, Data: events.CrawlComplete{
		Success: true, Count: 1, Period: "1day",
	}})

	out := buf.String()
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "k1")
	assert.Contains(t, out, "Collected 1 new authors (1day)")
	assert.Equal(t, []string{"Crawl complete"}, desktop.titles)
}

func TestRenderer_CrawlFailure(t *testing.T) {
	r, buf, desktop := newTestRenderer(false)

	r.Handle(events.Event{Data: events.CrawlComplete{Success: false, Error: "no active sources configured"}})

	assert.Contains(t, buf.String(), "Crawl failed after 0 authors: no active sources configured")
	assert.Equal(t, []string{"Crawl failed"}, desktop.titles)
}

func TestRenderer_SendCompactLine(t *testing.T) {
	r, buf, _ := newTestRenderer(false)
	member := &models.AuthorRecord{Nickname: "bob", MemberKey: "k2"}

	r.Handle(events.Event{Data: events.SendProgress{Total: 2, DailySentCount: 48, InitialInfo: true, Success: true}})
	r.Handle(events.Event{Data: events.SendProgress{Current: 1, Total: 2, Member: member, Success: true, DailySentCount: 49}})
	r.Handle(events.Event{Data: events.SendProgress{Current: 2, Total: 2, Member: member, Error: "blocked", DailySentCount: 49}})
	r.Handle(events.Event{Data: events.SendComplete{Success: true, Results: models.SendResults{SuccessCount: 1, FailureCount: 1}}})

	out := buf.String()
	assert.Contains(t, out, "2 recipients • today 48/50")
	assert.Contains(t, out, "\r[SEND] [━━━━━━━━━━──────────] 1/2 • today 49/50")
	assert.Contains(t, out, "1 failed")
	assert.Contains(t, out, "Sent 1 notes • 1 failed")
}

func TestRenderer_SendLimitAndVerbose(t *testing.T) {
	r, buf, _ := newTestRenderer(true)
	member := &models.AuthorRecord{Nickname: "carol", MemberKey: "k3"}

	r.Handle(events.Event{Data: events.SendProgress{Current: 1, Total: 3, Member: member, Success: true, DailySentCount: 50}})
	r.Handle(events.Event{Data: events.SendProgress{Current: 1, Total: 3, LimitReached: true, Error: "daily limit of 50 notes reached", DailySentCount: 50}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "✓ [1/3] carol • today 50/50", lines[0])
	assert.Equal(t, "⚠ daily limit of 50 notes reached; 2 recipients left untouched", lines[1])
}

func TestRenderer_SendRejected(t *testing.T) {
	r, buf, desktop := newTestRenderer(false)

	r.Handle(events.Event{Data: events.SendComplete{Success: false, Error: "send already in progress"}})

	assert.Contains(t, buf.String(), "Send failed: send already in progress")
	assert.Equal(t, []string{"Send failed"}, desktop.titles)
}

func TestNotifier_ConsoleOnly(t *testing.T) {
	SetColor(false)
	buf := &bytes.Buffer{}
	n := NewNotifier(nil, NewConsole(buf))

	n.Notify("Scheduled crawl", "next run at 09:00")
	assert.Equal(t, "\nScheduled crawl: next run at 09:00\n", buf.String())
}

func TestBar(t *testing.T) {
	assert.Equal(t, strings.Repeat(barEmpty, barWidth), bar(0, 0))
	assert.Equal(t, strings.Repeat(barFull, barWidth), bar(5, 5))
	assert.Equal(t, strings.Repeat(barFull, barWidth), bar(9, 5))
}
