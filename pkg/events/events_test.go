package events

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"cafenote/pkg/logger"
	"cafenote/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus(logger.NewNopLogger())

	var got []int
	bus.Subscribe(func(ev Event) {
		got = append(got, ev.Data.(CrawlProgress).Current)
	})

	for i := 1; i <= 5; i++ {
		bus.Publish(Event{Type: CrawlProgressType, Data: CrawlProgress{Current: i}})
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestBusSubscribersSeeSameOrder(t *testing.T) {
	bus := NewBus(logger.NewNopLogger())
	a, b := &Recorder{}, &Recorder{}
	bus.Subscribe(a.Handle)
	bus.Subscribe(b.Handle)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bus.Publish(Event{Type: SendProgressType, Data: SendProgress{Current: i}})
		}(i)
	}
	wg.Wait()

	require.Len(t, a.Events(), 20)
	assert.Equal(t, a.Events(), b.Events())
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(logger.NewNopLogger())
	rec := &Recorder{}
	unsubscribe := bus.Subscribe(rec.Handle)

	bus.Publish(Event{Type: CrawlCompleteType})
	unsubscribe()
	unsubscribe() // idempotent
	bus.Publish(Event{Type: CrawlCompleteType})

	assert.Len(t, rec.Events(), 1)
}

func TestBusRecoversSubscriberPanic(t *testing.T) {
	tl := logger.NewTestLogger()
	bus := NewBus(tl)
	rec := &Recorder{}

	bus.Subscribe(func(Event) { panic("bad subscriber") })
	bus.Subscribe(rec.Handle)

	bus.Publish(Event{Type: SendCompleteType, Data: SendComplete{Success: true}})

	assert.Len(t, rec.Events(), 1, "later subscribers still receive the event")
	assert.True(t, tl.HasError())
}

func TestPublishStampsTime(t *testing.T) {
	bus := NewBus(logger.NewNopLogger())
	rec := &Recorder{}
	bus.Subscribe(rec.Handle)

	bus.Publish(Event{Type: CrawlCompleteType})
	assert.False(t, rec.Events()[0].At.IsZero())
}

func TestJSONLines(t *testing.T) {
	var buf bytes.Buffer
	h := JSONLines(&buf)

	h(Event{Type: CrawlProgressType, RunID: "r1", Data: CrawlProgress{
		Current: 1,
		Member:  models.AuthorRecord{Nickname: "nick", MemberKey: "abc"},
		Source:  "Cafe",
		Period:  "1day",
	}})
	h(Event{Type: SendCompleteType, RunID: "r2", Data: SendComplete{
		Success: true,
		Results: models.SendResults{SuccessCount: 2},
	}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "crawlProgress", first["type"])
	data := first["data"].(map[string]interface{})
	assert.Equal(t, "abc", data["member"].(map[string]interface{})["memberKey"])

	assert.Contains(t, lines[1], `"successCount":2`)
}

func TestRecorderOfType(t *testing.T) {
	rec := &Recorder{}
	rec.Publish(Event{Type: SendProgressType})
	rec.Publish(Event{Type: SendCompleteType})
	rec.Publish(Event{Type: SendProgressType})

	assert.Len(t, rec.OfType(SendProgressType), 2)
	assert.Len(t, rec.OfType(SendCompleteType), 1)
}
