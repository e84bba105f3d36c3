// Package window turns a relative crawl period into a cutoff timestamp.
package window

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cafenote/pkg/errors"
)

// Period is a relative look-back window
type Period string

const (
	OneDay    Period = "1day"
	TwoDays   Period = "2days"
	ThreeDays Period = "3days"
	OneWeek   Period = "1week"
	OneMonth  Period = "1month"
)

const day = 24 * time.Hour

var offsets = map[Period]time.Duration{
	OneDay:    day,
	TwoDays:   2 * day,
	ThreeDays: 3 * day,
	OneWeek:   7 * day,
	OneMonth:  30 * day,
}

// Periods returns the supported periods, shortest first
func Periods() []Period {
	out := make([]Period, 0, len(offsets))
	for p := range offsets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return offsets[out[i]] < offsets[out[j]] })
	return out
}

// ParsePeriod validates s. An empty or unknown period is a validation error.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return "", errors.Validation("crawl period is required")
	}
	if _, ok := offsets[p]; !ok {
		return "", errors.Validation(fmt.Sprintf("unknown crawl period %q (want one of %s)", s, joinPeriods()))
	}
	return p, nil
}

func joinPeriods() string {
	ps := Periods()
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

// Duration returns the look-back offset for p
func (p Period) Duration() (time.Duration, bool) {
	d, ok := offsets[p]
	return d, ok
}

// CutoffFor returns the oldest timestamp in milliseconds still inside p, measured from now
func CutoffFor(p Period, now time.Time) (int64, error) {
	d, ok := offsets[p]
	if !ok {
		if p == "" {
			return 0, errors.Validation("crawl period is required")
		}
		return 0, errors.Validation(fmt.Sprintf("unknown crawl period %q", string(p)))
	}
	return now.Add(-d).UnixMilli(), nil
}

// Window is a resolved cutoff for one crawl run
type Window struct {
	Period Period
	Cutoff int64
}

// New resolves p against now
func New(p Period, now time.Time) (Window, error) {
	cutoff, err := CutoffFor(p, now)
	if err != nil {
		return Window{}, err
	}
	return Window{Period: p, Cutoff: cutoff}, nil
}

// Contains reports whether a write timestamp is in window. A zero timestamp
// means the platform omitted it; such records are kept.
func (w Window) Contains(writeTimestamp int64) bool {
	if writeTimestamp == 0 {
		return true
	}
	return writeTimestamp >= w.Cutoff
}
