package recurrence

import (
	"time"

	"github.com/dukerupert/remindd/internal/model"
)

const (
	minuteSeconds = 60
	hourSeconds   = 60 * minuteSeconds
	daySeconds    = 24 * hourSeconds
	weekSeconds   = 7 * daySeconds
)

// Result is the advanced recurrence state for a reminder. Timestamp and
// OldTimestamp are epoch seconds. Terminal means the rule has exhausted
// its bound and no further occurrence may be scheduled.
type Result struct {
	Timestamp    int64
	OldTimestamp int64
	Times        int
	Terminal     bool
}

// Advance computes the next occurrence of r strictly after now.
//
// Occurrences that elapsed without firing are skipped; each skipped
// occurrence decrements a bounded repeat count. The occurrence that fires
// is accounted by the scheduler's own decrement, so the step that lands
// in the future does not decrement. OldTimestamp tracks the most recent
// elapsed occurrence.
func Advance(r model.Reminder, now time.Time) Result {
	if r.RepeatTimes == 0 {
		return Result{
			Timestamp:    r.Timestamp,
			OldTimestamp: r.OldTimestamp,
			Times:        0,
			Terminal:     true,
		}
	}

	ts := r.Timestamp
	old := r.OldTimestamp
	times := r.RepeatTimes
	nowSec := now.Unix()

	for ts <= nowSec {
		next := step(r, ts)
		if next <= ts {
			// Malformed rule (zero step); refuse to spin.
			return Result{Timestamp: ts, OldTimestamp: old, Times: times, Terminal: true}
		}
		if r.RepeatUntil > 0 && next > r.RepeatUntil {
			// End date reached: keep the last valid occurrence.
			return Result{Timestamp: ts, OldTimestamp: old, Times: times, Terminal: true}
		}

		old = ts
		ts = next

		if ts <= nowSec && times > 0 {
			times--
			if times == 0 {
				return Result{Timestamp: ts, OldTimestamp: old, Times: 0, Terminal: true}
			}
		}
	}

	return Result{Timestamp: ts, OldTimestamp: old, Times: times, Terminal: false}
}

// step returns the occurrence following ts under r's repeat rule.
func step(r model.Reminder, ts int64) int64 {
	freq := r.RepeatFrequency
	if freq < 1 {
		freq = 1
	}

	switch r.RepeatType {
	case model.RepeatMinute:
		return ts + int64(freq)*minuteSeconds
	case model.RepeatHour:
		return ts + int64(freq)*hourSeconds
	case model.RepeatDay:
		return ts + int64(freq)*daySeconds
	case model.RepeatWeek:
		return stepWeekly(r, ts, freq)
	}
	return ts
}

// stepWeekly finds the next active weekday strictly after ts. When no
// active day remains in the current week it wraps to the first active day,
// skipping freq-1 whole weeks for multi-week intervals.
func stepWeekly(r model.Reminder, ts int64, freq int) int64 {
	current := time.Unix(ts, 0).Weekday()

	days := r.RepeatDays.Days()
	if len(days) == 0 {
		// Self-healing default: a week rule with no weekday set repeats
		// on the weekday of the occurrence itself.
		days = []time.Weekday{current}
	}

	// Next active day later in the same week.
	for _, d := range days {
		if d > current {
			return ts + int64(d-current)*daySeconds
		}
	}

	// Wrap to the first active day of the next interval week.
	first := days[0]
	offset := int64(7 - int(current) + int(first))
	return ts + offset*daySeconds + int64(freq-1)*weekSeconds
}
