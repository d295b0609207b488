package model

import "time"

// RepeatType identifies the unit a reminder's recurrence steps by.
type RepeatType int

const (
	RepeatNone RepeatType = iota
	RepeatMinute
	RepeatHour
	RepeatDay
	RepeatWeek
	RepeatMonth // reserved
	RepeatYear  // reserved
)

var repeatNames = map[RepeatType]string{
	RepeatNone:   "none",
	RepeatMinute: "minute",
	RepeatHour:   "hour",
	RepeatDay:    "day",
	RepeatWeek:   "week",
	RepeatMonth:  "month",
	RepeatYear:   "year",
}

func (t RepeatType) String() string {
	if name, ok := repeatNames[t]; ok {
		return name
	}
	return "none"
}

// Valid reports whether t is a repeat type the engine can schedule.
// Month and year are reserved and rejected at the boundary.
func (t RepeatType) Valid() bool {
	return t >= RepeatNone && t <= RepeatWeek
}

// Weekdays is a bit-set of weekdays, bit n = time.Weekday(n).
type Weekdays uint8

func (w Weekdays) Contains(d time.Weekday) bool {
	return w&(1<<uint(d)) != 0
}

func (w Weekdays) With(d time.Weekday) Weekdays {
	return w | (1 << uint(d))
}

// Days returns the active weekdays in Sunday-first order.
func (w Weekdays) Days() []time.Weekday {
	var days []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.Contains(d) {
			days = append(days, d)
		}
	}
	return days
}

// Unbounded is the RepeatTimes value for a recurrence with no occurrence cap.
const Unbounded = -1

// Reminder is the authoritative record for one reminder. Timestamp and
// OldTimestamp are epoch seconds; zero means unset.
type Reminder struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	DueDate         int64      `json:"due_date"`  // date-only, midnight epoch, 0 = none
	Timestamp       int64      `json:"timestamp"` // next notification instant, 0 = no countdown
	OldTimestamp    int64      `json:"old_timestamp"`
	Completed       bool       `json:"completed"`
	Important       bool       `json:"important"`
	ListID          string     `json:"list_id"`
	RepeatType      RepeatType `json:"repeat_type"`
	RepeatFrequency int        `json:"repeat_frequency"`
	RepeatDays      Weekdays   `json:"repeat_days"`
	RepeatUntil     int64      `json:"repeat_until"` // 0 = unbounded
	RepeatTimes     int        `json:"repeat_times"` // -1 unbounded, 0 exhausted
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	RemoteUID       string     `json:"remote_uid,omitempty"`
}

// NeedsCountdown reports whether this reminder should have a live timer.
func (r Reminder) NeedsCountdown() bool {
	return r.Timestamp != 0 && !r.Completed && r.RepeatTimes != 0
}

// Recurring reports whether the reminder has an active repeat rule.
func (r Reminder) Recurring() bool {
	return r.RepeatType != RepeatNone
}

// LocalUserID is the account that owns unsynced lists and reminders.
const LocalUserID = "local"

// TaskList groups reminders under one account. The local account's
// default list is never deletable.
type TaskList struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Synced reports whether the list belongs to a remote account.
func (l TaskList) Synced() bool {
	return l.UserID != LocalUserID
}
