// Package session derives whether a room is in session from the class
// schedule book and the wall clock.
package session

import (
	"fmt"
	"strings"
	"time"

	"classwatch/internal/apperr"
)

// Weekday is the lowercase English day name used on the wire.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

// Weekdays lists the days in display order.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

var byStdDay = map[time.Weekday]Weekday{
	time.Sunday:    Sunday,
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Friday,
	time.Saturday:  Saturday,
}

// WeekdayOf maps a standard library weekday.
func WeekdayOf(d time.Weekday) Weekday { return byStdDay[d] }

// Std converts back to time.Weekday. ok is false for unknown names.
func (w Weekday) Std() (time.Weekday, bool) {
	for std, name := range byStdDay {
		if name == w {
			return std, true
		}
	}
	return 0, false
}

// ParseWeekday accepts any casing of a day name.
func ParseWeekday(s string) (Weekday, error) {
	w := Weekday(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := w.Std(); !ok {
		return "", fmt.Errorf("unknown day %q: %w", s, apperr.ErrValidationFailed)
	}
	return w, nil
}

// TimeOfDay is minutes since local midnight.
type TimeOfDay int

// ParseTimeOfDay parses 24h "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("time %q must be HH:MM: %w", s, apperr.ErrValidationFailed)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// ClockOf returns the minute of day of t, dropping seconds.
func ClockOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// MarshalText encodes as HH:MM.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes HH:MM.
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Schedule is one weekly class slot.
type Schedule struct {
	ID                 string    `json:"id"`
	Subject            string    `json:"subject"`
	Instructor         string    `json:"instructor"`
	Room               string    `json:"room"`
	DayOfWeek          Weekday   `json:"day_of_week"`
	StartTime          TimeOfDay `json:"start_time"`
	EndTime            TimeOfDay `json:"end_time"`
	AuthorizedStudents []string  `json:"authorized_students"`
}

// Contains reports whether the slot covers weekday d at minute t, inclusive on
// both bounds. A slot whose start is after its end covers nothing.
func (s Schedule) Contains(d Weekday, t TimeOfDay) bool {
	return s.DayOfWeek == d && s.StartTime <= t && t <= s.EndTime
}

// Overlaps reports whether two slots share a room, a day and at least one minute.
func (s Schedule) Overlaps(o Schedule) bool {
	if !strings.EqualFold(strings.TrimSpace(s.Room), strings.TrimSpace(o.Room)) || s.DayOfWeek != o.DayOfWeek {
		return false
	}
	return s.StartTime <= o.EndTime && o.StartTime <= s.EndTime
}

// Active returns the first schedule in list order that is running at now in
// loc. It is a pure function of its arguments.
func Active(now time.Time, loc *time.Location, list []Schedule) (Schedule, bool) {
	if loc != nil {
		now = now.In(loc)
	}
	day := WeekdayOf(now.Weekday())
	minute := ClockOf(now)
	for _, s := range list {
		if s.Contains(day, minute) {
			return s, true
		}
	}
	return Schedule{}, false
}

// Status is the projection shown in the "Current Status" card.
type Status struct {
	InSession  bool      `json:"in_session"`
	Schedule   *Schedule `json:"schedule,omitempty"`
	Authorized []string  `json:"authorized"`
	At         time.Time `json:"at"`
}

// StatusAt evaluates Active and lists who may be present.
func StatusAt(now time.Time, loc *time.Location, list []Schedule) Status {
	st := Status{At: now, Authorized: []string{}}
	s, ok := Active(now, loc, list)
	if !ok {
		return st
	}
	st.InSession = true
	st.Schedule = &s
	st.Authorized = append(st.Authorized, s.Instructor)
	st.Authorized = append(st.Authorized, s.AuthorizedStudents...)
	return st
}

// Authorizes reports whether name is the instructor or an authorized student
// of the running session. Comparison ignores case and outer whitespace.
func (st Status) Authorizes(name string) bool {
	if !st.InSession {
		return false
	}
	name = strings.TrimSpace(name)
	for _, n := range st.Authorized {
		if strings.EqualFold(strings.TrimSpace(n), name) {
			return true
		}
	}
	return false
}
