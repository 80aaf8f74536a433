package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"classwatch/internal/apperr"
)

// Names is a list of people. On the wire it is either a JSON array or a single
// comma separated string, as typed into the schedule form.
type Names []string

// UnmarshalJSON accepts ["a","b"] or "a, b".
func (n *Names) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*n = cleanNames(list)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("names must be a list or a comma separated string: %w", apperr.ErrValidationFailed)
	}
	*n = ParseNames(s)
	return nil
}

// ParseNames splits a comma separated list, trims entries and drops blanks.
// Duplicates are kept.
func ParseNames(s string) Names {
	return cleanNames(strings.Split(s, ","))
}

func cleanNames(in []string) Names {
	out := Names{}
	for _, name := range in {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// Input is the add-schedule form.
type Input struct {
	Subject            string `json:"subject" validate:"required"`
	Instructor         string `json:"instructor" validate:"required"`
	Room               string `json:"room" validate:"required"`
	DayOfWeek          string `json:"day_of_week" validate:"required"`
	StartTime          string `json:"start_time" validate:"required"`
	EndTime            string `json:"end_time" validate:"required"`
	AuthorizedStudents Names  `json:"authorized_students"`
}

// Conflict names an existing schedule that overlaps a newly added one.
type Conflict struct {
	ScheduleID string `json:"schedule_id"`
	Subject    string `json:"subject"`
	Room       string `json:"room"`
}

// Book is the in-memory schedule list. New entries are appended.
type Book struct {
	mu        sync.RWMutex
	schedules []Schedule
	loc       *time.Location
	now       func() time.Time
}

// NewBook creates an empty book evaluating the clock in loc.
func NewBook(loc *time.Location) *Book {
	if loc == nil {
		loc = time.Local
	}
	return &Book{loc: loc, now: time.Now}
}

// Seed appends the demo schedules.
func (b *Book) Seed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.schedules = append(b.schedules,
		Schedule{
			ID:                 "1",
			Subject:            "Computer Science 101",
			Instructor:         "Dr. Smith",
			Room:               "Room 301",
			DayOfWeek:          Monday,
			StartTime:          9 * 60,
			EndTime:            10*60 + 30,
			AuthorizedStudents: []string{"John Doe", "Jane Smith", "Bob Johnson"},
		},
		Schedule{
			ID:                 "2",
			Subject:            "Mathematics",
			Instructor:         "Prof. Johnson",
			Room:               "Room 205",
			DayOfWeek:          Wednesday,
			StartTime:          14 * 60,
			EndTime:            15*60 + 30,
			AuthorizedStudents: []string{"Alice Brown", "Charlie Wilson"},
		},
	)
}

// Location is the zone the book evaluates weekdays in.
func (b *Book) Location() *time.Location { return b.loc }

// Add validates in and appends a schedule. Overlapping schedules in the same
// room are reported, not rejected; Active keeps returning the earlier one.
func (b *Book) Add(in Input) (Schedule, []Conflict, error) {
	s, err := build(in)
	if err != nil {
		return Schedule{}, nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return s, b.appendLocked(s), nil
}

// build validates in and turns it into a schedule with a fresh id.
func build(in Input) (Schedule, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Instructor = strings.TrimSpace(in.Instructor)
	in.Room = strings.TrimSpace(in.Room)
	if err := apperr.Validate(in); err != nil {
		return Schedule{}, err
	}
	day, err := ParseWeekday(in.DayOfWeek)
	if err != nil {
		return Schedule{}, err
	}
	start, err := ParseTimeOfDay(in.StartTime)
	if err != nil {
		return Schedule{}, err
	}
	end, err := ParseTimeOfDay(in.EndTime)
	if err != nil {
		return Schedule{}, err
	}
	return Schedule{
		ID:                 uuid.NewString(),
		Subject:            in.Subject,
		Instructor:         in.Instructor,
		Room:               in.Room,
		DayOfWeek:          day,
		StartTime:          start,
		EndTime:            end,
		AuthorizedStudents: cleanNames(in.AuthorizedStudents),
	}, nil
}

// appendLocked appends s and reports the existing schedules it overlaps.
// b.mu must be held.
func (b *Book) appendLocked(s Schedule) []Conflict {
	var conflicts []Conflict
	for _, existing := range b.schedules {
		if existing.Overlaps(s) {
			conflicts = append(conflicts, Conflict{ScheduleID: existing.ID, Subject: existing.Subject, Room: existing.Room})
		}
	}
	b.schedules = append(b.schedules, s)
	return conflicts
}

// Remove deletes the schedule with id. It reports whether one was removed.
func (b *Book) Remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.schedules {
		if s.ID == id {
			b.schedules = append(b.schedules[:i:i], b.schedules[i+1:]...)
			return true
		}
	}
	return false
}

// List returns a copy of the schedules in insertion order.
func (b *Book) List() []Schedule {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Schedule, len(b.schedules))
	copy(out, b.schedules)
	return out
}

// Status evaluates the session clock against the current wall time.
func (b *Book) Status() Status {
	return StatusAt(b.now(), b.loc, b.List())
}
