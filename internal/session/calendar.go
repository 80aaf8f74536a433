package session

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"

	"classwatch/internal/apperr"
)

const (
	propInstructor = "X-CLASSWATCH-INSTRUCTOR"
	propStudent    = "X-CLASSWATCH-STUDENT"
)

var byday = map[Weekday]string{
	Monday: "MO", Tuesday: "TU", Wednesday: "WE", Thursday: "TH",
	Friday: "FR", Saturday: "SA", Sunday: "SU",
}

// ExportICS writes the schedules as weekly recurring events. Each event starts
// in the week containing ref, in loc.
func ExportICS(w io.Writer, list []Schedule, ref time.Time, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//classwatch//schedules//EN")

	ref = ref.In(loc)
	monday := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)
	monday = monday.AddDate(0, 0, -((int(monday.Weekday()) + 6) % 7))

	for _, s := range list {
		std, ok := s.DayOfWeek.Std()
		if !ok {
			continue
		}
		day := monday.AddDate(0, 0, (int(std)+6)%7)
		start := day.Add(time.Duration(s.StartTime) * time.Minute)
		end := day.Add(time.Duration(s.EndTime) * time.Minute)

		evt := cal.AddEvent(s.ID + "@classwatch")
		evt.SetDtStampTime(ref)
		evt.SetSummary(s.Subject)
		evt.SetLocation(s.Room)
		evt.SetStartAt(start)
		evt.SetEndAt(end)
		evt.AddRrule("FREQ=WEEKLY;BYDAY=" + byday[s.DayOfWeek])
		evt.SetProperty(ics.ComponentProperty(propInstructor), s.Instructor)
		for _, name := range s.AuthorizedStudents {
			evt.AddProperty(ics.ComponentProperty(propStudent), name)
		}
	}

	_, err := io.WriteString(w, cal.Serialize())
	return err
}

// ParseICS converts calendar events into schedule inputs. Events without a
// start or end are skipped. The instructor comes from the classwatch extension
// property, then the ORGANIZER common name, then DESCRIPTION.
func ParseICS(r io.Reader, loc *time.Location) ([]Input, error) {
	if loc == nil {
		loc = time.Local
	}
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %v: %w", err, apperr.ErrValidationFailed)
	}
	events := cal.Events()
	if len(events) == 0 {
		return nil, fmt.Errorf("calendar has no events: %w", apperr.ErrValidationFailed)
	}

	var out []Input
	for _, evt := range events {
		start, err := evt.GetStartAt()
		if err != nil {
			continue
		}
		end, err := evt.GetEndAt()
		if err != nil {
			continue
		}
		start, end = start.In(loc), end.In(loc)

		in := Input{
			DayOfWeek:          string(WeekdayOf(start.Weekday())),
			StartTime:          ClockOf(start).String(),
			EndTime:            ClockOf(end).String(),
			AuthorizedStudents: Names{},
		}
		var organizer, description string
		for _, prop := range evt.Properties {
			switch prop.IANAToken {
			case string(ics.ComponentPropertySummary):
				in.Subject = unescapeText(prop.Value)
			case string(ics.ComponentPropertyLocation):
				in.Room = unescapeText(prop.Value)
			case propInstructor:
				in.Instructor = prop.Value
			case propStudent:
				if name := strings.TrimSpace(prop.Value); name != "" {
					in.AuthorizedStudents = append(in.AuthorizedStudents, name)
				}
			case string(ics.ComponentPropertyOrganizer):
				if cn := prop.ICalParameters["CN"]; len(cn) > 0 {
					organizer = cn[0]
				} else {
					organizer = strings.TrimPrefix(prop.Value, "mailto:")
				}
			case string(ics.ComponentPropertyDescription):
				description = strings.TrimSpace(unescapeText(prop.Value))
			}
		}
		if in.Instructor == "" {
			in.Instructor = organizer
		}
		if in.Instructor == "" {
			in.Instructor = description
		}
		out = append(out, in)
	}
	return out, nil
}

// ImportICS adds every parseable event to the book. Either all events are
// added or, when one fails validation, none are.
func (b *Book) ImportICS(r io.Reader) ([]Schedule, error) {
	inputs, err := ParseICS(r, b.loc)
	if err != nil {
		return nil, err
	}
	added := make([]Schedule, 0, len(inputs))
	for i, in := range inputs {
		s, err := build(in)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i+1, err)
		}
		added = append(added, s)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range added {
		b.appendLocked(s)
	}
	return added, nil
}

func unescapeText(s string) string {
	r := strings.NewReplacer(`\,`, ",", `\;`, ";", `\n`, "\n", `\N`, "\n", `\\`, `\`)
	return r.Replace(s)
}

// ExportXLSX renders the schedules as a single-sheet workbook.
func ExportXLSX(list []Schedule) (*bytes.Buffer, error) {
	const sheet = "Schedules"
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	header := []any{"ID", "Subject", "Instructor", "Room", "Day", "Start", "End", "Authorized Students"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, style)
	}
	_ = f.SetColWidth(sheet, "B", "C", 24)
	_ = f.SetColWidth(sheet, "H", "H", 48)

	for i, s := range list {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			s.ID, s.Subject, s.Instructor, s.Room, string(s.DayOfWeek),
			s.StartTime.String(), s.EndTime.String(), strings.Join(s.AuthorizedStudents, ", "),
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}
	return f.WriteToBuffer()
}
