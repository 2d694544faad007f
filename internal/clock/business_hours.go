package clock

import (
	"fmt"
	"time"
)

// BusinessCalendar describes the working window per weekday. Hours outside
// the window (and whole non-working days) are excluded from active time.
type BusinessCalendar struct {
	location    *time.Location
	workingDays map[time.Weekday]bool
	startMinute int
	endMinute   int
}

// NewBusinessCalendar parses "HH:MM" working-window bounds in the given
// timezone. days lists the working weekdays.
func NewBusinessCalendar(timezone, dayStart, dayEnd string, days []time.Weekday) (*BusinessCalendar, error) {
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	startMinute, err := parseMinuteOfDay(dayStart)
	if err != nil {
		return nil, fmt.Errorf("workday start: %w", err)
	}
	endMinute, err := parseMinuteOfDay(dayEnd)
	if err != nil {
		return nil, fmt.Errorf("workday end: %w", err)
	}
	if endMinute <= startMinute {
		return nil, fmt.Errorf("workday end %q not after start %q", dayEnd, dayStart)
	}
	working := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		working[d] = true
	}
	return &BusinessCalendar{
		location:    location,
		workingDays: working,
		startMinute: startMinute,
		endMinute:   endMinute,
	}, nil
}

// OffHours returns the non-working spans inside [start, end].
func (c *BusinessCalendar) OffHours(start, end time.Time) []span {
	if !end.After(start) {
		return nil
	}
	var out []span

	day := start.In(c.location)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, c.location)
	for day.Before(end) {
		next := day.AddDate(0, 0, 1)
		if !c.workingDays[day.Weekday()] {
			out = append(out, span{from: day, to: next})
		} else {
			workStart := day.Add(time.Duration(c.startMinute) * time.Minute)
			workEnd := day.Add(time.Duration(c.endMinute) * time.Minute)
			out = append(out, span{from: day, to: workStart})
			out = append(out, span{from: workEnd, to: next})
		}
		day = next
	}
	return out
}

func parseMinuteOfDay(value string) (int, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid HH:MM value %q: %w", value, err)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}
