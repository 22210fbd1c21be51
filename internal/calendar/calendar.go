// Package calendar provides the week arithmetic behind lesson-plan navigation.
//
// A lesson plan covers one business week (Monday through Friday). This package
// normalizes arbitrary dates to their Monday, enumerates the business weeks of
// a month for the week picker, and renders the Portuguese date captions shown
// on the plan sheet.
//
// All functions are pure: same inputs, same outputs, nothing cached.
package calendar

import (
	"fmt"
	"time"
)

// ISODateFormat is the wire format for dates (week starts, day entries).
const ISODateFormat = "2006-01-02"

// monthsPT maps time.Month to the Portuguese month name used in captions.
var monthsPT = map[time.Month]string{
	time.January:   "Janeiro",
	time.February:  "Fevereiro",
	time.March:     "Março",
	time.April:     "Abril",
	time.May:       "Maio",
	time.June:      "Junho",
	time.July:      "Julho",
	time.August:    "Agosto",
	time.September: "Setembro",
	time.October:   "Outubro",
	time.November:  "Novembro",
	time.December:  "Dezembro",
}

// WeekdayLabels are the Monday..Friday column pills shown on the plan grid.
var WeekdayLabels = [5]string{"SEG", "TER", "QUA", "QUI", "SEX"}

// WeekRange is one Monday-starting 5-day window offered by the week picker.
// Label encodes the Monday..Friday day span and the displayed month's name,
// e.g. "(26 a 30 de Janeiro)".
type WeekRange struct {
	Monday time.Time
	Label  string
}

// MonthName returns the Portuguese name for a month.
func MonthName(m time.Month) string {
	return monthsPT[m]
}

// MondayOf normalizes a date to the Monday of its week (ISO week start).
//
// Sunday maps backward 6 days; every other weekday maps backward to the
// Monday of the same week. Time of day is zeroed. Idempotent: applying it
// to a Monday returns the same Monday.
func MondayOf(t time.Time) time.Time {
	days := 0
	switch wd := t.Weekday(); wd {
	case time.Sunday:
		days = -6
	default:
		days = -int(wd - time.Monday)
	}
	t = t.AddDate(0, 0, days)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// BusinessWeeksOfMonth enumerates every Monday-starting 5-day window that
// touches the given month.
//
// Enumeration starts from the Monday on/before the 1st and steps 7 days,
// stopping once the window start passes the month's last day. A window is
// included when any of its five weekdays falls inside the month, so boundary
// weeks spanning two months appear in both months' lists.
func BusinessWeeksOfMonth(year int, month time.Month) []WeekRange {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.Local)
	last := first.AddDate(0, 1, -1)

	var weeks []WeekRange
	for cursor := MondayOf(first); !cursor.After(last); cursor = cursor.AddDate(0, 0, 7) {
		if !weekTouchesMonth(cursor, year, month) {
			continue
		}
		fri := cursor.AddDate(0, 0, 4)
		weeks = append(weeks, WeekRange{
			Monday: cursor,
			Label:  fmt.Sprintf("(%d a %d de %s)", cursor.Day(), fri.Day(), MonthName(month)),
		})
	}
	return weeks
}

// weekTouchesMonth reports whether any of the five weekdays starting at
// monday falls inside the given month.
func weekTouchesMonth(monday time.Time, year int, month time.Month) bool {
	for i := 0; i < 5; i++ {
		d := monday.AddDate(0, 0, i)
		if d.Month() == month && d.Year() == year {
			return true
		}
	}
	return false
}

// DateRangeText renders the editable date caption default for a week,
// e.g. "26 a 30 de Janeiro". The month name is the Monday's month even when
// the week spans into the next one.
func DateRangeText(monday time.Time) string {
	fri := monday.AddDate(0, 0, 4)
	return fmt.Sprintf("%d a %d de %s", monday.Day(), fri.Day(), MonthName(monday.Month()))
}

// WeekLabel renders the parenthesized header form of DateRangeText.
func WeekLabel(monday time.Time) string {
	return "(" + DateRangeText(monday) + ")"
}

// ISODate formats a date as YYYY-MM-DD.
func ISODate(t time.Time) string {
	return t.Format(ISODateFormat)
}

// ParseISODate parses a YYYY-MM-DD date in the local time zone.
func ParseISODate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(ISODateFormat, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ISO date %q: %w", s, err)
	}
	return t, nil
}
