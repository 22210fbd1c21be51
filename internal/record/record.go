// Package record defines the lesson record stored in the local cache and
// exchanged with the remote document store.
//
// A record covers one business week (Monday..Friday) of one class in one
// term. The four day text fields and the coordinator message are opaque
// rich-text blobs produced by the editing surface; this package transports
// them and never parses their structure.
package record

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/colegioprep/prepsync/internal/calendar"
)

// DayCount is the fixed number of day entries per record (Monday..Friday).
const DayCount = 5

// DayEntry is one weekday slot of the plan grid. Date is the ISO date of the
// slot; WeekdayLabel and DayOfMonth are the pill rendered next to it.
type DayEntry struct {
	Date            string `json:"date"`
	WeekdayLabel    string `json:"weekdayLabel"`
	DayOfMonth      int    `json:"dayOfMonth"`
	UnitDayText     string `json:"unitDayText"`
	ContentText     string `json:"contentText"`
	DevelopmentText string `json:"developmentText"`
	MaterialsText   string `json:"materialsText"`
}

// LessonRecord is the unit of storage, addressed by its derived key in both
// the local cache and the remote store.
//
// DateRangeText is an independently editable caption; after a manual edit it
// may drift from WeekStart and the day dates. No invariant ties them.
type LessonRecord struct {
	Key                string     `json:"key"`
	Term               string     `json:"term"`
	ClassName          string     `json:"className"`
	WeekStart          string     `json:"weekStart"`
	Teacher            string     `json:"teacher"`
	DateRangeText      string     `json:"dateRangeText"`
	CoordinatorMessage string     `json:"coordinatorMessage"`
	Days               []DayEntry `json:"days"`
}

// Blank constructs an empty record for a resolved week: five day entries
// dated weekStart..weekStart+4 with weekday pills filled in and all text
// fields empty. The date caption defaults from the calendar.
func Blank(term, className string, weekStart time.Time) *LessonRecord {
	rec := &LessonRecord{
		Term:          term,
		ClassName:     className,
		WeekStart:     calendar.ISODate(weekStart),
		DateRangeText: calendar.DateRangeText(weekStart),
		Days:          make([]DayEntry, DayCount),
	}
	if key, err := DeriveKey(term, className, weekStart); err == nil {
		rec.Key = key
	}
	for i := 0; i < DayCount; i++ {
		d := weekStart.AddDate(0, 0, i)
		rec.Days[i] = DayEntry{
			Date:         calendar.ISODate(d),
			WeekdayLabel: calendar.WeekdayLabels[i],
			DayOfMonth:   d.Day(),
		}
	}
	return rec
}

// Validate checks the structural invariants of a record.
//
// A payload that fails validation is never partially merged; callers treat
// it the same as no record at all.
func (r *LessonRecord) Validate() error {
	if r.Term == "" {
		return fmt.Errorf("term is required")
	}
	if r.WeekStart == "" {
		return fmt.Errorf("weekStart is required")
	}
	if _, err := calendar.ParseISODate(r.WeekStart); err != nil {
		return fmt.Errorf("weekStart: %w", err)
	}
	if len(r.Days) != DayCount {
		return fmt.Errorf("expected %d day entries, got %d", DayCount, len(r.Days))
	}
	return nil
}

// Clone returns a deep copy of the record. The engine hands copies to
// collaborators so nothing outside it can mutate the active record.
func (r *LessonRecord) Clone() *LessonRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Days = make([]DayEntry, len(r.Days))
	copy(c.Days, r.Days)
	return &c
}

// Marshal serializes the record to its wire/storage JSON form.
func (r *LessonRecord) Marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record %s: %w", r.Key, err)
	}
	return data, nil
}

// Unmarshal parses and validates a record from JSON.
func Unmarshal(data []byte) (*LessonRecord, error) {
	var rec LessonRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}
	return &rec, nil
}
