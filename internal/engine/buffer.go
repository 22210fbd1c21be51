package engine

import (
	"errors"
	"fmt"

	"github.com/colegioprep/prepsync/internal/record"
)

// ErrUnknownField is returned when the editor targets a field or row that
// does not exist on the active record. Programmer error: rejected, no-op.
var ErrUnknownField = errors.New("unknown editable field")

// Field names one editable surface of a lesson record.
type Field string

const (
	// Day fields, addressed together with a row index 0..4 (Mon..Fri).
	FieldUnitDay     Field = "unitDay"
	FieldContent     Field = "content"
	FieldDevelopment Field = "development"
	FieldMaterials   Field = "materials"

	// Header fields, one per record; the row index is ignored.
	FieldTeacher            Field = "teacher"
	FieldDateRange          Field = "dateRange"
	FieldCoordinatorMessage Field = "coordinatorMessage"
)

// FieldRef addresses one editable field on the active record.
type FieldRef struct {
	Row   int   `json:"row"`
	Field Field `json:"field"`
}

// isDayField reports whether the field lives on a day entry (and therefore
// needs a valid row index).
func (f Field) isDayField() bool {
	switch f {
	case FieldUnitDay, FieldContent, FieldDevelopment, FieldMaterials:
		return true
	}
	return false
}

// normalize canonicalizes the ref used as a dirty-map key: header fields
// ignore the incoming row.
func (r FieldRef) normalize() FieldRef {
	if !r.Field.isDayField() {
		r.Row = -1
	}
	return r
}

// EditBuffer holds the single currently-active record plus a dirty flag per
// field group. It is owned by the Engine; all mutation goes through
// Engine.ApplyFieldEdit, never directly through the record.
//
// Fields are independent: a mutation invalidates nothing else, and there are
// no cross-field invariants to maintain. In particular an edit to the date
// caption never touches the structural week dates.
type EditBuffer struct {
	rec   *record.LessonRecord
	dirty map[FieldRef]bool
}

func newEditBuffer(rec *record.LessonRecord) *EditBuffer {
	return &EditBuffer{
		rec:   rec,
		dirty: make(map[FieldRef]bool),
	}
}

// Apply writes one field edit into the buffered record and marks it dirty.
// The text is an opaque rich-text blob; it is stored verbatim.
func (b *EditBuffer) Apply(ref FieldRef, text string) error {
	switch ref.Field {
	case FieldTeacher:
		b.rec.Teacher = text
	case FieldDateRange:
		b.rec.DateRangeText = text
	case FieldCoordinatorMessage:
		b.rec.CoordinatorMessage = text
	case FieldUnitDay, FieldContent, FieldDevelopment, FieldMaterials:
		if ref.Row < 0 || ref.Row >= record.DayCount {
			return fmt.Errorf("%w: row %d out of range", ErrUnknownField, ref.Row)
		}
		day := &b.rec.Days[ref.Row]
		switch ref.Field {
		case FieldUnitDay:
			day.UnitDayText = text
		case FieldContent:
			day.ContentText = text
		case FieldDevelopment:
			day.DevelopmentText = text
		case FieldMaterials:
			day.MaterialsText = text
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, ref.Field)
	}

	b.dirty[ref.normalize()] = true
	return nil
}

// Snapshot returns a deep copy of the buffered record.
func (b *EditBuffer) Snapshot() *record.LessonRecord {
	return b.rec.Clone()
}

// DirtyCount returns the number of field groups edited since the last save.
func (b *EditBuffer) DirtyCount() int {
	return len(b.dirty)
}

// IsDirty reports whether a specific field group has unsaved edits.
func (b *EditBuffer) IsDirty(ref FieldRef) bool {
	return b.dirty[ref.normalize()]
}

// ClearDirty resets all dirty flags, after a successful save.
func (b *EditBuffer) ClearDirty() {
	b.dirty = make(map[FieldRef]bool)
}
