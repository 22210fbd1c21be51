package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/colegioprep/prepsync/internal/record"
)

func testBuffer(t *testing.T) *EditBuffer {
	t.Helper()
	week := time.Date(2025, time.January, 27, 0, 0, 0, 0, time.Local)
	return newEditBuffer(record.Blank("1", "Infantil 3", week))
}

func TestApplyDayFields(t *testing.T) {
	b := testBuffer(t)

	edits := []struct {
		ref  FieldRef
		text string
		get  func(*record.LessonRecord) string
	}{
		{FieldRef{0, FieldUnitDay}, "U1, D3", func(r *record.LessonRecord) string { return r.Days[0].UnitDayText }},
		{FieldRef{2, FieldContent}, "<b>Frações</b>", func(r *record.LessonRecord) string { return r.Days[2].ContentText }},
		{FieldRef{3, FieldDevelopment}, "roda de conversa", func(r *record.LessonRecord) string { return r.Days[3].DevelopmentText }},
		{FieldRef{4, FieldMaterials}, "cartolina", func(r *record.LessonRecord) string { return r.Days[4].MaterialsText }},
	}

	for _, e := range edits {
		if err := b.Apply(e.ref, e.text); err != nil {
			t.Fatalf("Apply(%v) failed: %v", e.ref, err)
		}
		if got := e.get(b.Snapshot()); got != e.text {
			t.Errorf("Apply(%v): got %q, want %q", e.ref, got, e.text)
		}
		if !b.IsDirty(e.ref) {
			t.Errorf("Apply(%v): field not marked dirty", e.ref)
		}
	}

	if b.DirtyCount() != len(edits) {
		t.Errorf("DirtyCount = %d, want %d", b.DirtyCount(), len(edits))
	}
}

func TestApplyHeaderFieldsIgnoreRow(t *testing.T) {
	b := testBuffer(t)

	// Header fields accept any row; dirty tracking collapses them to one flag.
	if err := b.Apply(FieldRef{Row: 3, Field: FieldTeacher}, "Bruno"); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if err := b.Apply(FieldRef{Row: 0, Field: FieldTeacher}, "Ana"); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if got := b.Snapshot().Teacher; got != "Ana" {
		t.Errorf("Teacher = %q, want Ana", got)
	}
	if b.DirtyCount() != 1 {
		t.Errorf("DirtyCount = %d, want 1 (header rows collapse)", b.DirtyCount())
	}
	if !b.IsDirty(FieldRef{Row: 99, Field: FieldTeacher}) {
		t.Error("IsDirty should ignore the row for header fields")
	}
}

func TestApplyUnknownField(t *testing.T) {
	b := testBuffer(t)

	if err := b.Apply(FieldRef{Row: 0, Field: "footer"}, "x"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
	if err := b.Apply(FieldRef{Row: 5, Field: FieldUnitDay}, "x"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField for out-of-range row, got %v", err)
	}
	if b.DirtyCount() != 0 {
		t.Errorf("rejected edits must not mark anything dirty, DirtyCount = %d", b.DirtyCount())
	}
}

func TestClearDirty(t *testing.T) {
	b := testBuffer(t)

	if err := b.Apply(FieldRef{Field: FieldCoordinatorMessage}, "<p>Reunião sexta</p>"); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	b.ClearDirty()

	if b.DirtyCount() != 0 {
		t.Errorf("DirtyCount after clear = %d", b.DirtyCount())
	}
	if got := b.Snapshot().CoordinatorMessage; got != "<p>Reunião sexta</p>" {
		t.Error("ClearDirty must not revert the edit itself")
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	b := testBuffer(t)
	snap := b.Snapshot()

	if err := b.Apply(FieldRef{Row: 0, Field: FieldContent}, "later edit"); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if snap.Days[0].ContentText != "" {
		t.Error("snapshot shares storage with the live buffer")
	}
}
