package record

import (
	"testing"
	"time"
)

func week(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2025, time.January, 27, 0, 0, 0, 0, time.Local)
}

func TestBlank(t *testing.T) {
	rec := Blank("1", "Infantil 3", week(t))

	if rec.Key != "1_2025-01-27_infantil-3" {
		t.Errorf("Key = %q", rec.Key)
	}
	if rec.WeekStart != "2025-01-27" {
		t.Errorf("WeekStart = %q", rec.WeekStart)
	}
	if rec.DateRangeText != "27 a 31 de Janeiro" {
		t.Errorf("DateRangeText = %q", rec.DateRangeText)
	}
	if len(rec.Days) != DayCount {
		t.Fatalf("got %d days, want %d", len(rec.Days), DayCount)
	}

	wantDates := []string{"2025-01-27", "2025-01-28", "2025-01-29", "2025-01-30", "2025-01-31"}
	wantLabels := []string{"SEG", "TER", "QUA", "QUI", "SEX"}
	for i, d := range rec.Days {
		if d.Date != wantDates[i] {
			t.Errorf("day %d date = %q, want %q", i, d.Date, wantDates[i])
		}
		if d.WeekdayLabel != wantLabels[i] {
			t.Errorf("day %d label = %q, want %q", i, d.WeekdayLabel, wantLabels[i])
		}
		if d.DayOfMonth != 27+i {
			t.Errorf("day %d dayOfMonth = %d, want %d", i, d.DayOfMonth, 27+i)
		}
		if d.UnitDayText != "" || d.ContentText != "" || d.DevelopmentText != "" || d.MaterialsText != "" {
			t.Errorf("day %d has non-empty text fields", i)
		}
	}
}

func TestValidate(t *testing.T) {
	rec := Blank("1", "Infantil 3", week(t))
	if err := rec.Validate(); err != nil {
		t.Fatalf("blank record should validate: %v", err)
	}

	short := rec.Clone()
	short.Days = short.Days[:4]
	if err := short.Validate(); err == nil {
		t.Error("4-day record should be rejected")
	}

	noWeek := rec.Clone()
	noWeek.WeekStart = ""
	if err := noWeek.Validate(); err == nil {
		t.Error("record without weekStart should be rejected")
	}

	badWeek := rec.Clone()
	badWeek.WeekStart = "27/01/2025"
	if err := badWeek.Validate(); err == nil {
		t.Error("record with non-ISO weekStart should be rejected")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	rec := Blank("1", "Infantil 3", week(t))
	rec.Teacher = "Bruno"
	rec.CoordinatorMessage = "<p>Reunião sexta</p>"
	rec.Days[2].ContentText = "<b>Frações</b>"

	data, err := rec.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.Teacher != rec.Teacher || got.CoordinatorMessage != rec.CoordinatorMessage {
		t.Error("header fields did not survive the round trip")
	}
	if got.Days[2].ContentText != "<b>Frações</b>" {
		t.Errorf("rich text blob mangled: %q", got.Days[2].ContentText)
	}
}

func TestUnmarshalRejectsShortDays(t *testing.T) {
	_, err := Unmarshal([]byte(`{"term":"1","weekStart":"2025-01-27","days":[{},{},{},{}]}`))
	if err == nil {
		t.Error("payload with 4 day entries should not parse as a record")
	}
}

func TestCloneIsDeep(t *testing.T) {
	rec := Blank("1", "Infantil 3", week(t))
	c := rec.Clone()
	c.Days[0].ContentText = "changed"
	if rec.Days[0].ContentText != "" {
		t.Error("Clone shares day storage with the original")
	}
}
