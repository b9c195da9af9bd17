package rotation

import (
	"testing"
	"time"
)

func TestRecipientPositionWrapsRoster(t *testing.T) {
	cases := []struct {
		seq     uint64
		members int
		want    int
	}{
		{0, 4, 0},
		{1, 4, 1},
		{3, 4, 3},
		{4, 4, 0},
		{9, 4, 1},
		{0, 1, 0},
		{7, 3, 1},
	}
	for _, tc := range cases {
		got, err := RecipientPosition(tc.seq, tc.members)
		if err != nil {
			t.Fatalf("RecipientPosition(%d, %d): %v", tc.seq, tc.members, err)
		}
		if got != tc.want {
			t.Fatalf("RecipientPosition(%d, %d)=%d, want %d", tc.seq, tc.members, got, tc.want)
		}
	}
}

func TestRecipientPositionIsPure(t *testing.T) {
	a, _ := RecipientPosition(5, 3)
	b, _ := RecipientPosition(5, 3)
	if a != b {
		t.Fatalf("same inputs gave %d then %d", a, b)
	}
}

func TestRecipientPositionRejectsEmptyRoster(t *testing.T) {
	if _, err := RecipientPosition(0, 0); err == nil {
		t.Fatal("expected error for empty roster")
	}
}

func TestDeadline(t *testing.T) {
	start := time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)
	if got := Deadline(start, Weekly); got != start.AddDate(0, 0, 7) {
		t.Fatalf("weekly deadline = %v", got)
	}
	if got := Deadline(start, Monthly); got != start.AddDate(0, 0, 30) {
		t.Fatalf("monthly deadline = %v", got)
	}
}

func TestRotationDone(t *testing.T) {
	if RotationDone(2, 4) {
		t.Fatal("rotation should not be done at sequence 2 of 4")
	}
	if !RotationDone(3, 4) {
		t.Fatal("rotation should be done after sequence 3 of 4")
	}
}

func TestRenumberClosesGaps(t *testing.T) {
	got := Renumber(map[string]int{
		"m-a": 0,
		"m-c": 2,
		"m-d": 3,
	})
	want := map[string]int{"m-a": 0, "m-c": 1, "m-d": 2}
	for id, pos := range want {
		if got[id] != pos {
			t.Fatalf("Renumber[%s]=%d, want %d (full: %v)", id, got[id], pos, got)
		}
	}

	var positions []int
	for _, p := range got {
		positions = append(positions, p)
	}
	if err := ValidatePositions(positions); err != nil {
		t.Fatalf("renumbered positions not dense: %v", err)
	}
}

func TestValidatePositions(t *testing.T) {
	if err := ValidatePositions([]int{0, 1, 2}); err != nil {
		t.Fatalf("dense positions rejected: %v", err)
	}
	if err := ValidatePositions([]int{0, 2, 3}); err == nil {
		t.Fatal("gap not detected")
	}
	if err := ValidatePositions([]int{0, 1, 1}); err == nil {
		t.Fatal("duplicate not detected")
	}
}

func TestParseFrequency(t *testing.T) {
	if f, err := ParseFrequency("Weekly"); err != nil || f != Weekly {
		t.Fatalf("ParseFrequency(Weekly)=%v,%v", f, err)
	}
	if f, err := ParseFrequency("monthly"); err != nil || f != Monthly {
		t.Fatalf("ParseFrequency(monthly)=%v,%v", f, err)
	}
	if _, err := ParseFrequency("daily"); err == nil {
		t.Fatal("expected error for unsupported frequency")
	}
}
