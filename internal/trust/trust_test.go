package trust

import "testing"

func TestApplyDeltas(t *testing.T) {
	e := NewEngine()
	cases := []struct {
		score   int
		outcome Outcome
		want    int
	}{
		{450, OnTime, 465},
		{450, Late, 440},
		{450, Missed, 420},
		{845, OnTime, 850},
		{305, Missed, 300},
		{300, Late, 300},
		{850, OnTime, 850},
	}
	for _, tc := range cases {
		if got := e.Apply(tc.score, tc.outcome); got != tc.want {
			t.Fatalf("Apply(%d, %s)=%d, want %d", tc.score, tc.outcome, got, tc.want)
		}
	}
}

func TestScoreStaysBoundedUnderAnySequence(t *testing.T) {
	e := NewEngine()
	score := 450
	outcomes := []Outcome{
		Missed, Missed, Missed, Missed, Missed, Missed,
		OnTime, OnTime, OnTime, OnTime, OnTime, OnTime, OnTime, OnTime,
		OnTime, OnTime, OnTime, OnTime, OnTime, OnTime, OnTime, OnTime,
		OnTime, OnTime, OnTime, OnTime, OnTime, OnTime, OnTime, OnTime,
		Late, Missed,
	}
	for i, o := range outcomes {
		score = e.Apply(score, o)
		if score < Floor || score > Ceiling {
			t.Fatalf("score %d escaped bounds after event %d (%s)", score, i, o)
		}
	}
}

func TestZeroValueEngineUsesDefaults(t *testing.T) {
	var e Engine
	if got := e.Apply(450, OnTime); got != 465 {
		t.Fatalf("zero-value Apply = %d, want 465", got)
	}
}

func TestClamp(t *testing.T) {
	if Clamp(299) != Floor || Clamp(851) != Ceiling || Clamp(500) != 500 {
		t.Fatal("Clamp bounds incorrect")
	}
}
