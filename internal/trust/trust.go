// Package trust derives a bounded reputation score from contribution
// settlement history. The score moves by a fixed delta per outcome and is
// clamped to the [Floor, Ceiling] band.
package trust

// Outcome classifies how a contribution was settled.
type Outcome string

const (
	OnTime Outcome = "on_time"
	Late   Outcome = "late"
	Missed Outcome = "missed"
)

// Score bounds and per-outcome deltas.
const (
	Floor   = 300
	Ceiling = 850

	onTimeDelta = 15
	lateDelta   = -10
	missedDelta = -30
)

// Engine applies settlement outcomes to a trust score. The zero value uses
// the default deltas; it holds no state beyond its configuration, so a
// single Engine can serve every user.
type Engine struct {
	deltas map[Outcome]int
}

// NewEngine returns an Engine with the default outcome deltas.
func NewEngine() Engine {
	return Engine{deltas: map[Outcome]int{
		OnTime: onTimeDelta,
		Late:   lateDelta,
		Missed: missedDelta,
	}}
}

// Apply returns the score after one settlement. Callers must invoke it
// exactly once per settled contribution; the engine does not deduplicate.
func (e Engine) Apply(score int, outcome Outcome) int {
	deltas := e.deltas
	if deltas == nil {
		deltas = map[Outcome]int{OnTime: onTimeDelta, Late: lateDelta, Missed: missedDelta}
	}
	return Clamp(score + deltas[outcome])
}

// Clamp bounds a score to the [Floor, Ceiling] band.
func Clamp(score int) int {
	if score < Floor {
		return Floor
	}
	if score > Ceiling {
		return Ceiling
	}
	return score
}
