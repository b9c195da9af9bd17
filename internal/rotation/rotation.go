// Package rotation holds the pure payout-order math for savings circles:
// which member receives the pot in a given cycle, when a cycle's
// contributions fall due, and how positions are renumbered when the roster
// changes before the rotation starts.
package rotation

import (
	"errors"
	"sort"
	"time"
)

// Frequency is the contribution cadence of a circle.
type Frequency string

const (
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// ParseFrequency normalizes a frequency string from the API.
func ParseFrequency(raw string) (Frequency, error) {
	switch Frequency(normalize(raw)) {
	case Weekly:
		return Weekly, nil
	case Monthly:
		return Monthly, nil
	default:
		return "", errors.New("frequency must be weekly or monthly")
	}
}

func normalize(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// RecipientPosition returns the rotation position that receives the pot for
// the cycle with the given sequence number. Payouts walk the roster in
// position order, wrapping after one full rotation.
func RecipientPosition(sequence uint64, memberCount int) (int, error) {
	if memberCount <= 0 {
		return 0, errors.New("member count must be positive")
	}
	return int(sequence % uint64(memberCount)), nil
}

// Deadline derives the payment deadline for a cycle from its start time and
// the circle's cadence: +7 days for weekly circles, +30 days for monthly.
func Deadline(start time.Time, f Frequency) time.Time {
	switch f {
	case Weekly:
		return start.Add(7 * 24 * time.Hour)
	default:
		return start.Add(30 * 24 * time.Hour)
	}
}

// RotationDone reports whether advancing past the given sequence completes
// one full rotation of the roster.
func RotationDone(sequence uint64, memberCount int) bool {
	if memberCount <= 0 {
		return true
	}
	return sequence+1 >= uint64(memberCount)
}

// Renumber maps membership IDs to dense positions 0..N-1, preserving the
// relative order of the surviving positions. Input is membership ID ->
// current position; the result has no gaps or duplicates.
func Renumber(current map[string]int) map[string]int {
	type slot struct {
		id  string
		pos int
	}
	slots := make([]slot, 0, len(current))
	for id, pos := range current {
		slots = append(slots, slot{id: id, pos: pos})
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].pos == slots[j].pos {
			return slots[i].id < slots[j].id
		}
		return slots[i].pos < slots[j].pos
	})
	out := make(map[string]int, len(slots))
	for i, s := range slots {
		out[s.id] = i
	}
	return out
}

// ValidatePositions checks the dense-positions invariant: positions of a
// circle's memberships must form exactly {0..N-1}.
func ValidatePositions(positions []int) error {
	seen := make(map[int]bool, len(positions))
	for _, p := range positions {
		if p < 0 || p >= len(positions) {
			return errors.New("rotation position out of range")
		}
		if seen[p] {
			return errors.New("duplicate rotation position")
		}
		seen[p] = true
	}
	return nil
}
