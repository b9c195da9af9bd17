// Package circle implements the rotating savings circle core: circle and
// membership registry, payout rotation scheduling and the per-cycle
// contribution ledger.
package circle

import (
	"time"

	"padisave.org/internal/rotation"
)

// Status is the lifecycle state of a circle. Transitions run strictly
// Pending -> Active -> Completed; no state is ever skipped.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Circle is a rotating savings group. Amount is the per-cycle contribution
// in minor currency units (kobo). The join code is generated at creation
// and immutable thereafter.
type Circle struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Amount      int64              `json:"amount"`
	Frequency   rotation.Frequency `json:"frequency"`
	JoinCode    string             `json:"join_code"`
	AdminUserID string             `json:"admin_user_id"`
	Status      Status             `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Membership ties a user to a circle at a fixed rotation position.
// Positions within a circle are dense 0..N-1 with no gaps or duplicates.
type Membership struct {
	ID       string    `json:"id"`
	CircleID string    `json:"circle_id"`
	UserID   string    `json:"user_id"`
	Position int       `json:"position"`
	JoinedAt time.Time `json:"joined_at"`
}

// Cycle is one contribution/payout period. Sequence numbers are monotonic
// per circle starting at 0; the payout recipient is the membership at
// position (sequence mod member count).
type Cycle struct {
	ID        string    `json:"id"`
	CircleID  string    `json:"circle_id"`
	Sequence  uint64    `json:"sequence"`
	StartedAt time.Time `json:"started_at"`
	Deadline  time.Time `json:"deadline"`
}

// ContributionStatus tracks a member's payment state within one cycle.
type ContributionStatus string

const (
	ContributionPending ContributionStatus = "pending"
	ContributionPaid    ContributionStatus = "paid"
	ContributionLate    ContributionStatus = "late"
	ContributionMissed  ContributionStatus = "missed"
)

// Contribution is one member's payment obligation for one cycle, keyed by
// the (cycle, membership) pair. A membership has at most one contribution
// per cycle.
type Contribution struct {
	CycleID      string             `json:"cycle_id"`
	MembershipID string             `json:"membership_id"`
	Amount       int64              `json:"amount"`
	Status       ContributionStatus `json:"status"`
	PaidAt       *time.Time         `json:"paid_at,omitempty"`
}

// Settled reports whether the contribution reached a terminal state.
func (c *Contribution) Settled() bool {
	return c.Status == ContributionPaid || c.Status == ContributionMissed
}
