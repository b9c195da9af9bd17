package circle

import "context"

// Store is the persistence boundary the circle service writes through.
// Implementations live in internal/storage (memory, sqlite, pg) and must
// return the sentinel errors of this package (ErrNotFound in particular).
//
// Multi-row writes (CreateCircle, CreateCycle) must be atomic. The service
// serializes all mutations per circle, so stores do not need cross-call
// coordination beyond that atomicity.
type Store interface {
	// CreateCircle persists a circle together with its admin membership.
	CreateCircle(ctx context.Context, c *Circle, admin *Membership) error
	GetCircle(ctx context.Context, id string) (*Circle, error)
	// GetCircleByJoinCode resolves a join code; completed circles are
	// excluded, their codes are retired.
	GetCircleByJoinCode(ctx context.Context, code string) (*Circle, error)
	ListCirclesForUser(ctx context.Context, userID string) ([]*Circle, error)
	UpdateCircleStatus(ctx context.Context, id string, status Status) error

	AddMembership(ctx context.Context, m *Membership) error
	GetMembership(ctx context.Context, id string) (*Membership, error)
	// ListMemberships returns the roster ordered by rotation position.
	ListMemberships(ctx context.Context, circleID string) ([]*Membership, error)
	RemoveMembership(ctx context.Context, circleID, membershipID string) error
	// UpdateMembershipPositions rewrites positions after a pre-rotation
	// roster change; the map is membership ID -> new position.
	UpdateMembershipPositions(ctx context.Context, circleID string, positions map[string]int) error

	// CreateCycle persists a cycle and its initial pending contributions.
	CreateCycle(ctx context.Context, cy *Cycle, contribs []*Contribution) error
	GetCycle(ctx context.Context, id string) (*Cycle, error)
	// CurrentCycle returns the cycle with the highest sequence for the
	// circle, or ErrNotFound when none exist yet.
	CurrentCycle(ctx context.Context, circleID string) (*Cycle, error)
	HasCycles(ctx context.Context, circleID string) (bool, error)

	AddContribution(ctx context.Context, c *Contribution) error
	GetContribution(ctx context.Context, cycleID, membershipID string) (*Contribution, error)
	ListContributions(ctx context.Context, cycleID string) ([]*Contribution, error)
	UpdateContribution(ctx context.Context, c *Contribution) error
	// ContributionTotals counts paid and total contributions across the
	// circle's entire lifetime, for progress display.
	ContributionTotals(ctx context.Context, circleID string) (paid, total int, err error)
}
