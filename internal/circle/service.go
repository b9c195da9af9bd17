package circle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"padisave.org/internal/ids"
	"padisave.org/internal/rotation"
	"padisave.org/internal/trust"
)

const (
	defaultMinMembers   = 2
	defaultMaxMembers   = 10
	defaultCodeAttempts = 5
)

// AccountLedger receives settlement events for the trust score engine and
// savings totals. The service invokes it exactly once per settled
// contribution, inside the circle's critical section.
type AccountLedger interface {
	SettleContribution(ctx context.Context, userID string, outcome trust.Outcome, amountSaved int64) error
}

// Service owns all circle state transitions. Mutations to a given circle
// are serialized through a per-circle mutex; reads go straight to the
// store.
type Service struct {
	store    Store
	accounts AccountLedger

	now     func() time.Time
	newID   func() string
	newCode func() string

	minMembers   int
	maxMembers   int
	codeAttempts int
	repeat       bool

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option configures Service behavior.
type Option func(*Service)

// WithAccountLedger wires the trust/savings settlement sink.
func WithAccountLedger(l AccountLedger) Option {
	return func(s *Service) { s.accounts = l }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithIDGenerator overrides entity ID generation (useful for tests).
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithCodeGenerator overrides join code generation (useful for tests).
func WithCodeGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newCode = fn
		}
	}
}

// WithMinMembers sets the roster size at which a circle activates.
func WithMinMembers(n int) Option {
	return func(s *Service) {
		if n >= 2 {
			s.minMembers = n
		}
	}
}

// WithMaxMembers caps the roster size.
func WithMaxMembers(n int) Option {
	return func(s *Service) {
		if n >= 2 {
			s.maxMembers = n
		}
	}
}

// WithRepeat keeps a circle cycling past one full rotation instead of
// marking it completed.
func WithRepeat(repeat bool) Option {
	return func(s *Service) { s.repeat = repeat }
}

// NewService constructs a circle service over the given store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:        store,
		now:          time.Now,
		newID:        ids.New,
		newCode:      NewJoinCode,
		minMembers:   defaultMinMembers,
		maxMembers:   defaultMaxMembers,
		codeAttempts: defaultCodeAttempts,
		locks:        make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lockCircle acquires the single-writer lock for a circle and returns the
// release function.
func (s *Service) lockCircle(circleID string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[circleID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[circleID] = mu
	}
	s.locksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// CreateCircle registers a new circle with the creator auto-joined as admin
// at rotation position 0. The join code is regenerated on collision up to a
// bounded number of attempts.
func (s *Service) CreateCircle(ctx context.Context, adminUserID, name string, amount int64, freq rotation.Frequency) (*Circle, error) {
	adminUserID = strings.TrimSpace(adminUserID)
	name = strings.TrimSpace(name)
	if adminUserID == "" || name == "" || amount <= 0 {
		return nil, ErrInvalidInput
	}
	if freq != rotation.Weekly && freq != rotation.Monthly {
		return nil, ErrInvalidInput
	}

	code, err := s.allocateJoinCode(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c := &Circle{
		ID:          s.newID(),
		Name:        name,
		Amount:      amount,
		Frequency:   freq,
		JoinCode:    code,
		AdminUserID: adminUserID,
		Status:      StatusPending,
		CreatedAt:   now,
	}
	admin := &Membership{
		ID:       s.newID(),
		CircleID: c.ID,
		UserID:   adminUserID,
		Position: 0,
		JoinedAt: now,
	}
	if err := s.store.CreateCircle(ctx, c, admin); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) allocateJoinCode(ctx context.Context) (string, error) {
	for i := 0; i < s.codeAttempts; i++ {
		code := s.newCode()
		_, err := s.store.GetCircleByJoinCode(ctx, code)
		if errors.Is(err, ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
		// collision, try again
	}
	return "", ErrCodeExhausted
}

// JoinCircle adds a user to the circle behind the join code at the next
// rotation position. Reaching the configured minimum roster activates the
// circle and opens cycle 0; joining an already-active circle adds a pending
// contribution to the open cycle.
func (s *Service) JoinCircle(ctx context.Context, joinCode, userID string) (*Membership, error) {
	userID = strings.TrimSpace(userID)
	joinCode = strings.ToUpper(strings.TrimSpace(joinCode))
	if userID == "" || joinCode == "" {
		return nil, ErrInvalidInput
	}

	c, err := s.store.GetCircleByJoinCode(ctx, joinCode)
	if err != nil {
		return nil, err
	}

	unlock := s.lockCircle(c.ID)
	defer unlock()

	// Re-read under the lock; status may have changed.
	c, err = s.store.GetCircle(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if c.Status == StatusCompleted {
		return nil, ErrNotFound
	}

	members, err := s.store.ListMemberships(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.UserID == userID {
			return nil, ErrAlreadyMember
		}
	}
	if len(members) >= s.maxMembers {
		return nil, ErrCircleFull
	}

	now := s.now().UTC()
	m := &Membership{
		ID:       s.newID(),
		CircleID: c.ID,
		UserID:   userID,
		Position: len(members),
		JoinedAt: now,
	}
	if err := s.store.AddMembership(ctx, m); err != nil {
		return nil, err
	}
	roster := append(members, m)

	switch c.Status {
	case StatusPending:
		if len(roster) >= s.minMembers {
			if err := s.store.UpdateCircleStatus(ctx, c.ID, StatusActive); err != nil {
				return nil, err
			}
			if err := s.openCycle(ctx, c, 0, roster, now); err != nil {
				return nil, err
			}
		}
	case StatusActive:
		// A member joining mid-rotation owes the cycle that is open now.
		cur, err := s.store.CurrentCycle(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		contrib := &Contribution{
			CycleID:      cur.ID,
			MembershipID: m.ID,
			Amount:       c.Amount,
			Status:       ContributionPending,
		}
		if err := s.store.AddContribution(ctx, contrib); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (s *Service) openCycle(ctx context.Context, c *Circle, seq uint64, roster []*Membership, now time.Time) error {
	cy := &Cycle{
		ID:        s.newID(),
		CircleID:  c.ID,
		Sequence:  seq,
		StartedAt: now,
		Deadline:  rotation.Deadline(now, c.Frequency),
	}
	contribs := make([]*Contribution, 0, len(roster))
	for _, m := range roster {
		contribs = append(contribs, &Contribution{
			CycleID:      cy.ID,
			MembershipID: m.ID,
			Amount:       c.Amount,
			Status:       ContributionPending,
		})
	}
	return s.store.CreateCycle(ctx, cy, contribs)
}

// GetCircle returns a circle by ID.
func (s *Service) GetCircle(ctx context.Context, id string) (*Circle, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidInput
	}
	return s.store.GetCircle(ctx, id)
}

// ListCirclesForUser returns every circle the user belongs to.
func (s *Service) ListCirclesForUser(ctx context.Context, userID string) ([]*Circle, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}
	return s.store.ListCirclesForUser(ctx, userID)
}

// Roster returns the circle's memberships ordered by rotation position.
func (s *Service) Roster(ctx context.Context, circleID string) ([]*Membership, error) {
	if _, err := s.store.GetCircle(ctx, circleID); err != nil {
		return nil, err
	}
	return s.store.ListMemberships(ctx, circleID)
}

// LeaveCircle removes a non-admin member from a circle that has not started
// rotating, renumbering the remaining positions contiguously. Once any
// cycle exists the rotation is locked and removal is refused.
func (s *Service) LeaveCircle(ctx context.Context, circleID, userID string) error {
	unlock := s.lockCircle(circleID)
	defer unlock()

	c, err := s.store.GetCircle(ctx, circleID)
	if err != nil {
		return err
	}
	if c.AdminUserID == userID {
		return ErrInvalidInput
	}

	locked, err := s.store.HasCycles(ctx, circleID)
	if err != nil {
		return err
	}
	if locked {
		return ErrRotationLocked
	}

	members, err := s.store.ListMemberships(ctx, circleID)
	if err != nil {
		return err
	}
	var leaving *Membership
	remaining := make(map[string]int, len(members)-1)
	for _, m := range members {
		if m.UserID == userID {
			leaving = m
			continue
		}
		remaining[m.ID] = m.Position
	}
	if leaving == nil {
		return ErrNotFound
	}
	if err := s.store.RemoveMembership(ctx, circleID, leaving.ID); err != nil {
		return err
	}
	return s.store.UpdateMembershipPositions(ctx, circleID, rotation.Renumber(remaining))
}

// CurrentCycle returns the open cycle of a circle.
func (s *Service) CurrentCycle(ctx context.Context, circleID string) (*Cycle, error) {
	return s.store.CurrentCycle(ctx, circleID)
}

// Cycle returns one cycle by ID.
func (s *Service) Cycle(ctx context.Context, id string) (*Cycle, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidInput
	}
	return s.store.GetCycle(ctx, id)
}

// Contributions lists the contributions of one cycle.
func (s *Service) Contributions(ctx context.Context, cycleID string) ([]*Contribution, error) {
	if _, err := s.store.GetCycle(ctx, cycleID); err != nil {
		return nil, err
	}
	return s.store.ListContributions(ctx, cycleID)
}

// CurrentRecipient returns the membership receiving the pot in the open
// cycle: the member whose position equals sequence mod member count.
func (s *Service) CurrentRecipient(ctx context.Context, circleID string) (*Membership, error) {
	c, err := s.store.GetCircle(ctx, circleID)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusActive {
		return nil, ErrCircleNotActive
	}
	cur, err := s.store.CurrentCycle(ctx, circleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrCircleNotActive
		}
		return nil, err
	}
	members, err := s.store.ListMemberships(ctx, circleID)
	if err != nil {
		return nil, err
	}
	pos, err := rotation.RecipientPosition(cur.Sequence, len(members))
	if err != nil {
		return nil, ErrCircleNotActive
	}
	for _, m := range members {
		if m.Position == pos {
			return m, nil
		}
	}
	return nil, ErrNotFound
}

// AdvanceResult describes the outcome of one cycle rollover.
type AdvanceResult struct {
	Recipient *Membership `json:"recipient"`
	Payout    int64       `json:"payout"`
	Completed bool        `json:"completed"`
	NextCycle *Cycle      `json:"next_cycle,omitempty"`
}

// AdvanceCycle settles the open cycle: it requires every contribution to be
// in a terminal state, pays out the pot to the current recipient, and either
// opens the next cycle or marks the circle completed after one full
// rotation (unless repeat mode is on).
func (s *Service) AdvanceCycle(ctx context.Context, circleID string) (*AdvanceResult, error) {
	unlock := s.lockCircle(circleID)
	defer unlock()

	c, err := s.store.GetCircle(ctx, circleID)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusActive {
		return nil, ErrCircleNotActive
	}
	cur, err := s.store.CurrentCycle(ctx, circleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrCircleNotActive
		}
		return nil, err
	}

	contribs, err := s.store.ListContributions(ctx, cur.ID)
	if err != nil {
		return nil, err
	}
	var payout int64
	for _, contrib := range contribs {
		if !contrib.Settled() {
			return nil, ErrCycleIncomplete
		}
		if contrib.Status == ContributionPaid {
			payout += contrib.Amount
		}
	}

	members, err := s.store.ListMemberships(ctx, circleID)
	if err != nil {
		return nil, err
	}
	pos, err := rotation.RecipientPosition(cur.Sequence, len(members))
	if err != nil {
		return nil, ErrCircleNotActive
	}
	var recipient *Membership
	for _, m := range members {
		if m.Position == pos {
			recipient = m
			break
		}
	}
	if recipient == nil {
		return nil, ErrNotFound
	}

	res := &AdvanceResult{Recipient: recipient, Payout: payout}
	if !s.repeat && rotation.RotationDone(cur.Sequence, len(members)) {
		if err := s.store.UpdateCircleStatus(ctx, circleID, StatusCompleted); err != nil {
			return nil, err
		}
		res.Completed = true
		return res, nil
	}

	now := s.now().UTC()
	next := &Cycle{
		ID:        s.newID(),
		CircleID:  circleID,
		Sequence:  cur.Sequence + 1,
		StartedAt: now,
		Deadline:  rotation.Deadline(now, c.Frequency),
	}
	nextContribs := make([]*Contribution, 0, len(members))
	for _, m := range members {
		nextContribs = append(nextContribs, &Contribution{
			CycleID:      next.ID,
			MembershipID: m.ID,
			Amount:       c.Amount,
			Status:       ContributionPending,
		})
	}
	if err := s.store.CreateCycle(ctx, next, nextContribs); err != nil {
		return nil, err
	}
	res.NextCycle = next
	return res, nil
}

// Payment is the result of a recorded contribution payment.
type Payment struct {
	Contribution *Contribution `json:"contribution"`
	Outcome      trust.Outcome `json:"outcome"`
}

// RecordPayment marks a member's contribution for a cycle as paid. The
// amount must match the circle's configured contribution exactly. Payments
// landing after the cycle deadline settle as Late regardless of whether the
// overdue sweep has run.
func (s *Service) RecordPayment(ctx context.Context, cycleID, membershipID string, amount int64) (*Payment, error) {
	cy, err := s.store.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockCircle(cy.CircleID)
	defer unlock()

	c, err := s.store.GetCircle(ctx, cy.CircleID)
	if err != nil {
		return nil, err
	}
	m, err := s.store.GetMembership(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if m.CircleID != cy.CircleID {
		return nil, ErrNotFound
	}
	if amount != c.Amount {
		return nil, ErrAmountMismatch
	}

	contrib, err := s.store.GetContribution(ctx, cycleID, membershipID)
	if err != nil {
		return nil, err
	}
	switch contrib.Status {
	case ContributionPaid:
		return nil, ErrAlreadyPaid
	case ContributionMissed:
		return nil, ErrAlreadySettled
	}

	now := s.now().UTC()
	outcome := trust.OnTime
	if now.After(cy.Deadline) {
		outcome = trust.Late
	}
	contrib.Status = ContributionPaid
	contrib.PaidAt = &now
	if err := s.store.UpdateContribution(ctx, contrib); err != nil {
		return nil, err
	}

	if s.accounts != nil {
		if err := s.accounts.SettleContribution(ctx, m.UserID, outcome, amount); err != nil {
			return nil, err
		}
	}
	return &Payment{Contribution: contrib, Outcome: outcome}, nil
}

// MarkOverdue flips contributions still pending past the cycle deadline to
// Late. It is idempotent; repeated calls change nothing further. Returns
// the number of contributions transitioned.
func (s *Service) MarkOverdue(ctx context.Context, cycleID string) (int, error) {
	cy, err := s.store.GetCycle(ctx, cycleID)
	if err != nil {
		return 0, err
	}

	unlock := s.lockCircle(cy.CircleID)
	defer unlock()

	if !s.now().UTC().After(cy.Deadline) {
		return 0, nil
	}
	contribs, err := s.store.ListContributions(ctx, cycleID)
	if err != nil {
		return 0, err
	}
	flipped := 0
	for _, contrib := range contribs {
		if contrib.Status != ContributionPending {
			continue
		}
		contrib.Status = ContributionLate
		if err := s.store.UpdateContribution(ctx, contrib); err != nil {
			return flipped, err
		}
		flipped++
	}
	return flipped, nil
}

// WriteOff settles an unpaid contribution as Missed so a stuck cycle can
// advance without it. Idempotent on already-missed contributions; paid
// contributions are refused.
func (s *Service) WriteOff(ctx context.Context, cycleID, membershipID string) (*Contribution, error) {
	cy, err := s.store.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockCircle(cy.CircleID)
	defer unlock()

	m, err := s.store.GetMembership(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	contrib, err := s.store.GetContribution(ctx, cycleID, membershipID)
	if err != nil {
		return nil, err
	}
	switch contrib.Status {
	case ContributionPaid:
		return nil, ErrAlreadyPaid
	case ContributionMissed:
		return contrib, nil
	}

	contrib.Status = ContributionMissed
	if err := s.store.UpdateContribution(ctx, contrib); err != nil {
		return nil, err
	}
	if s.accounts != nil {
		if err := s.accounts.SettleContribution(ctx, m.UserID, trust.Missed, 0); err != nil {
			return nil, err
		}
	}
	return contrib, nil
}

// Progress returns the fraction of paid contributions across all of the
// circle's cycles to date. Pure read; zero before any cycle opens.
func (s *Service) Progress(ctx context.Context, circleID string) (float64, error) {
	if _, err := s.store.GetCircle(ctx, circleID); err != nil {
		return 0, err
	}
	paid, total, err := s.store.ContributionTotals(ctx, circleID)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	return float64(paid) / float64(total), nil
}
