// Package memory provides an in-process Store with no durability, used by
// tests and demo mode.
package memory

import (
	"context"
	"sort"
	"sync"

	"padisave.org/internal/circle"
	"padisave.org/internal/storage"
	"padisave.org/internal/user"
)

// Store keeps everything in maps guarded by a single RWMutex. Copies go in
// and out so callers never alias internal state.
type Store struct {
	mu sync.RWMutex

	users        map[string]*user.User
	usersByEmail map[string]string

	circles       map[string]*circle.Circle
	circlesByCode map[string]string

	memberships     map[string]*circle.Membership
	membersByCircle map[string][]string
	cyclesByCircle  map[string][]string
	cycles          map[string]*circle.Cycle
	contribsByCycle map[string]map[string]*circle.Contribution
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:           make(map[string]*user.User),
		usersByEmail:    make(map[string]string),
		circles:         make(map[string]*circle.Circle),
		circlesByCode:   make(map[string]string),
		memberships:     make(map[string]*circle.Membership),
		membersByCircle: make(map[string][]string),
		cyclesByCircle:  make(map[string][]string),
		cycles:          make(map[string]*circle.Cycle),
		contribsByCycle: make(map[string]map[string]*circle.Contribution),
	}
}

// Close implements storage.Store; nothing to release.
func (s *Store) Close() error { return nil }

// --- accounts ---

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.usersByEmail[u.Email]; taken {
		return user.ErrDuplicateEmail
	}
	cp := *u
	s.users[u.ID] = &cp
	s.usersByEmail[u.Email] = u.ID
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByEmail[email]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *Store) UpdateUserStats(ctx context.Context, id string, trustScore int, totalSaved int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.TrustScore = trustScore
	u.TotalSaved = totalSaved
	return nil
}

// --- circles ---

func (s *Store) CreateCircle(ctx context.Context, c *circle.Circle, admin *circle.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cc := *c
	mc := *admin
	s.circles[c.ID] = &cc
	s.circlesByCode[c.JoinCode] = c.ID
	s.memberships[admin.ID] = &mc
	s.membersByCircle[c.ID] = []string{admin.ID}
	return nil
}

func (s *Store) GetCircle(ctx context.Context, id string) (*circle.Circle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.circles[id]
	if !ok {
		return nil, circle.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) GetCircleByJoinCode(ctx context.Context, code string) (*circle.Circle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.circlesByCode[code]
	if !ok {
		return nil, circle.ErrNotFound
	}
	c := s.circles[id]
	if c.Status == circle.StatusCompleted {
		// completed circles retire their codes
		return nil, circle.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListCirclesForUser(ctx context.Context, userID string) ([]*circle.Circle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*circle.Circle
	for _, m := range s.memberships {
		if m.UserID != userID {
			continue
		}
		if c, ok := s.circles[m.CircleID]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateCircleStatus(ctx context.Context, id string, status circle.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.circles[id]
	if !ok {
		return circle.ErrNotFound
	}
	c.Status = status
	return nil
}

// --- memberships ---

func (s *Store) AddMembership(ctx context.Context, m *circle.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.circles[m.CircleID]; !ok {
		return circle.ErrNotFound
	}
	cp := *m
	s.memberships[m.ID] = &cp
	s.membersByCircle[m.CircleID] = append(s.membersByCircle[m.CircleID], m.ID)
	return nil
}

func (s *Store) GetMembership(ctx context.Context, id string) (*circle.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[id]
	if !ok {
		return nil, circle.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Store) ListMemberships(ctx context.Context, circleID string) ([]*circle.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.membersByCircle[circleID]
	out := make([]*circle.Membership, 0, len(ids))
	for _, id := range ids {
		cp := *s.memberships[id]
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *Store) RemoveMembership(ctx context.Context, circleID, membershipID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memberships[membershipID]; !ok {
		return circle.ErrNotFound
	}
	delete(s.memberships, membershipID)
	ids := s.membersByCircle[circleID]
	for i, id := range ids {
		if id == membershipID {
			s.membersByCircle[circleID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) UpdateMembershipPositions(ctx context.Context, circleID string, positions map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, pos := range positions {
		m, ok := s.memberships[id]
		if !ok || m.CircleID != circleID {
			return circle.ErrNotFound
		}
		m.Position = pos
	}
	return nil
}

// --- cycles & contributions ---

func (s *Store) CreateCycle(ctx context.Context, cy *circle.Cycle, contribs []*circle.Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.circles[cy.CircleID]; !ok {
		return circle.ErrNotFound
	}
	cp := *cy
	s.cycles[cy.ID] = &cp
	s.cyclesByCircle[cy.CircleID] = append(s.cyclesByCircle[cy.CircleID], cy.ID)
	bucket := make(map[string]*circle.Contribution, len(contribs))
	for _, contrib := range contribs {
		c := *contrib
		bucket[contrib.MembershipID] = &c
	}
	s.contribsByCycle[cy.ID] = bucket
	return nil
}

func (s *Store) GetCycle(ctx context.Context, id string) (*circle.Cycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cy, ok := s.cycles[id]
	if !ok {
		return nil, circle.ErrNotFound
	}
	cp := *cy
	return &cp, nil
}

func (s *Store) CurrentCycle(ctx context.Context, circleID string) (*circle.Cycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.cyclesByCircle[circleID]
	if len(ids) == 0 {
		return nil, circle.ErrNotFound
	}
	var latest *circle.Cycle
	for _, id := range ids {
		cy := s.cycles[id]
		if latest == nil || cy.Sequence > latest.Sequence {
			latest = cy
		}
	}
	cp := *latest
	return &cp, nil
}

func (s *Store) HasCycles(ctx context.Context, circleID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cyclesByCircle[circleID]) > 0, nil
}

func (s *Store) AddContribution(ctx context.Context, c *circle.Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.contribsByCycle[c.CycleID]
	if !ok {
		return circle.ErrNotFound
	}
	cp := *c
	bucket[c.MembershipID] = &cp
	return nil
}

func (s *Store) GetContribution(ctx context.Context, cycleID, membershipID string) (*circle.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.contribsByCycle[cycleID]
	if !ok {
		return nil, circle.ErrNotFound
	}
	contrib, ok := bucket[membershipID]
	if !ok {
		return nil, circle.ErrNotFound
	}
	cp := *contrib
	return &cp, nil
}

func (s *Store) ListContributions(ctx context.Context, cycleID string) ([]*circle.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.contribsByCycle[cycleID]
	if !ok {
		return nil, circle.ErrNotFound
	}
	out := make([]*circle.Contribution, 0, len(bucket))
	for _, contrib := range bucket {
		cp := *contrib
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MembershipID < out[j].MembershipID })
	return out, nil
}

func (s *Store) UpdateContribution(ctx context.Context, c *circle.Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.contribsByCycle[c.CycleID]
	if !ok {
		return circle.ErrNotFound
	}
	if _, ok := bucket[c.MembershipID]; !ok {
		return circle.ErrNotFound
	}
	cp := *c
	bucket[c.MembershipID] = &cp
	return nil
}

func (s *Store) ContributionTotals(ctx context.Context, circleID string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paid, total := 0, 0
	for _, cycleID := range s.cyclesByCircle[circleID] {
		for _, contrib := range s.contribsByCycle[cycleID] {
			total++
			if contrib.Status == circle.ContributionPaid {
				paid++
			}
		}
	}
	return paid, total, nil
}
