// Package pg provides the PostgreSQL-backed storage.Store used in
// production. Schema is managed by cmd/migrate; this package assumes the
// tables exist.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"padisave.org/internal/circle"
	"padisave.org/internal/rotation"
	"padisave.org/internal/storage"
	"padisave.org/internal/user"
)

type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open connects to PostgreSQL with pool defaults sized for a single API
// instance.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewFromDB wraps an existing connection; used by tests.
func NewFromDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// --- accounts ---

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, full_name, email, password_hash, trust_score, total_saved, created_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, u.ID, u.FullName, u.Email, u.PasswordHash, u.TrustScore, u.TotalSaved, u.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return user.ErrDuplicateEmail
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		select id, full_name, email, password_hash, trust_score, total_saved, created_at
		from users where id=$1
	`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		select id, full_name, email, password_hash, trust_score, total_saved, created_at
		from users where email=$1
	`, email))
}

func scanUser(row *sql.Row) (*user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.TrustScore, &u.TotalSaved, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) UpdateUserStats(ctx context.Context, id string, trustScore int, totalSaved int64) error {
	res, err := s.db.ExecContext(ctx, `
		update users set trust_score=$2, total_saved=$3 where id=$1
	`, id, trustScore, totalSaved)
	if err != nil {
		return err
	}
	return requireRow(res, user.ErrNotFound)
}

// --- circles ---

func (s *Store) CreateCircle(ctx context.Context, c *circle.Circle, admin *circle.Membership) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into circles(id, name, amount, frequency, join_code, admin_user_id, status, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, c.ID, c.Name, c.Amount, string(c.Frequency), c.JoinCode, c.AdminUserID, string(c.Status), c.CreatedAt.UTC()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into memberships(id, circle_id, user_id, position, joined_at)
		values ($1,$2,$3,$4,$5)
	`, admin.ID, admin.CircleID, admin.UserID, admin.Position, admin.JoinedAt.UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetCircle(ctx context.Context, id string) (*circle.Circle, error) {
	return scanCircle(s.db.QueryRowContext(ctx, `
		select id, name, amount, frequency, join_code, admin_user_id, status, created_at
		from circles where id=$1
	`, id))
}

func (s *Store) GetCircleByJoinCode(ctx context.Context, code string) (*circle.Circle, error) {
	return scanCircle(s.db.QueryRowContext(ctx, `
		select id, name, amount, frequency, join_code, admin_user_id, status, created_at
		from circles where join_code=$1 and status <> $2
	`, code, string(circle.StatusCompleted)))
}

func scanCircle(row *sql.Row) (*circle.Circle, error) {
	var c circle.Circle
	var frequency, status string
	err := row.Scan(&c.ID, &c.Name, &c.Amount, &frequency, &c.JoinCode, &c.AdminUserID, &status, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, circle.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Frequency = rotation.Frequency(frequency)
	c.Status = circle.Status(status)
	return &c, nil
}

func (s *Store) ListCirclesForUser(ctx context.Context, userID string) ([]*circle.Circle, error) {
	rows, err := s.db.QueryContext(ctx, `
		select c.id, c.name, c.amount, c.frequency, c.join_code, c.admin_user_id, c.status, c.created_at
		from circles c
		join memberships m on m.circle_id = c.id
		where m.user_id=$1
		order by c.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*circle.Circle
	for rows.Next() {
		var c circle.Circle
		var frequency, status string
		if err := rows.Scan(&c.ID, &c.Name, &c.Amount, &frequency, &c.JoinCode, &c.AdminUserID, &status, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Frequency = rotation.Frequency(frequency)
		c.Status = circle.Status(status)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateCircleStatus(ctx context.Context, id string, status circle.Status) error {
	res, err := s.db.ExecContext(ctx, `
		update circles set status=$2 where id=$1
	`, id, string(status))
	if err != nil {
		return err
	}
	return requireRow(res, circle.ErrNotFound)
}

// --- memberships ---

func (s *Store) AddMembership(ctx context.Context, m *circle.Membership) error {
	_, err := s.db.ExecContext(ctx, `
		insert into memberships(id, circle_id, user_id, position, joined_at)
		values ($1,$2,$3,$4,$5)
	`, m.ID, m.CircleID, m.UserID, m.Position, m.JoinedAt.UTC())
	if isUniqueViolation(err) {
		return circle.ErrAlreadyMember
	}
	return err
}

func (s *Store) GetMembership(ctx context.Context, id string) (*circle.Membership, error) {
	var m circle.Membership
	err := s.db.QueryRowContext(ctx, `
		select id, circle_id, user_id, position, joined_at
		from memberships where id=$1
	`, id).Scan(&m.ID, &m.CircleID, &m.UserID, &m.Position, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, circle.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) ListMemberships(ctx context.Context, circleID string) ([]*circle.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, circle_id, user_id, position, joined_at
		from memberships where circle_id=$1
		order by position
	`, circleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*circle.Membership
	for rows.Next() {
		var m circle.Membership
		if err := rows.Scan(&m.ID, &m.CircleID, &m.UserID, &m.Position, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *Store) RemoveMembership(ctx context.Context, circleID, membershipID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from memberships where id=$1 and circle_id=$2
	`, membershipID, circleID)
	if err != nil {
		return err
	}
	return requireRow(res, circle.ErrNotFound)
}

func (s *Store) UpdateMembershipPositions(ctx context.Context, circleID string, positions map[string]int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for id, pos := range positions {
		res, err := tx.ExecContext(ctx, `
			update memberships set position=$3 where id=$1 and circle_id=$2
		`, id, circleID, pos)
		if err != nil {
			return err
		}
		if err := requireRow(res, circle.ErrNotFound); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// --- cycles & contributions ---

func (s *Store) CreateCycle(ctx context.Context, cy *circle.Cycle, contribs []*circle.Contribution) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into cycles(id, circle_id, sequence, started_at, deadline)
		values ($1,$2,$3,$4,$5)
	`, cy.ID, cy.CircleID, cy.Sequence, cy.StartedAt.UTC(), cy.Deadline.UTC()); err != nil {
		return err
	}
	for _, c := range contribs {
		if _, err := tx.ExecContext(ctx, `
			insert into contributions(cycle_id, membership_id, amount, status, paid_at)
			values ($1,$2,$3,$4,$5)
		`, c.CycleID, c.MembershipID, c.Amount, string(c.Status), nullTime(c.PaidAt)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetCycle(ctx context.Context, id string) (*circle.Cycle, error) {
	return scanCycle(s.db.QueryRowContext(ctx, `
		select id, circle_id, sequence, started_at, deadline
		from cycles where id=$1
	`, id))
}

func (s *Store) CurrentCycle(ctx context.Context, circleID string) (*circle.Cycle, error) {
	return scanCycle(s.db.QueryRowContext(ctx, `
		select id, circle_id, sequence, started_at, deadline
		from cycles where circle_id=$1
		order by sequence desc limit 1
	`, circleID))
}

func scanCycle(row *sql.Row) (*circle.Cycle, error) {
	var cy circle.Cycle
	err := row.Scan(&cy.ID, &cy.CircleID, &cy.Sequence, &cy.StartedAt, &cy.Deadline)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, circle.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cy, nil
}

func (s *Store) HasCycles(ctx context.Context, circleID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from cycles where circle_id=$1)
	`, circleID).Scan(&exists)
	return exists, err
}

func (s *Store) AddContribution(ctx context.Context, c *circle.Contribution) error {
	_, err := s.db.ExecContext(ctx, `
		insert into contributions(cycle_id, membership_id, amount, status, paid_at)
		values ($1,$2,$3,$4,$5)
	`, c.CycleID, c.MembershipID, c.Amount, string(c.Status), nullTime(c.PaidAt))
	return err
}

func (s *Store) GetContribution(ctx context.Context, cycleID, membershipID string) (*circle.Contribution, error) {
	var c circle.Contribution
	var status string
	var paidAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		select cycle_id, membership_id, amount, status, paid_at
		from contributions where cycle_id=$1 and membership_id=$2
	`, cycleID, membershipID).Scan(&c.CycleID, &c.MembershipID, &c.Amount, &status, &paidAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, circle.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Status = circle.ContributionStatus(status)
	if paidAt.Valid {
		t := paidAt.Time
		c.PaidAt = &t
	}
	return &c, nil
}

func (s *Store) ListContributions(ctx context.Context, cycleID string) ([]*circle.Contribution, error) {
	rows, err := s.db.QueryContext(ctx, `
		select cycle_id, membership_id, amount, status, paid_at
		from contributions where cycle_id=$1
		order by membership_id
	`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*circle.Contribution
	for rows.Next() {
		var c circle.Contribution
		var status string
		var paidAt sql.NullTime
		if err := rows.Scan(&c.CycleID, &c.MembershipID, &c.Amount, &status, &paidAt); err != nil {
			return nil, err
		}
		c.Status = circle.ContributionStatus(status)
		if paidAt.Valid {
			t := paidAt.Time
			c.PaidAt = &t
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateContribution(ctx context.Context, c *circle.Contribution) error {
	res, err := s.db.ExecContext(ctx, `
		update contributions set status=$3, paid_at=$4
		where cycle_id=$1 and membership_id=$2
	`, c.CycleID, c.MembershipID, string(c.Status), nullTime(c.PaidAt))
	if err != nil {
		return err
	}
	return requireRow(res, circle.ErrNotFound)
}

func (s *Store) ContributionTotals(ctx context.Context, circleID string) (int, int, error) {
	var paid, total int
	err := s.db.QueryRowContext(ctx, `
		select coalesce(sum(case when co.status=$2 then 1 else 0 end),0), count(*)
		from contributions co
		join cycles cy on cy.id = co.cycle_id
		where cy.circle_id=$1
	`, circleID, string(circle.ContributionPaid)).Scan(&paid, &total)
	if err != nil {
		return 0, 0, err
	}
	return paid, total, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
