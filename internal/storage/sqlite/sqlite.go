// Package sqlite provides a SQLite-backed storage.Store for embedded
// single-node deploys. The driver is pure Go, so binaries stay CGO-free.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"padisave.org/internal/circle"
	"padisave.org/internal/rotation"
	"padisave.org/internal/storage"
	"padisave.org/internal/user"
)

var _ storage.Store = (*Store)(nil)

// Store implements storage.Store on a SQLite database file.
type Store struct {
	db *sql.DB
}

// New opens (and if necessary creates) the database at path and applies the
// schema.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

const timeLayout = time.RFC3339Nano

func encodeTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func decodeTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

// --- accounts ---

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, full_name, email, password_hash, trust_score, total_saved, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.FullName, u.Email, u.PasswordHash, u.TrustScore, u.TotalSaved, encodeTime(u.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			return user.ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, full_name, email, password_hash, trust_score, total_saved, created_at
		 FROM users WHERE id = ?`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, full_name, email, password_hash, trust_score, total_saved, created_at
		 FROM users WHERE email = ?`, email))
}

func (s *Store) scanUser(row *sql.Row) (*user.User, error) {
	var u user.User
	var createdAt string
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.TrustScore, &u.TotalSaved, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if u.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, fmt.Errorf("decode user created_at: %w", err)
	}
	return &u, nil
}

func (s *Store) UpdateUserStats(ctx context.Context, id string, trustScore int, totalSaved int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET trust_score = ?, total_saved = ? WHERE id = ?`,
		trustScore, totalSaved, id,
	)
	if err != nil {
		return fmt.Errorf("update user stats: %w", err)
	}
	return requireRow(res, user.ErrNotFound)
}

// --- circles ---

func (s *Store) CreateCircle(ctx context.Context, c *circle.Circle, admin *circle.Membership) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO circles (id, name, amount, frequency, join_code, admin_user_id, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Amount, string(c.Frequency), c.JoinCode, c.AdminUserID, string(c.Status), encodeTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert circle: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO memberships (id, circle_id, user_id, position, joined_at)
		 VALUES (?, ?, ?, ?, ?)`,
		admin.ID, admin.CircleID, admin.UserID, admin.Position, encodeTime(admin.JoinedAt),
	)
	if err != nil {
		return fmt.Errorf("insert admin membership: %w", err)
	}
	return tx.Commit()
}

const circleColumns = `id, name, amount, frequency, join_code, admin_user_id, status, created_at`

func (s *Store) GetCircle(ctx context.Context, id string) (*circle.Circle, error) {
	return s.scanCircle(s.db.QueryRowContext(ctx,
		`SELECT `+circleColumns+` FROM circles WHERE id = ?`, id))
}

func (s *Store) GetCircleByJoinCode(ctx context.Context, code string) (*circle.Circle, error) {
	return s.scanCircle(s.db.QueryRowContext(ctx,
		`SELECT `+circleColumns+` FROM circles WHERE join_code = ? AND status != ?`,
		code, string(circle.StatusCompleted)))
}

func (s *Store) scanCircle(row *sql.Row) (*circle.Circle, error) {
	var c circle.Circle
	var frequency, status, createdAt string
	err := row.Scan(&c.ID, &c.Name, &c.Amount, &frequency, &c.JoinCode, &c.AdminUserID, &status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, circle.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan circle: %w", err)
	}
	c.Frequency = rotation.Frequency(frequency)
	c.Status = circle.Status(status)
	if c.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, fmt.Errorf("decode circle created_at: %w", err)
	}
	return &c, nil
}

func (s *Store) ListCirclesForUser(ctx context.Context, userID string) ([]*circle.Circle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.amount, c.frequency, c.join_code, c.admin_user_id, c.status, c.created_at
		 FROM circles c JOIN memberships m ON m.circle_id = c.id
		 WHERE m.user_id = ? ORDER BY c.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list circles: %w", err)
	}
	defer rows.Close()

	var out []*circle.Circle
	for rows.Next() {
		var c circle.Circle
		var frequency, status, createdAt string
		if err := rows.Scan(&c.ID, &c.Name, &c.Amount, &frequency, &c.JoinCode, &c.AdminUserID, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan circle: %w", err)
		}
		c.Frequency = rotation.Frequency(frequency)
		c.Status = circle.Status(status)
		if c.CreatedAt, err = decodeTime(createdAt); err != nil {
			return nil, fmt.Errorf("decode circle created_at: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateCircleStatus(ctx context.Context, id string, status circle.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE circles SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update circle status: %w", err)
	}
	return requireRow(res, circle.ErrNotFound)
}

// --- memberships ---

func (s *Store) AddMembership(ctx context.Context, m *circle.Membership) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memberships (id, circle_id, user_id, position, joined_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.CircleID, m.UserID, m.Position, encodeTime(m.JoinedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return circle.ErrAlreadyMember
		}
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

func (s *Store) GetMembership(ctx context.Context, id string) (*circle.Membership, error) {
	var m circle.Membership
	var joinedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, circle_id, user_id, position, joined_at FROM memberships WHERE id = ?`, id).
		Scan(&m.ID, &m.CircleID, &m.UserID, &m.Position, &joinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, circle.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan membership: %w", err)
	}
	if m.JoinedAt, err = decodeTime(joinedAt); err != nil {
		return nil, fmt.Errorf("decode membership joined_at: %w", err)
	}
	return &m, nil
}

func (s *Store) ListMemberships(ctx context.Context, circleID string) ([]*circle.Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, circle_id, user_id, position, joined_at
		 FROM memberships WHERE circle_id = ? ORDER BY position`, circleID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []*circle.Membership
	for rows.Next() {
		var m circle.Membership
		var joinedAt string
		if err := rows.Scan(&m.ID, &m.CircleID, &m.UserID, &m.Position, &joinedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		if m.JoinedAt, err = decodeTime(joinedAt); err != nil {
			return nil, fmt.Errorf("decode membership joined_at: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *Store) RemoveMembership(ctx context.Context, circleID, membershipID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memberships WHERE id = ? AND circle_id = ?`, membershipID, circleID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return requireRow(res, circle.ErrNotFound)
}

func (s *Store) UpdateMembershipPositions(ctx context.Context, circleID string, positions map[string]int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for id, pos := range positions {
		res, err := tx.ExecContext(ctx,
			`UPDATE memberships SET position = ? WHERE id = ? AND circle_id = ?`,
			pos, id, circleID)
		if err != nil {
			return fmt.Errorf("update position: %w", err)
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
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO cycles (id, circle_id, sequence, started_at, deadline)
		 VALUES (?, ?, ?, ?, ?)`,
		cy.ID, cy.CircleID, cy.Sequence, encodeTime(cy.StartedAt), encodeTime(cy.Deadline),
	)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}
	for _, contrib := range contribs {
		if err := insertContribution(ctx, tx, contrib); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetCycle(ctx context.Context, id string) (*circle.Cycle, error) {
	return s.scanCycle(s.db.QueryRowContext(ctx,
		`SELECT id, circle_id, sequence, started_at, deadline FROM cycles WHERE id = ?`, id))
}

func (s *Store) CurrentCycle(ctx context.Context, circleID string) (*circle.Cycle, error) {
	return s.scanCycle(s.db.QueryRowContext(ctx,
		`SELECT id, circle_id, sequence, started_at, deadline
		 FROM cycles WHERE circle_id = ? ORDER BY sequence DESC LIMIT 1`, circleID))
}

func (s *Store) scanCycle(row *sql.Row) (*circle.Cycle, error) {
	var cy circle.Cycle
	var startedAt, deadline string
	err := row.Scan(&cy.ID, &cy.CircleID, &cy.Sequence, &startedAt, &deadline)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, circle.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan cycle: %w", err)
	}
	if cy.StartedAt, err = decodeTime(startedAt); err != nil {
		return nil, fmt.Errorf("decode cycle started_at: %w", err)
	}
	if cy.Deadline, err = decodeTime(deadline); err != nil {
		return nil, fmt.Errorf("decode cycle deadline: %w", err)
	}
	return &cy, nil
}

func (s *Store) HasCycles(ctx context.Context, circleID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cycles WHERE circle_id = ?`, circleID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count cycles: %w", err)
	}
	return n > 0, nil
}

func (s *Store) AddContribution(ctx context.Context, c *circle.Contribution) error {
	return insertContribution(ctx, s.db, c)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertContribution(ctx context.Context, db execer, c *circle.Contribution) error {
	var paidAt any
	if c.PaidAt != nil {
		paidAt = encodeTime(*c.PaidAt)
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO contributions (cycle_id, membership_id, amount, status, paid_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.CycleID, c.MembershipID, c.Amount, string(c.Status), paidAt,
	)
	if err != nil {
		return fmt.Errorf("insert contribution: %w", err)
	}
	return nil
}

func (s *Store) GetContribution(ctx context.Context, cycleID, membershipID string) (*circle.Contribution, error) {
	var c circle.Contribution
	var status string
	var paidAt sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT cycle_id, membership_id, amount, status, paid_at
		 FROM contributions WHERE cycle_id = ? AND membership_id = ?`,
		cycleID, membershipID).
		Scan(&c.CycleID, &c.MembershipID, &c.Amount, &status, &paidAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, circle.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan contribution: %w", err)
	}
	c.Status = circle.ContributionStatus(status)
	if paidAt.Valid {
		t, err := decodeTime(paidAt.String)
		if err != nil {
			return nil, fmt.Errorf("decode contribution paid_at: %w", err)
		}
		c.PaidAt = &t
	}
	return &c, nil
}

func (s *Store) ListContributions(ctx context.Context, cycleID string) ([]*circle.Contribution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cycle_id, membership_id, amount, status, paid_at
		 FROM contributions WHERE cycle_id = ? ORDER BY membership_id`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	var out []*circle.Contribution
	for rows.Next() {
		var c circle.Contribution
		var status string
		var paidAt sql.NullString
		if err := rows.Scan(&c.CycleID, &c.MembershipID, &c.Amount, &status, &paidAt); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		c.Status = circle.ContributionStatus(status)
		if paidAt.Valid {
			t, err := decodeTime(paidAt.String)
			if err != nil {
				return nil, fmt.Errorf("decode contribution paid_at: %w", err)
			}
			c.PaidAt = &t
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateContribution(ctx context.Context, c *circle.Contribution) error {
	var paidAt any
	if c.PaidAt != nil {
		paidAt = encodeTime(*c.PaidAt)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE contributions SET status = ?, paid_at = ?
		 WHERE cycle_id = ? AND membership_id = ?`,
		string(c.Status), paidAt, c.CycleID, c.MembershipID,
	)
	if err != nil {
		return fmt.Errorf("update contribution: %w", err)
	}
	return requireRow(res, circle.ErrNotFound)
}

func (s *Store) ContributionTotals(ctx context.Context, circleID string) (int, int, error) {
	var paid, total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN co.status = ? THEN 1 ELSE 0 END), 0), COUNT(*)
		 FROM contributions co JOIN cycles cy ON cy.id = co.cycle_id
		 WHERE cy.circle_id = ?`,
		string(circle.ContributionPaid), circleID).
		Scan(&paid, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("contribution totals: %w", err)
	}
	return paid, total, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
