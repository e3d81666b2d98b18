package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SQLLocker keeps leases as rows in the job_leases table. A row can only be
// taken over once its expiry has passed.
type SQLLocker struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQLLocker(db *sqlx.DB) *SQLLocker {
	return &SQLLocker{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (l *SQLLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	holder := uuid.New().String()
	now := l.now()

	query := `
		INSERT INTO job_leases (name, holder, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET holder = excluded.holder, expires_at = excluded.expires_at
		WHERE job_leases.expires_at < $4
	`
	result, err := l.db.ExecContext(ctx, query, name, holder, now.Add(ttl), now)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %q: %w", name, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %q: %w", name, err)
	}
	if rows == 0 {
		return nil, ErrLocked
	}

	return &sqlLease{db: l.db, now: l.now, name: name, holder: holder}, nil
}

type sqlLease struct {
	db     *sqlx.DB
	now    func() time.Time
	name   string
	holder string
}

func (s *sqlLease) Name() string {
	return s.name
}

func (s *sqlLease) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE job_leases SET expires_at = $1 WHERE name = $2 AND holder = $3`,
		s.now().Add(ttl), s.name, s.holder)
	if err != nil {
		return fmt.Errorf("failed to extend lease %q: %w", s.name, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to extend lease %q: %w", s.name, err)
	}
	if rows == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Release only deletes the row while this lease still owns it.
func (s *sqlLease) Release(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM job_leases WHERE name = $1 AND holder = $2`, s.name, s.holder)
	if err != nil {
		return fmt.Errorf("failed to release lease %q: %w", s.name, err)
	}
	return nil
}
