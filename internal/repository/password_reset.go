package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/saproto/identity/internal/model"
)

var ErrPasswordResetNotFound = errors.New("password reset token not found")

type PasswordResetRepository interface {
	Create(ctx context.Context, reset *model.PasswordReset) error
	ByToken(ctx context.Context, token string, now time.Time) (*model.PasswordReset, error)
	Consume(ctx context.Context, token string, now time.Time) (*model.PasswordReset, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type passwordResetRepository struct {
	db *sqlx.DB
}

func NewPasswordResetRepository(db *sqlx.DB) PasswordResetRepository {
	return &passwordResetRepository{db: db}
}

func (r *passwordResetRepository) Create(ctx context.Context, reset *model.PasswordReset) error {
	query := `INSERT INTO password_resets (email, token, valid_to) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, query, strings.ToLower(reset.Email), reset.Token, reset.ValidTo.UTC())
	return err
}

// ByToken returns the reset only while it is still valid.
func (r *passwordResetRepository) ByToken(ctx context.Context, token string, now time.Time) (*model.PasswordReset, error) {
	reset := &model.PasswordReset{}
	query := `SELECT * FROM password_resets WHERE token = $1 AND valid_to > $2`

	err := r.db.GetContext(ctx, reset, query, token, now.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPasswordResetNotFound
	}
	if err != nil {
		return nil, err
	}

	return reset, nil
}

// Consume deletes a valid token and returns it. Only one caller can consume a
// given token; every later call gets ErrPasswordResetNotFound.
func (r *passwordResetRepository) Consume(ctx context.Context, token string, now time.Time) (*model.PasswordReset, error) {
	reset := &model.PasswordReset{}
	query := `
		DELETE FROM password_resets
		WHERE token = $1
		AND valid_to > $2
		RETURNING email, token, valid_to
	`

	err := r.db.GetContext(ctx, reset, query, token, now.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPasswordResetNotFound
	}
	if err != nil {
		return nil, err
	}

	return reset, nil
}

func (r *passwordResetRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM password_resets WHERE valid_to <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
