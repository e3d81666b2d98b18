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

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrDuplicateEmail  = errors.New("email already exists")
	ErrAddressNotFound = errors.New("address not found")
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	ByID(ctx context.Context, id int64) (*model.User, error)
	ByEmail(ctx context.Context, email string) (*model.User, error)
	ByUsername(ctx context.Context, username string) (*model.User, error)
	Members(ctx context.Context) ([]*model.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	SetTOTPSecret(ctx context.Context, id int64, secret *string) error
	Address(ctx context.Context, userID int64) (*model.Address, error)
	SaveAddress(ctx context.Context, address *model.Address) error
}

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO users (name, calling_name, email, password_hash, phone, phone_visible, address_visible, website, utwente_username, tfa_totp_key, photo_file_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	err := r.db.GetContext(ctx, &user.ID, query,
		user.Name,
		user.CallingName,
		strings.ToLower(user.Email),
		user.PasswordHash,
		user.Phone,
		user.PhoneVisible,
		user.AddressVisible,
		user.Website,
		user.UtwenteUsername,
		user.TOTPSecret,
		user.PhotoFileID,
		user.CreatedAt,
	)
	if err != nil {
		// Check for unique constraint violation (works for both SQLite and PostgreSQL)
		errStr := err.Error()
		if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "duplicate key value") {
			return ErrDuplicateEmail
		}
		return err
	}

	return nil
}

func (r *userRepository) ByID(ctx context.Context, id int64) (*model.User, error) {
	user := &model.User{}
	query := `SELECT * FROM users WHERE id = $1 AND deleted_at IS NULL`

	err := r.db.GetContext(ctx, user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (r *userRepository) ByEmail(ctx context.Context, email string) (*model.User, error) {
	user := &model.User{}
	query := `SELECT * FROM users WHERE email = $1 AND deleted_at IS NULL`

	err := r.db.GetContext(ctx, user, query, strings.ToLower(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

// ByUsername resolves a member's directory login name to its user.
func (r *userRepository) ByUsername(ctx context.Context, username string) (*model.User, error) {
	user := &model.User{}
	query := `
		SELECT u.* FROM users u
		JOIN members m ON m.user_id = u.id
		WHERE m.proto_username = $1 AND u.deleted_at IS NULL
	`

	err := r.db.GetContext(ctx, user, query, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Members returns every active user that has a membership record, ordered by ID.
func (r *userRepository) Members(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	query := `
		SELECT u.* FROM users u
		JOIN members m ON m.user_id = u.id
		WHERE u.deleted_at IS NULL
		ORDER BY u.id
	`

	err := r.db.SelectContext(ctx, &users, query)
	if err != nil {
		return nil, err
	}

	return users, nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	query := `UPDATE users SET password_hash = $1 WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, passwordHash, id)
	if err != nil {
		return err
	}

	return expectOneRow(result, ErrUserNotFound)
}

func (r *userRepository) SetTOTPSecret(ctx context.Context, id int64, secret *string) error {
	query := `UPDATE users SET tfa_totp_key = $1 WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, secret, id)
	if err != nil {
		return err
	}

	return expectOneRow(result, ErrUserNotFound)
}

func (r *userRepository) Address(ctx context.Context, userID int64) (*model.Address, error) {
	address := &model.Address{}
	query := `SELECT * FROM addresses WHERE user_id = $1`

	err := r.db.GetContext(ctx, address, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAddressNotFound
	}
	if err != nil {
		return nil, err
	}

	return address, nil
}

func (r *userRepository) SaveAddress(ctx context.Context, address *model.Address) error {
	query := `
		INSERT INTO addresses (user_id, street, number, zipcode, city, country)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			street = excluded.street,
			number = excluded.number,
			zipcode = excluded.zipcode,
			city = excluded.city,
			country = excluded.country
	`
	_, err := r.db.ExecContext(ctx, query,
		address.UserID,
		address.Street,
		address.Number,
		address.Zipcode,
		address.City,
		address.Country,
	)
	return err
}

func expectOneRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
