package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/saproto/identity/internal/model"
)

var (
	ErrEmailNotFound       = errors.New("email not found")
	ErrUnknownDestination  = errors.New("unknown email destination")
	ErrDestinationNoTarget = errors.New("committee destination without committee")
)

type EmailRepository interface {
	Create(ctx context.Context, email *model.Email) error
	ByID(ctx context.Context, id int64) (*model.Email, error)
	Due(ctx context.Context, now time.Time) ([]*model.Email, error)
	Claim(ctx context.Context, id int64, sentTo int) (bool, error)
	Recipients(ctx context.Context, email *model.Email) ([]*model.User, error)
	AddAttachment(ctx context.Context, emailID, fileID int64) error
	Attachments(ctx context.Context, emailID int64) ([]*model.File, error)
}

type emailRepository struct {
	db *sqlx.DB
}

func NewEmailRepository(db *sqlx.DB) EmailRepository {
	return &emailRepository{db: db}
}

func (r *emailRepository) Create(ctx context.Context, email *model.Email) error {
	if email.CreatedAt.IsZero() {
		email.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO emails (subject, sender_address, sender_name, body, destination, committee_id, ready, sent, sent_to, time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	return r.db.GetContext(ctx, &email.ID, query,
		email.Subject,
		email.SenderAddress,
		email.SenderName,
		email.Body,
		email.Destination,
		email.CommitteeID,
		email.Ready,
		email.Sent,
		email.SentTo,
		email.Time.UTC(),
		email.CreatedAt,
	)
}

func (r *emailRepository) ByID(ctx context.Context, id int64) (*model.Email, error) {
	email := &model.Email{}
	err := r.db.GetContext(ctx, email, `SELECT * FROM emails WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEmailNotFound
	}
	if err != nil {
		return nil, err
	}
	return email, nil
}

// Due lists queue rows that are ready, unsent and scheduled before now.
func (r *emailRepository) Due(ctx context.Context, now time.Time) ([]*model.Email, error) {
	var emails []*model.Email
	query := `
		SELECT * FROM emails
		WHERE ready = $1 AND sent = $2 AND time < $3
		ORDER BY time, id
	`
	err := r.db.SelectContext(ctx, &emails, query, true, false, now.UTC())
	if err != nil {
		return nil, err
	}
	return emails, nil
}

// Claim flips a queue row to sent and records the recipient count. It reports
// false when another run already claimed the row.
func (r *emailRepository) Claim(ctx context.Context, id int64, sentTo int) (bool, error) {
	query := `
		UPDATE emails
		SET ready = $1, sent = $2, sent_to = $3
		WHERE id = $4 AND ready = $5 AND sent = $6
	`
	result, err := r.db.ExecContext(ctx, query, false, true, sentTo, id, true, false)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *emailRepository) Recipients(ctx context.Context, email *model.Email) ([]*model.User, error) {
	var users []*model.User
	var err error

	switch email.Destination {
	case model.DestinationUsers:
		err = r.db.SelectContext(ctx, &users, `SELECT * FROM users WHERE deleted_at IS NULL ORDER BY id`)
	case model.DestinationMembers:
		err = r.db.SelectContext(ctx, &users, `
			SELECT u.* FROM users u
			JOIN members m ON m.user_id = u.id
			WHERE u.deleted_at IS NULL
			ORDER BY u.id
		`)
	case model.DestinationCommittee:
		if email.CommitteeID == nil {
			return nil, ErrDestinationNoTarget
		}
		err = r.db.SelectContext(ctx, &users, `
			SELECT u.* FROM users u
			JOIN committee_users cu ON cu.user_id = u.id
			WHERE cu.committee_id = $1 AND u.deleted_at IS NULL
			ORDER BY u.id
		`, *email.CommitteeID)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDestination, email.Destination)
	}
	if err != nil {
		return nil, err
	}

	return users, nil
}

func (r *emailRepository) AddAttachment(ctx context.Context, emailID, fileID int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO email_attachments (email_id, file_id) VALUES ($1, $2)`, emailID, fileID)
	return err
}

func (r *emailRepository) Attachments(ctx context.Context, emailID int64) ([]*model.File, error) {
	var files []*model.File
	query := `
		SELECT f.* FROM files f
		JOIN email_attachments ea ON ea.file_id = f.id
		WHERE ea.email_id = $1
		ORDER BY f.id
	`
	err := r.db.SelectContext(ctx, &files, query, emailID)
	if err != nil {
		return nil, err
	}
	return files, nil
}
