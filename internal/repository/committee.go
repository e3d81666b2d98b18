package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/saproto/identity/internal/model"
)

var ErrCommitteeNotFound = errors.New("committee not found")

type CommitteeRepository interface {
	Create(ctx context.Context, committee *model.Committee) error
	ByID(ctx context.Context, id int64) (*model.Committee, error)
	All(ctx context.Context) ([]*model.Committee, error)
	AddUser(ctx context.Context, committeeID, userID int64) error
	UserIDs(ctx context.Context, committeeID int64) ([]int64, error)
}

type committeeRepository struct {
	db *sqlx.DB
}

func NewCommitteeRepository(db *sqlx.DB) CommitteeRepository {
	return &committeeRepository{db: db}
}

func (r *committeeRepository) Create(ctx context.Context, committee *model.Committee) error {
	if committee.CreatedAt.IsZero() {
		committee.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO committees (name, slug, created_at) VALUES ($1, $2, $3) RETURNING id`
	return r.db.GetContext(ctx, &committee.ID, query, committee.Name, committee.Slug, committee.CreatedAt)
}

func (r *committeeRepository) ByID(ctx context.Context, id int64) (*model.Committee, error) {
	committee := &model.Committee{}
	err := r.db.GetContext(ctx, committee, `SELECT * FROM committees WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCommitteeNotFound
	}
	if err != nil {
		return nil, err
	}
	return committee, nil
}

func (r *committeeRepository) All(ctx context.Context) ([]*model.Committee, error) {
	var committees []*model.Committee
	err := r.db.SelectContext(ctx, &committees, `SELECT * FROM committees ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return committees, nil
}

func (r *committeeRepository) AddUser(ctx context.Context, committeeID, userID int64) error {
	query := `INSERT INTO committee_users (committee_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, committeeID, userID)
	return err
}

// UserIDs lists the active users on a committee's roster.
func (r *committeeRepository) UserIDs(ctx context.Context, committeeID int64) ([]int64, error) {
	var ids []int64
	query := `
		SELECT cu.user_id FROM committee_users cu
		JOIN users u ON u.id = cu.user_id
		WHERE cu.committee_id = $1 AND u.deleted_at IS NULL
		ORDER BY cu.user_id
	`
	err := r.db.SelectContext(ctx, &ids, query, committeeID)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
