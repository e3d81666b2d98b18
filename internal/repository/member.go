package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/saproto/identity/internal/model"
)

var ErrMemberNotFound = errors.New("member not found")

type MemberRepository interface {
	Create(ctx context.Context, member *model.Member) error
	ByUserID(ctx context.Context, userID int64) (*model.Member, error)
	All(ctx context.Context) ([]*model.Member, error)
}

type memberRepository struct {
	db *sqlx.DB
}

func NewMemberRepository(db *sqlx.DB) MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) Create(ctx context.Context, member *model.Member) error {
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO members (user_id, proto_username, created_at) VALUES ($1, $2, $3) RETURNING id`
	return r.db.GetContext(ctx, &member.ID, query, member.UserID, member.ProtoUsername, member.CreatedAt)
}

func (r *memberRepository) ByUserID(ctx context.Context, userID int64) (*model.Member, error) {
	member := &model.Member{}
	query := `SELECT * FROM members WHERE user_id = $1`

	err := r.db.GetContext(ctx, member, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}

	return member, nil
}

func (r *memberRepository) All(ctx context.Context) ([]*model.Member, error) {
	var members []*model.Member
	err := r.db.SelectContext(ctx, &members, `SELECT * FROM members ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	return members, nil
}
