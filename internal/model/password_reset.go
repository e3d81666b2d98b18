package model

import (
	"time"
)

// PasswordReset is a single-use reset token. Rows are deleted when consumed
// and swept once ValidTo has passed.
type PasswordReset struct {
	Email   string    `db:"email"`
	Token   string    `db:"token"`
	ValidTo time.Time `db:"valid_to"`
}

func (p *PasswordReset) IsExpired(now time.Time) bool {
	return !now.Before(p.ValidTo)
}
