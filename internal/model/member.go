package model

import "time"

// Member is the membership record of a user. ProtoUsername is the login name
// used in the external directory.
type Member struct {
	ID            int64     `db:"id"`
	UserID        int64     `db:"user_id"`
	ProtoUsername string    `db:"proto_username"`
	CreatedAt     time.Time `db:"created_at"`
}
