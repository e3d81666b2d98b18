package model

import (
	"time"
)

const (
	DestinationUsers     = "users"
	DestinationMembers   = "members"
	DestinationCommittee = "committee"
)

// Email is an admin-composed message waiting in the outbound queue.
// It moves from ready to sent exactly once.
type Email struct {
	ID            int64     `db:"id"`
	Subject       string    `db:"subject"`
	SenderAddress string    `db:"sender_address"` // local part, domain comes from config
	SenderName    string    `db:"sender_name"`
	Body          string    `db:"body"` // markdown with $name / $calling_name placeholders
	Destination   string    `db:"destination"`
	CommitteeID   *int64    `db:"committee_id"`
	Ready         bool      `db:"ready"`
	Sent          bool      `db:"sent"`
	SentTo        int       `db:"sent_to"`
	Time          time.Time `db:"time"`
	CreatedAt     time.Time `db:"created_at"`
}
