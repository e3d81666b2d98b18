package model

import (
	"strings"
	"time"
)

type User struct {
	ID              int64      `db:"id"`
	Name            string     `db:"name"`
	CallingName     string     `db:"calling_name"`
	Email           string     `db:"email"`
	PasswordHash    *string    `db:"password_hash"`
	Phone           *string    `db:"phone"`
	PhoneVisible    bool       `db:"phone_visible"`
	AddressVisible  bool       `db:"address_visible"`
	Website         *string    `db:"website"`
	UtwenteUsername *string    `db:"utwente_username"`
	TOTPSecret      *string    `db:"tfa_totp_key"`
	PhotoFileID     *int64     `db:"photo_file_id"`
	CreatedAt       time.Time  `db:"created_at"`
	DeletedAt       *time.Time `db:"deleted_at"`
}

func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

func (u *User) HasTwoFactor() bool {
	return u.TOTPSecret != nil && *u.TOTPSecret != ""
}

// GivenName is the first space-delimited token of the full name.
func (u *User) GivenName() string {
	given, _ := splitName(u.Name)
	return given
}

// Surname is the full name with the first token stripped.
func (u *User) Surname() string {
	_, surname := splitName(u.Name)
	return surname
}

func splitName(name string) (string, string) {
	given, rest, _ := strings.Cut(strings.TrimSpace(name), " ")
	return given, strings.TrimSpace(rest)
}

type Address struct {
	UserID  int64  `db:"user_id"`
	Street  string `db:"street"`
	Number  string `db:"number"`
	Zipcode string `db:"zipcode"`
	City    string `db:"city"`
	Country string `db:"country"`
}
