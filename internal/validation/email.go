package validation

import (
	"errors"
	"net/mail"
)

var ErrInvalidEmail = errors.New("invalid email address")

// ValidateEmail accepts a bare RFC 5322 address of at most 254 bytes. Forms
// with a display name such as "Alice <alice@example.org>" are rejected.
func ValidateEmail(email string) error {
	if email == "" || len(email) > 254 {
		return ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}
