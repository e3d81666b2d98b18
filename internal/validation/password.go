package validation

import (
	"errors"
)

var (
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordTooShort = errors.New("password must be at least 10 characters")
	ErrPasswordTooLong  = errors.New("password must not exceed 72 bytes")
)

// ValidatePassword validates password length
func ValidatePassword(password string) error {
	if len([]rune(password)) < 10 {
		return ErrPasswordTooShort
	}

	// Maximum length: 72 bytes (bcrypt limitation)
	// bcrypt silently truncates passwords longer than 72 bytes
	if len(password) > 72 {
		return ErrPasswordTooLong
	}

	return nil
}

// ValidateNewPassword checks the confirmation before the password itself.
func ValidateNewPassword(password, confirmation string) error {
	if password != confirmation {
		return ErrPasswordMismatch
	}
	return ValidatePassword(password)
}
