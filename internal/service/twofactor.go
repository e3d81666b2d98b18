package service

import (
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TwoFactor checks time-based one-time passwords (RFC 6238) against a
// user's shared secret.
type TwoFactor struct {
	now func() time.Time
}

func NewTwoFactor() *TwoFactor {
	return &TwoFactor{now: time.Now}
}

// Validate accepts codes from the current 30 second step and one step either
// side of it.
func (t *TwoFactor) Validate(secret, code string) bool {
	code = strings.ReplaceAll(strings.TrimSpace(code), " ", "")
	ok, err := totp.ValidateCustom(code, secret, t.now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
