package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateNewPassword(t *testing.T) {
	tests := []struct {
		name         string
		password     string
		confirmation string
		want         error
	}{
		{"valid", "correct horse", "correct horse", nil},
		{"mismatch", "correct horse", "correct house", ErrPasswordMismatch},
		{"too short", "short", "short", ErrPasswordTooShort},
		{"exactly ten", "0123456789", "0123456789", nil},
		{"too long", strings.Repeat("a", 73), strings.Repeat("a", 73), ErrPasswordTooLong},
		{"multibyte over 72 bytes", strings.Repeat("é", 40), strings.Repeat("é", 40), ErrPasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNewPassword(tt.password, tt.confirmation)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("board@proto.utwente.nl"))
	assert.Error(t, ValidateEmail(""))
	assert.Error(t, ValidateEmail("not-an-address"))
	assert.Error(t, ValidateEmail(strings.Repeat("a", 250)+"@x.nl"))
	assert.ErrorIs(t, ValidateEmail("Board <board@proto.utwente.nl>"), ErrInvalidEmail)
}
