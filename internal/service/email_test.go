package service

import (
	"context"
	"testing"

	"github.com/saproto/identity/internal/markdown"
	"github.com/saproto/identity/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordResetEmailTemplate(t *testing.T) {
	mail, err := passwordResetEmailTemplate(markdown.NewParser(), "Alice", "https://proto.example.org/password/reset/abc", "S.A. Proto")
	require.NoError(t, err)

	assert.Equal(t, "Your password reset request for S.A. Proto.", mail.subject)
	assert.Contains(t, mail.html, `href="https://proto.example.org/password/reset/abc"`)
	assert.Contains(t, mail.text, "Dear Alice,")
	assert.NotContains(t, mail.text, "subject:")
}

func TestEmailService_DevModeLogsInsteadOfSending(t *testing.T) {
	svc := NewEmailService("re_test", "webmaster@proto.example.org", "Webmaster", "https://proto.example.org", "S.A. Proto", true)

	err := svc.SendPasswordReset(context.Background(), &model.User{ID: 1, Name: "Alice Liddell", CallingName: "Alice", Email: "alice@example.org"}, "tok")
	assert.NoError(t, err)
}

func TestEmailService_ProductionWithoutKey(t *testing.T) {
	svc := NewEmailService("", "webmaster@proto.example.org", "Webmaster", "https://proto.example.org", "S.A. Proto", false)

	err := svc.Send(context.Background(), &Message{To: "alice@example.org", Subject: "x"})
	assert.Error(t, err)
}

func TestFormatAddress(t *testing.T) {
	assert.Equal(t, "board@example.org", formatAddress("", "board@example.org"))
	assert.Equal(t, `"The Board" <board@example.org>`, formatAddress("The Board", "board@example.org"))
}
