package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
	"github.com/saproto/identity/internal/markdown"
	"github.com/saproto/identity/internal/model"
)

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

type Message struct {
	FromAddress string
	FromName    string
	To          string
	ToName      string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Mailer delivers a single message.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

type EmailService struct {
	client    *resend.Client
	fromEmail string
	fromName  string
	isDev     bool
	appURL    string
	appName   string
	markdown  *markdown.Parser
}

func NewEmailService(apiKey, fromEmail, fromName, appURL, appName string, isDev bool) *EmailService {
	var client *resend.Client
	if apiKey != "" && !isDev {
		client = resend.NewClient(apiKey)
	}

	return &EmailService{
		client:    client,
		fromEmail: fromEmail,
		fromName:  fromName,
		isDev:     isDev,
		appURL:    appURL,
		appName:   appName,
		markdown:  markdown.NewParser(),
	}
}

func (s *EmailService) Send(ctx context.Context, msg *Message) error {
	if s.isDev {
		slog.Info("email sent (dev mode)",
			"to", msg.To,
			"from", msg.FromAddress,
			"subject", msg.Subject,
			"attachments", len(msg.Attachments),
		)
		return nil
	}

	if s.client == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}

	params := &resend.SendEmailRequest{
		From:    formatAddress(msg.FromName, msg.FromAddress),
		To:      []string{formatAddress(msg.ToName, msg.To)},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	}
	for _, a := range msg.Attachments {
		params.Attachments = append(params.Attachments, &resend.Attachment{
			Content:     a.Content,
			Filename:    a.Filename,
			ContentType: a.ContentType,
		})
	}

	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *EmailService) SendPasswordReset(ctx context.Context, user *model.User, token string) error {
	resetURL := fmt.Sprintf("%s/password/reset/%s", s.appURL, token)
	mail, err := passwordResetEmailTemplate(s.markdown, user.CallingName, resetURL, s.appName)
	if err != nil {
		return err
	}

	err = s.Send(ctx, &Message{
		FromAddress: s.fromEmail,
		FromName:    s.fromName,
		To:          user.Email,
		ToName:      user.Name,
		Subject:     mail.subject,
		HTML:        mail.html,
		Text:        mail.text,
	})
	if err == nil {
		slog.Info("email sent", "type", "password_reset", "user_id", user.ID)
	}
	return err
}

func formatAddress(name, address string) string {
	if name == "" {
		return address
	}
	return fmt.Sprintf("%q <%s>", name, address)
}
