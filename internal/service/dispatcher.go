package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/saproto/identity/internal/markdown"
	"github.com/saproto/identity/internal/model"
	"github.com/saproto/identity/internal/repository"
)

// DispatchReport summarises one run of the mail queue.
type DispatchReport struct {
	Due     int // rows selected
	Claimed int // rows this run flipped to sent
	Skipped int // rows claimed elsewhere or not sendable
	Sent    int // messages delivered
	Failed  int // messages that could not be delivered
}

// MailDispatcher sends admin-composed e-mails whose time has come. Each row
// is claimed atomically before sending, so it goes out at most once even with
// overlapping runs.
type MailDispatcher struct {
	emails      repository.EmailRepository
	committees  repository.CommitteeRepository
	files       *FileService
	mailer      Mailer
	markdown    *markdown.Parser
	emailDomain string
	now         func() time.Time
}

func NewMailDispatcher(
	emails repository.EmailRepository,
	committees repository.CommitteeRepository,
	files *FileService,
	mailer Mailer,
	emailDomain string,
) *MailDispatcher {
	return &MailDispatcher{
		emails:      emails,
		committees:  committees,
		files:       files,
		mailer:      mailer,
		markdown:    markdown.NewParser(),
		emailDomain: emailDomain,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (d *MailDispatcher) Run(ctx context.Context) (*DispatchReport, error) {
	report := &DispatchReport{}

	due, err := d.emails.Due(ctx, d.now())
	if err != nil {
		return report, fmt.Errorf("failed to list queued emails: %w", err)
	}
	report.Due = len(due)
	slog.Info("queued emails found", "count", len(due))

	for _, email := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		d.dispatch(ctx, email, report)
	}

	slog.Info("email dispatch finished",
		"due", report.Due,
		"claimed", report.Claimed,
		"skipped", report.Skipped,
		"sent", report.Sent,
		"failed", report.Failed,
	)
	return report, nil
}

func (d *MailDispatcher) dispatch(ctx context.Context, email *model.Email, report *DispatchReport) {
	log := slog.With("email_id", email.ID, "subject", email.Subject)

	recipients, err := d.emails.Recipients(ctx, email)
	if err != nil {
		log.Error("failed to resolve recipients", "error", err)
		report.Skipped++
		return
	}

	attachments, err := d.attachments(ctx, email)
	if err != nil {
		log.Error("failed to load attachments", "error", err)
		report.Skipped++
		return
	}

	claimed, err := d.emails.Claim(ctx, email.ID, len(recipients))
	if err != nil {
		log.Error("failed to claim email", "error", err)
		report.Skipped++
		return
	}
	if !claimed {
		log.Info("email already claimed by another run")
		report.Skipped++
		return
	}
	report.Claimed++

	footer := d.destinationFooter(ctx, email)
	from := email.SenderAddress + "@" + d.emailDomain

	for _, recipient := range recipients {
		body := personalise(email.Body, recipient) + footer

		html, err := d.markdown.Parse([]byte(body))
		if err != nil {
			log.Error("failed to render email body", "user_id", recipient.ID, "error", err)
			report.Failed++
			continue
		}

		err = d.mailer.Send(ctx, &Message{
			FromAddress: from,
			FromName:    email.SenderName,
			To:          recipient.Email,
			ToName:      recipient.Name,
			Subject:     email.Subject,
			HTML:        string(html),
			Text:        body,
			Attachments: attachments,
		})
		if err != nil {
			log.Error("failed to send email", "user_id", recipient.ID, "error", err)
			report.Failed++
			continue
		}
		report.Sent++
	}

	log.Info("email sent", "recipients", len(recipients))
}

func (d *MailDispatcher) attachments(ctx context.Context, email *model.Email) ([]Attachment, error) {
	files, err := d.emails.Attachments(ctx, email.ID)
	if err != nil {
		return nil, err
	}

	attachments := make([]Attachment, 0, len(files))
	for _, f := range files {
		content, err := d.files.Content(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("attachment %d: %w", f.ID, err)
		}
		attachments = append(attachments, Attachment{
			Filename:    f.OriginalFilename,
			ContentType: f.Mime,
			Content:     content,
		})
	}
	return attachments, nil
}

func (d *MailDispatcher) destinationFooter(ctx context.Context, email *model.Email) string {
	var audience string
	switch email.Destination {
	case model.DestinationUsers:
		audience = "all users"
	case model.DestinationMembers:
		audience = "all members"
	case model.DestinationCommittee:
		audience = "the members of a committee"
		if email.CommitteeID != nil {
			committee, err := d.committees.ByID(ctx, *email.CommitteeID)
			if err == nil {
				audience = "the members of the " + committee.Name
			}
		}
	default:
		return ""
	}
	return "\n\n---\n\n*This e-mail was sent to " + audience + ".*\n"
}

// personalise fills in the recipient placeholders of a queued body.
func personalise(body string, user *model.User) string {
	return strings.NewReplacer(
		"$calling_name", user.CallingName,
		"$name", user.Name,
	).Replace(body)
}
