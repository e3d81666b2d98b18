package service

import (
	"bytes"
	"fmt"

	"github.com/saproto/identity/internal/markdown"
)

type renderedMail struct {
	subject string
	html    string
	text    string
}

const passwordResetTemplate = `---
subject: Your password reset request for %[3]s.
---
Dear %[1]s,

We have received a request to reset the password of your %[3]s account.
You can choose a new password here:

[%[2]s](%[2]s)

This link expires in one hour and can only be used once.

If you did not request this, you can safely ignore this e-mail. Your password will not be changed.

Kind regards,
The Have You Tried Turning It Off And On Again committee
`

func passwordResetEmailTemplate(p *markdown.Parser, callingName, resetURL, appName string) (*renderedMail, error) {
	return renderTemplate(p, fmt.Sprintf(passwordResetTemplate, callingName, resetURL, appName))
}

// renderTemplate turns a markdown template with a subject in its front matter
// into a subject, an HTML body and a plain-text body.
func renderTemplate(p *markdown.Parser, source string) (*renderedMail, error) {
	html, meta, err := p.ParseTemplate([]byte(source))
	if err != nil {
		return nil, fmt.Errorf("failed to render email template: %w", err)
	}

	if meta.Subject == "" {
		return nil, fmt.Errorf("email template has no subject")
	}

	return &renderedMail{
		subject: meta.Subject,
		html:    string(html),
		text:    string(stripFrontmatter([]byte(source))),
	}, nil
}

func stripFrontmatter(source []byte) []byte {
	const fence = "---\n"
	if !bytes.HasPrefix(source, []byte(fence)) {
		return source
	}
	rest := source[len(fence):]
	end := bytes.Index(rest, []byte("\n"+fence))
	if end < 0 {
		return source
	}
	return bytes.TrimLeft(rest[end+len(fence)+1:], "\n")
}
