package mail

import (
	"context"
	"fmt"
	"net/url"
)

const resetSubject = "Reset your password"

// ResetMailer composes and sends password-reset emails. The raw token goes
// into the emailed link only; it is never logged.
type ResetMailer struct {
	sender      Sender
	frontendURL string
}

// NewResetMailer creates a reset mailer. frontendURL is the base the
// reset-password page lives under.
func NewResetMailer(sender Sender, frontendURL string) *ResetMailer {
	return &ResetMailer{sender: sender, frontendURL: frontendURL}
}

// SendPasswordResetEmail emails the reset link for rawToken to the
// recipient.
func (m *ResetMailer) SendPasswordResetEmail(ctx context.Context, recipient, rawToken string) error {
	resetURL := fmt.Sprintf("%s/reset-password?token=%s", m.frontendURL, url.QueryEscape(rawToken))

	body := fmt.Sprintf(`<p>You requested a password reset.</p>
<p><a href="%s">Click here to reset your password</a></p>
<p>This link expires in 1 hour.</p>
<p>If you did not request this, you can safely ignore this email.</p>`, resetURL)

	return m.sender.SendEmail(ctx, SendEmailParams{
		SendTo:   recipient,
		Subject:  resetSubject,
		BodyHTML: body,
		Tag:      "password-reset",
	})
}
