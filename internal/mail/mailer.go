// Package mail delivers transactional email. The auth boundary treats it as
// fire-and-forget: delivery failures are logged, never surfaced to clients.
package mail

import (
	"context"
	"errors"
)

var (
	ErrFailedToSend  = errors.New("mail: failed to send email")
	ErrInvalidConfig = errors.New("mail: invalid config")
)

// Sender sends a single email.
type Sender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

// SendEmailParams carries one outbound message.
type SendEmailParams struct {
	SendTo   string
	Subject  string
	BodyHTML string
	Tag      string
}

// Config holds email delivery configuration. Empty Postmark tokens select
// the development sender, which logs instead of sending.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"no-reply@tradepost.dev"`
}
