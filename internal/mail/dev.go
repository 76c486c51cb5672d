package mail

import (
	"context"
	"io"
	"log/slog"
)

// DevSender logs outbound mail instead of sending it. Bodies carry reset
// tokens, so only recipient, subject, and tag are logged.
type DevSender struct {
	log *slog.Logger
}

// NewDevSender creates a development sender.
func NewDevSender(log *slog.Logger) *DevSender {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DevSender{log: log}
}

func (d *DevSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	d.log.InfoContext(ctx, "dev mailer: email suppressed",
		slog.String("send_to", params.SendTo),
		slog.String("subject", params.Subject),
		slog.String("tag", params.Tag),
	)
	return nil
}
