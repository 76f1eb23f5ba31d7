package server

import (
	"context"
	"time"

	"smartinlet/config"
	"smartinlet/internal/logs"
	"smartinlet/internal/mailer"
)

// newMailSender: SMTP, если задан mail.host, иначе письма только пишутся в лог.
func newMailSender(cfg *config.Config) mailer.Sender {
	if cfg.Mail.Host == "" {
		logs.Logger.Warn("mail.host is empty: emails will be logged, not sent")
		return mailer.LogSender{}
	}
	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
	})
}

type tokenCleaner interface {
	CleanupTokens(ctx context.Context) (int64, error)
}

// runTokenCleanup периодически удаляет просроченные коды из писем.
func runTokenCleanup(ctx context.Context, c tokenCleaner, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := c.CleanupTokens(ctx)
			if err != nil {
				logs.Logger.WithError(err).Warn("token cleanup failed")
				continue
			}
			if n > 0 {
				logs.Logger.WithField("removed", n).Info("expired tokens removed")
			}
		}
	}
}
