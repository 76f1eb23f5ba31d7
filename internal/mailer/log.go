package mailer

import (
	"context"

	"github.com/sirupsen/logrus"

	"smartinlet/internal/logs"
)

// LogSender пишет письмо в лог вместо отправки (mail.host не задан).
type LogSender struct{}

func (LogSender) SendTemplatedEmail(ctx context.Context, to, template string, params map[string]string) error {
	e, err := Render(to, template, params)
	if err != nil {
		return err
	}
	logs.Logger.WithFields(logrus.Fields{
		"to":       to,
		"template": template,
		"subject":  e.Subject,
	}).Info(e.TextBody)
	return nil
}
