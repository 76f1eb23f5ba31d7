// Package mailer — шаблонные письма пользователям.
package mailer

import (
	"context"
	"errors"
)

// Имена шаблонов.
const (
	TemplateConfirmRegistration = "registration_confirm"
	TemplateChangeEmail         = "change_email_confirm"
	TemplateDeleteAccount       = "delete_account_confirm"
	TemplateResetPassword       = "reset_password_permission"
	TemplateSimple              = "simple_email"
)

// ErrSend оборачивает любую ошибку доставки.
var ErrSend = errors.New("send email")

// Sender отправляет письмо по шаблону с параметрами.
type Sender interface {
	SendTemplatedEmail(ctx context.Context, to, template string, params map[string]string) error
}

// Email: готовое письмо.
type Email struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}
