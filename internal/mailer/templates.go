package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("mail").Option("missingkey=zero").ParseFS(templateFS, "templates/*.html"))

var subjects = map[string]string{
	TemplateConfirmRegistration: "Confirm your registration",
	TemplateChangeEmail:         "Confirm your new email",
	TemplateDeleteAccount:       "Confirm account deletion",
	TemplateResetPassword:       "Password reset",
}

// Render собирает письмо. Для simple_email тема берётся из params["title"].
func Render(to, name string, params map[string]string) (Email, error) {
	t := pages.Lookup(name + ".html")
	if t == nil {
		return Email{}, fmt.Errorf("unknown email template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, params); err != nil {
		return Email{}, fmt.Errorf("render %s: %w", name, err)
	}
	subject := subjects[name]
	if name == TemplateSimple {
		subject = params["title"]
	}
	return Email{
		To:       to,
		Subject:  subject,
		TextBody: textBody(params),
		HTMLBody: buf.String(),
	}, nil
}

// textBody: простая текстовая часть для клиентов без HTML.
func textBody(params map[string]string) string {
	var b strings.Builder
	if u := params["login"]; u != "" {
		fmt.Fprintf(&b, "Hello, %s!\n\n", u)
	} else if u := params["username"]; u != "" {
		fmt.Fprintf(&b, "Hello, %s!\n\n", u)
	}
	if c := params["content"]; c != "" {
		b.WriteString(c + "\n")
	}
	if l := params["link"]; l != "" {
		b.WriteString("Follow the link: " + l + "\n")
		b.WriteString("The link is valid for 12 hours.\n")
	}
	return b.String()
}
