package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	e, err := Render("anna@example.com", TemplateConfirmRegistration, map[string]string{
		"login": "anna",
		"link":  "https://inlet.example.com/api/users/confirm-email/anna%40example.com?code=abc",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if e.Subject != "Confirm your registration" {
		t.Fatalf("subject = %q", e.Subject)
	}
	if !strings.Contains(e.HTMLBody, "Hello, anna!") || !strings.Contains(e.HTMLBody, "code=abc") {
		t.Fatalf("html body misses params:\n%s", e.HTMLBody)
	}
	if !strings.Contains(e.TextBody, "Follow the link") {
		t.Fatalf("text body = %q", e.TextBody)
	}
}

func TestRenderEscapesContent(t *testing.T) {
	e, err := Render("anna@example.com", TemplateSimple, map[string]string{
		"title":    "Maintenance",
		"username": "anna",
		"content":  "<script>alert(1)</script>",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if e.Subject != "Maintenance" {
		t.Fatalf("subject = %q", e.Subject)
	}
	if strings.Contains(e.HTMLBody, "<script>") {
		t.Fatalf("content not escaped")
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	if _, err := Render("a@example.com", "nope", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestSMTPSender(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "bot", Password: "pw", From: "noreply@example.com"})
	var gotAddr string
	var gotMsg []byte
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotMsg = addr, msg
		if a == nil {
			t.Error("auth not configured")
		}
		return nil
	}
	err := s.SendTemplatedEmail(context.Background(), "anna@example.com", TemplateResetPassword, map[string]string{"login": "anna", "link": "https://x"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Fatalf("addr = %q", gotAddr)
	}
	for _, want := range []string{"To: anna@example.com", "multipart/alternative", "text/html"} {
		if !strings.Contains(string(gotMsg), want) {
			t.Fatalf("message misses %q", want)
		}
	}

	s.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("connection refused") }
	err = s.SendTemplatedEmail(context.Background(), "anna@example.com", TemplateResetPassword, map[string]string{"login": "anna"})
	if !errors.Is(err, ErrSend) {
		t.Fatalf("want ErrSend, got %v", err)
	}
}
