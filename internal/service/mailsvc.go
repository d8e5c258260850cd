package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"taskhive/internal/email"
)

type MailSettings struct {
	Host      string
	Port      int
	Username  string
	Password  string
	TLSMode   string
	FromName  string
	FromEmail string
}

// MailService renders and sends the verification and password-reset mails.
// Callers treat delivery as best-effort; errors are reported, never fatal.
type MailService struct {
	Settings  MailSettings
	PublicURL *url.URL

	// Send is swappable for tests; defaults to email.SendSMTP.
	Send func(email.SMTPSettings, email.Message) error
}

func (s *MailService) SendVerificationEmail(ctx context.Context, toEmail, username, rawToken string) error {
	link := s.link("/api/v1/auth/verify-email/" + url.PathEscape(rawToken))
	body := strings.Join([]string{
		"Hi " + username + ",",
		"",
		"Welcome aboard! Please confirm your email address using this link:",
		link,
		"",
		"The link is valid for 20 minutes.",
		"",
		"Need help, or have questions? Just reply to this email.",
	}, "\n")

	return s.send(ctx, toEmail, "Verify your email", body)
}

func (s *MailService) SendPasswordResetEmail(ctx context.Context, toEmail, username, rawToken string) error {
	link := s.link("/api/v1/auth/reset-password/" + url.PathEscape(rawToken))
	body := strings.Join([]string{
		"Hi " + username + ",",
		"",
		"You requested a password reset. Use this link to choose a new password:",
		link,
		"",
		"The link is valid for 20 minutes. If you did not request this, you can ignore this email.",
	}, "\n")

	return s.send(ctx, toEmail, "Reset your password", body)
}

func (s *MailService) send(ctx context.Context, toEmail, subject, body string) error {
	if s.Settings.Host == "" {
		return fmt.Errorf("smtp not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sendFn := s.Send
	if sendFn == nil {
		sendFn = email.SendSMTP
	}
	return sendFn(email.SMTPSettings{
		Host:     s.Settings.Host,
		Port:     s.Settings.Port,
		Username: s.Settings.Username,
		Password: s.Settings.Password,
		TLSMode:  s.Settings.TLSMode,
	}, email.Message{
		FromName:  s.Settings.FromName,
		FromEmail: s.Settings.FromEmail,
		ToEmail:   toEmail,
		Subject:   subject,
		TextBody:  body,
	})
}

func (s *MailService) link(path string) string {
	if s.PublicURL != nil {
		u := *s.PublicURL
		u.Path = path
		return u.String()
	}
	return "http://localhost:8080" + path
}
