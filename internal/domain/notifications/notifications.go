// Package notifications delivers purchase receipts and marketing email
package notifications

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"
)

// EmailNotification represents an email to send
type EmailNotification struct {
	To      string
	Subject string
	Body    string
	HTML    bool
}

// EmailProvider defines the interface for email providers
type EmailProvider interface {
	Send(ctx context.Context, notification EmailNotification) error
}

// Notifier sends email to viewers
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, body string) error
	SendHTML(ctx context.Context, to, subject, body string) error
}

// EmailNotifier implements Notifier on top of an EmailProvider
type EmailNotifier struct {
	email EmailProvider
}

// NewEmailNotifier creates a notifier; a nil provider drops every message
func NewEmailNotifier(email EmailProvider) *EmailNotifier {
	return &EmailNotifier{email: email}
}

func (n *EmailNotifier) SendEmail(ctx context.Context, to, subject, body string) error {
	return n.send(ctx, EmailNotification{To: to, Subject: subject, Body: body})
}

func (n *EmailNotifier) SendHTML(ctx context.Context, to, subject, body string) error {
	return n.send(ctx, EmailNotification{To: to, Subject: subject, Body: body, HTML: true})
}

func (n *EmailNotifier) send(ctx context.Context, msg EmailNotification) error {
	if n.email == nil {
		return nil
	}
	if strings.ContainsAny(msg.To, "\r\n") || strings.ContainsAny(msg.Subject, "\r\n") {
		return fmt.Errorf("invalid header value")
	}
	return n.email.Send(ctx, msg)
}

// SMTPConfig holds SMTP connection settings
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// SMTPProvider sends mail through an SMTP relay. Port 465 uses implicit TLS,
// anything else goes through smtp.SendMail (STARTTLS when offered).
type SMTPProvider struct {
	cfg    SMTPConfig
	logger zerolog.Logger
}

// NewSMTPProvider creates an SMTP email provider
func NewSMTPProvider(cfg SMTPConfig, logger zerolog.Logger) *SMTPProvider {
	return &SMTPProvider{
		cfg:    cfg,
		logger: logger.With().Str("component", "smtp").Logger(),
	}
}

func (p *SMTPProvider) Send(ctx context.Context, n EmailNotification) error {
	msg := buildMessage(p.cfg, n)

	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}
	addr := net.JoinHostPort(p.cfg.Host, p.cfg.Port)

	var err error
	if p.cfg.Port == "465" {
		err = p.sendTLS(addr, auth, n.To, msg)
	} else {
		err = smtp.SendMail(addr, auth, p.cfg.From, []string{n.To}, msg)
	}
	if err != nil {
		p.logger.Error().Err(err).Str("to", n.To).Msg("Failed to send email")
		return fmt.Errorf("SMTP error: %w", err)
	}

	p.logger.Info().Str("to", n.To).Str("subject", n.Subject).Msg("Email sent")
	return nil
}

func (p *SMTPProvider) sendTLS(addr string, auth smtp.Auth, to string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: p.cfg.Host})
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}
	if err := client.Mail(p.cfg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to add recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}
	return client.Quit()
}

func buildMessage(cfg SMTPConfig, n EmailNotification) []byte {
	from := cfg.From
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
	}
	contentType := "text/plain"
	if n.HTML {
		contentType = "text/html"
	}

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + n.To + "\r\n")
	b.WriteString("Subject: " + n.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: " + contentType + "; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(n.Body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// LogEmailProvider writes emails to the log instead of sending them
type LogEmailProvider struct {
	logger zerolog.Logger
}

// NewLogEmailProvider creates a development email provider
func NewLogEmailProvider(logger zerolog.Logger) *LogEmailProvider {
	return &LogEmailProvider{logger: logger.With().Str("component", "email").Logger()}
}

func (p *LogEmailProvider) Send(ctx context.Context, n EmailNotification) error {
	p.logger.Info().
		Str("to", n.To).
		Str("subject", n.Subject).
		Bool("html", n.HTML).
		Int("body_bytes", len(n.Body)).
		Msg("Email not sent (SMTP not configured)")
	return nil
}
