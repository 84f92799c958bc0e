package service

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/invoyq/invoyq-api/internal/models"
	"github.com/invoyq/invoyq-api/pkg/config"
)

// EmailService delivers transactional mail over SMTP. With no host configured
// it logs the message instead of sending, which keeps local development quiet.
type EmailService struct {
	config      config.SMTPConfig
	frontendURL string
	logger      *zap.Logger
}

// NewEmailService constructs an EmailService instance.
func NewEmailService(cfg config.SMTPConfig, frontendURL string, logger *zap.Logger) *EmailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailService{config: cfg, frontendURL: frontendURL, logger: logger}
}

// SendVerification emails the account-activation link.
func (s *EmailService) SendVerification(ctx context.Context, email, name, token string) error {
	link := strings.TrimRight(s.frontendURL, "/") + "/verify-email?token=" + token
	subject := "Verify your email address"
	body := fmt.Sprintf(
		"Hi %s,\r\n\r\nWelcome! Please confirm your email address by opening the link below:\r\n\r\n%s\r\n\r\nThe link expires in 24 hours. If you did not create an account, ignore this message.\r\n",
		displayName(name), link)
	return s.send(ctx, email, subject, body)
}

// SendInvoiceReminder emails a payment reminder for an outstanding invoice.
func (s *EmailService) SendInvoiceReminder(ctx context.Context, email, clientName string, invoice *models.Invoice, businessName string) error {
	subject := fmt.Sprintf("Payment reminder for invoice %s", invoice.Number)
	due := ""
	if invoice.DueDate != nil {
		due = fmt.Sprintf(" It was due on %s.", invoice.DueDate.Format("2006-01-02"))
	}
	body := fmt.Sprintf(
		"Hi %s,\r\n\r\nThis is a friendly reminder that invoice %s for %.2f %s is awaiting payment.%s\r\n\r\nBest regards,\r\n%s\r\n",
		displayName(clientName), invoice.Number, invoice.Total, invoice.Currency, due, businessName)
	return s.send(ctx, email, subject, body)
}

func (s *EmailService) send(ctx context.Context, to, subject, body string) error {
	if s.config.Host == "" {
		s.logger.Info("smtp not configured, skipping email",
			zap.String("to", to), zap.String("subject", subject))
		return nil
	}

	from := s.config.FromEmail
	headers := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n",
		s.config.FromName, from, to, subject)
	msg := []byte(headers + body)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	done := make(chan error, 1)
	go func() {
		done <- s.deliver(addr, from, to, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver speaks SMTP with STARTTLS when configured. net/smtp has no
// context support, so the caller bounds it with a timeout.
func (s *EmailService) deliver(addr, from, to string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if s.config.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.config.Host}); err != nil {
				return err
			}
		}
	}

	if s.config.User != "" {
		auth := smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(from); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func displayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "there"
	}
	return name
}
