package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/bchapman/wednesday/internal/config"
	"github.com/bchapman/wednesday/internal/models"
)

// Mailer sends the outbound emails: the weekly pull list summary and the
// one-time login and password reset links.
type Mailer interface {
	SendPullListSummary(ctx context.Context, weekID string, books []models.WeeklyBook) error
	SendMagicLink(ctx context.Context, to string, link string, expiresIn time.Duration) error
	SendPasswordReset(ctx context.Context, to string, link string, expiresIn time.Duration) error
}

// NoopMailer is used when SMTP is not configured; every send quietly
// succeeds.
type NoopMailer struct{}

func (NoopMailer) SendPullListSummary(context.Context, string, []models.WeeklyBook) error {
	return nil
}

func (NoopMailer) SendMagicLink(context.Context, string, string, time.Duration) error {
	return nil
}

func (NoopMailer) SendPasswordReset(context.Context, string, string, time.Duration) error {
	return nil
}

type SMTPMailer struct {
	client  *mail.Client
	from    string
	summary string
}

// NewSMTPMailer builds a mailer for the given SMTP settings. summaryTo is
// the recipient of the weekly summary.
func NewSMTPMailer(cfg config.SMTPConfig, summaryTo string) (*SMTPMailer, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("smtp host and from address are required")
	}

	options := []mail.Option{
		mail.WithPort(cfg.Port),
	}
	if cfg.Username != "" {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	if cfg.StartTLS {
		options = append(options, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		options = append(options, mail.WithTLSPolicy(mail.NoTLS))
	}

	client, err := mail.NewClient(cfg.Host, options...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	return &SMTPMailer{
		client:  client,
		from:    cfg.From,
		summary: summaryTo,
	}, nil
}

func (m *SMTPMailer) SendPullListSummary(ctx context.Context, weekID string, books []models.WeeklyBook) error {
	if m.summary == "" {
		return nil
	}

	subject := fmt.Sprintf("New comics this week (%s): %d issue(s)", weekID, len(books))

	var body strings.Builder
	fmt.Fprintf(&body, "Your pull list for week %s is ready.\n\n", weekID)
	for _, book := range books {
		line := book.SeriesName
		if book.BookNumber != nil {
			line += " #" + *book.BookNumber
		}
		if book.BookTitle != nil {
			line += " - " + *book.BookTitle
		}
		fmt.Fprintf(&body, "  - %s\n", line)
	}
	body.WriteString("\nHappy reading!\n")

	return m.send(ctx, m.summary, subject, body.String())
}

func (m *SMTPMailer) SendMagicLink(ctx context.Context, to string, link string, expiresIn time.Duration) error {
	body := fmt.Sprintf(
		"Click the link below to sign in:\n\n%s\n\nThe link expires in %d minutes and can be used once.\nIf you did not request it, ignore this email.\n",
		link, int(expiresIn.Minutes()))
	return m.send(ctx, to, "Your sign-in link", body)
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to string, link string, expiresIn time.Duration) error {
	body := fmt.Sprintf(
		"Click the link below to reset your password:\n\n%s\n\nThe link expires in %d minutes and can be used once.\nIf you did not request it, ignore this email.\n",
		link, int(expiresIn.Minutes()))
	return m.send(ctx, to, "Reset your password", body)
}

func (m *SMTPMailer) send(ctx context.Context, to string, subject string, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("set mail sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set mail recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}
