package mailer

import (
	"context"
	"strings"

	auth "github.com/goliatone/go-auth-invite"
	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/gomail.v2"
)

// Sender performs the actual delivery of a mail task.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender delivers HTML mail through an SMTP relay.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	dial func(*gomail.Message) error
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	s := &SMTPSender{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
	}
	s.dial = func(m *gomail.Message) error {
		return gomail.NewDialer(s.Host, s.Port, s.Username, s.Password).DialAndSend(m)
	}
	return s
}

// Message builds the gomail message for a delivery.
func (s *SMTPSender) Message(to, subject, body string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)

	contentType := "text/plain"
	if strings.HasPrefix(strings.TrimSpace(body), "<") {
		contentType = "text/html"
	}
	m.SetBody(contentType, body)
	return m
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if s.Host == "" || s.From == "" {
		return auth.ErrNotifierUnavailable.Clone().WithMetadata(map[string]any{
			"reason": "smtp host or sender address missing",
		})
	}
	if strings.TrimSpace(to) == "" {
		return goerrors.New("empty recipient", goerrors.CategoryBadInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.dial(s.Message(to, subject, body)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send email")
	}
	return nil
}

// LogSender only logs deliveries. It is used when no SMTP relay is
// configured.
type LogSender struct {
	Logger auth.Logger
}

func (s LogSender) Send(_ context.Context, to, subject, body string) error {
	logger := s.Logger
	if logger == nil {
		logger = auth.NopLogger()
	}
	logger.Info("email delivery skipped", "to", to, "subject", subject, "body_size", len(body))
	return nil
}
