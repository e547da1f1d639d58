// Package mail sends the marketplace's transactional emails.  Services
// depend on the Sender interface; main wires either the SMTP sender or, when
// no SMTP host is configured, a sender that only logs.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Message is one rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Render executes the named template with data.
func Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Welcome renders the registration email.
func Welcome(to, name string) (Message, error) {
	body, err := Render("welcome.html", struct{ Name string }{name})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Welcome to BookSwap", HTML: body}, nil
}

// ResetCode renders the password reset email carrying the one-time code.
func ResetCode(to, name, code string, validMinutes int) (Message, error) {
	body, err := Render("reset_code.html", struct {
		Name    string
		Code    string
		Minutes int
	}{name, code, validMinutes})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Your BookSwap password reset code", HTML: body}, nil
}

// ExchangeNotice renders the notification sent to the other party of an
// exchange.
func ExchangeNotice(to, name, subject, text, bookTitle string) (Message, error) {
	body, err := Render("exchange_notice.html", struct {
		Name      string
		Text      string
		BookTitle string
	}{name, text, bookTitle})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: subject, HTML: body}, nil
}

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPSender returns a sender for cfg.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// Send dials the relay and delivers msg.  gomail has no context support, so
// ctx is only checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// LogSender logs messages instead of delivering them.
type LogSender struct{ log *zap.Logger }

func NewLogSender(log *zap.Logger) *LogSender { return &LogSender{log: log} }

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info("mail not sent (no smtp host configured)",
		zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}
