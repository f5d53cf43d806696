package mailer

import (
	"context"
	"crypto/tls"
	"errors"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Message is an HTML email. A plain-text part is derived when it is sent.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

func (m Message) Validate() error {
	if m.To == "" {
		return errors.New("message has no recipient")
	}
	if m.Subject == "" {
		return errors.New("message has no subject")
	}
	return nil
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers through an SMTP relay.
type SMTPSender struct {
	From   string
	dialer *gomail.Dialer
}

func NewSMTPSender(host string, port int, user, pass, from string) *SMTPSender {
	d := gomail.NewDialer(host, port, user, pass)
	d.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	return &SMTPSender{From: from, dialer: d}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := Compose(s.From, msg)
	return s.dialer.DialAndSend(m)
}

// Compose builds the MIME message with a text/plain alternative.
func Compose(from string, msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", PlainText(msg.HTML))
	m.AddAlternative("text/html", msg.HTML)
	return m
}

// LogSender only logs. Used when SMTP is not configured.
type LogSender struct {
	Logger *zap.Logger
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.Logger.Info("email not delivered, SMTP is not configured",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	s.Logger.Debug("email body", zap.String("to", msg.To), zap.String("text", PlainText(msg.HTML)))
	return nil
}
