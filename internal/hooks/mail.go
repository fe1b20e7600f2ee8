package hooks

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/danmuck/magicctl/internal/config"
)

var ErrMailConfig = errors.New("hooks: mail not configured")

// SMTPMailer delivers plain-text mail through one relay.
type SMTPMailer struct {
	Addr string
	From string
	Auth smtp.Auth

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg config.Mail) (*SMTPMailer, error) {
	if cfg.SMTPAddr == "" || cfg.From == "" {
		return nil, ErrMailConfig
	}
	m := &SMTPMailer{Addr: cfg.SMTPAddr, From: cfg.From, send: smtp.SendMail}
	if cfg.Username != "" {
		host, _, err := net.SplitHostPort(cfg.SMTPAddr)
		if err != nil {
			return nil, fmt.Errorf("%w: smtp_addr %q: %v", ErrMailConfig, cfg.SMTPAddr, err)
		}
		m.Auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return m, nil
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("hooks: invalid mail header for %q", to)
	}
	var msg strings.Builder
	msg.WriteString("From: " + m.From + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	send := m.send
	if send == nil {
		send = smtp.SendMail
	}
	if err := send(m.Addr, m.Auth, m.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}
