package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/livestockmart/internal/config"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends one-time login codes by email.
type SMTPMailer struct {
	addr     string
	auth     smtp.Auth
	from     string
	sendMail sendMailFunc
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPMailer{
		addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		auth:     auth,
		from:     cfg.From,
		sendMail: smtp.SendMail,
	}
}

func otpMessage(from, to, code string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: Your LivestockMart login code\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString("Your one-time login code is " + code + ".\r\n")
	b.WriteString("It expires in 5 minutes. If you did not request it, ignore this email.\r\n")
	return []byte(b.String())
}

func (m *SMTPMailer) SendOTP(_ context.Context, to, code string) error {
	if strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("notify: invalid recipient %q", to)
	}
	if err := m.sendMail(m.addr, m.auth, m.from, []string{to}, otpMessage(m.from, to, code)); err != nil {
		return fmt.Errorf("notify: failed to send otp email: %w", err)
	}
	log.Debug().Str("smtp_addr", m.addr).Msg("notify: otp email sent")
	return nil
}
