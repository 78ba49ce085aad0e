package notify

import (
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPSender delivers mail over plain SMTP. Auth is skipped when no user is
// configured, which matches local MailHog-style relays.
type SMTPSender struct {
	Host string
	Port string
	User string
	Pass string
	From string
}

// Send implements common.EmailSender.
func (s SMTPSender) Send(to, subject, body string) error {
	if strings.TrimSpace(s.Host) == "" {
		return fmt.Errorf("smtp host not configured")
	}
	addr := s.Host + ":" + s.Port

	var auth smtp.Auth
	if s.User != "" {
		auth = smtp.PlainAuth("", s.User, s.Pass, s.Host)
	}

	msg := "From: " + s.From + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n\r\n" +
		body

	if err := smtp.SendMail(addr, auth, s.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
