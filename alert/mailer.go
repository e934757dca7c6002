package alert

import (
	"fmt"
	"log"

	"gopkg.in/gomail.v2"
)

// Mailer sends operator alert mail. A Mailer with an empty recipient is
// disabled: Send becomes a logged no-op, so callers never need to nil-check.
type Mailer struct {
	dialer  *gomail.Dialer
	from    string
	to      string
	subject string
}

func NewMailer(host string, port int, username, password, from, to string) *Mailer {
	return &Mailer{
		dialer:  gomail.NewDialer(host, port, username, password),
		from:    from,
		to:      to,
		subject: "[Guidepost]",
	}
}

func (m *Mailer) Enabled() bool {
	return m != nil && m.to != ""
}

func (m *Mailer) Send(subject, body string) error {
	if !m.Enabled() {
		log.Printf("Alert mail disabled, dropping: %s", subject)
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.to)
	msg.SetHeader("Subject", fmt.Sprintf("%s %s", m.subject, subject))
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send alert mail: %w", err)
	}
	return nil
}
