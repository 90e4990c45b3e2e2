// Package mail implements the notification gateway: out-of-band delivery of
// verification and reset codes. Delivery is best-effort from the caller's
// perspective; a failure never rolls back committed state.
package mail

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// Mailer sends a single HTML message.
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

// SMTPMailer delivers mail through an SMTP relay via gomail.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (m *SMTPMailer) Send(to, subject, htmlBody string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}
