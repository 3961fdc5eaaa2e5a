// Package mailer provides authcore.EmailSender implementations: an SMTP
// sender on gomail for deployments and a log sender for development.
package mailer

import (
	"context"
	"fmt"
	"log"

	"gopkg.in/gomail.v2"

	authcore "github.com/nexusscholar/authcore"
)

// SMTPSender sends verification and reset codes over SMTP.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPSender builds an SMTPSender. Credentials may be empty for
// unauthenticated relays.
func NewSMTPSender(host string, port int, user, password, from string) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, user, password),
		from:   from,
	}
}

var _ authcore.EmailSender = (*SMTPSender)(nil)

// Send mails the code for the given template kind. gomail has no context
// support; ctx is accepted for interface compatibility and cancellation is
// left to SMTP timeouts.
func (s *SMTPSender) Send(_ context.Context, to string, kind authcore.EmailKind, code string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subjectFor(kind))
	m.SetBody("text/html", bodyFor(kind, code))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send %s email: %w", kind, err)
	}
	return nil
}

func subjectFor(kind authcore.EmailKind) string {
	switch kind {
	case authcore.EmailPasswordResetCode:
		return "Password reset request"
	default:
		return "Verify your email address"
	}
}

func bodyFor(kind authcore.EmailKind, code string) string {
	switch kind {
	case authcore.EmailPasswordResetCode:
		return fmt.Sprintf(`
                        <h3>Password reset requested</h3>
                        <p>We received a request to reset the password for your account.</p>
                        <p>Your reset code is: <strong>%s</strong></p>
                        <p>If you did not request this change, you can ignore this email.</p>
                `, code)
	default:
		return fmt.Sprintf(`
                        <h3>Verify your email address</h3>
                        <p>Your verification code is: <strong>%s</strong></p>
                        <p>The code expires shortly. If you did not create an account, you can ignore this email.</p>
                `, code)
	}
}

// LogSender writes codes to the process log instead of sending mail. For
// development only; codes in logs defeat the point otherwise.
type LogSender struct {
	Logger *log.Logger
}

var _ authcore.EmailSender = (*LogSender)(nil)

func (s *LogSender) Send(_ context.Context, to string, kind authcore.EmailKind, code string) error {
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("mail to=%s kind=%s code=%s", to, kind, code)
	return nil
}
