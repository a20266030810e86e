// Package notifier fans out domain events into the side effects of
// §4.4's table: outbound email, a realtime room publish, and an audit
// log row. Each of the three is failure-isolated so one channel's
// outage (a down SMTP relay, a dead socket) never affects the others
// or the originating GapCore transition, which has already committed
// by the time Notifier runs.
package notifier

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/gapopshub/api/internal/config"
)

// Mailer sends a single email. Implementations may be a no-op when no
// relay is configured (§1: SMTP relay is an external collaborator).
type Mailer interface {
	Send(to []string, cc []string, subject, body string) error
}

// SMTPMailer sends email via net/smtp, optionally over STARTTLS.
// Grounded on the teacher's email plugin's sendEmail/sendMailTLS pair.
type SMTPMailer struct {
	cfg config.EmailConfig
}

// NewSMTPMailer builds a Mailer from email configuration.
func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(to []string, cc []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}

	headers := map[string]string{
		"From":         m.cfg.FromAddress,
		"To":           strings.Join(to, ", "),
		"Subject":      subject,
		"MIME-Version": "1.0",
		"Content-Type": "text/plain; charset=UTF-8",
	}
	if len(cc) > 0 {
		headers["Cc"] = strings.Join(cc, ", ")
	}

	var message strings.Builder
	for k, v := range headers {
		fmt.Fprintf(&message, "%s: %s\r\n", k, v)
	}
	message.WriteString("\r\n")
	message.WriteString(body)

	recipients := append(append([]string{}, to...), cc...)
	addr := fmt.Sprintf("%s:%s", m.cfg.SMTPHost, m.cfg.SMTPPort)

	if m.cfg.SMTPPort == "587" {
		return m.sendTLS(addr, recipients, []byte(message.String()))
	}
	return smtp.SendMail(addr, nil, m.cfg.FromAddress, recipients, []byte(message.String()))
}

func (m *SMTPMailer) sendTLS(addr string, to []string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	host := strings.Split(addr, ":")[0]
	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return err
	}
	if err := client.Mail(m.cfg.FromAddress); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	defer w.Close()
	_, err = w.Write(msg)
	return err
}

// NoopMailer discards every send, used when no relay is configured.
type NoopMailer struct{}

func (NoopMailer) Send(to []string, cc []string, subject, body string) error { return nil }
