// Package email sends the account verification mail over SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/pysugar/strava-sync/internal/config"
	"gopkg.in/gomail.v2"
)

var verificationTemplate = template.Must(template.New("verification").Parse(`<html>
<body>
    <h2>Thanks for signing up, {{.Username}}!</h2>
    <p>Your verification code is: <strong>{{.Code}}</strong></p>
    <p>Use this code to verify your account.</p>
</body>
</html>`))

// Sender delivers verification mails. When disabled it does nothing and
// registration falls back to auto-verification.
type Sender struct {
	dialer  *gomail.Dialer
	from    string
	enabled bool
}

// NewSender creates a Sender from the email configuration.
func NewSender(cfg config.EmailConfig) *Sender {
	return &Sender{
		dialer:  gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Username, cfg.Password),
		from:    cfg.From,
		enabled: cfg.Enabled,
	}
}

// Enabled reports whether mails are actually sent.
func (s *Sender) Enabled() bool {
	return s.enabled
}

// SendVerificationEmail delivers the one-time code to a new user.
func (s *Sender) SendVerificationEmail(to, username, code string) error {
	var body bytes.Buffer
	err := verificationTemplate.Execute(&body, map[string]string{
		"Username": username,
		"Code":     code,
	})
	if err != nil {
		return fmt.Errorf("render verification mail: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Verify Your Email Address")
	m.SetBody("text/html", body.String())

	return s.dialer.DialAndSend(m)
}
