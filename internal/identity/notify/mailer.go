package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// MailConfig holds SMTP settings for the outbound mailer.
type MailConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`
}

// Validate reports the first missing required field.
func (c MailConfig) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("mail: missing SMTP host")
	case c.Port == 0:
		return fmt.Errorf("mail: missing SMTP port")
	case c.From == "":
		return fmt.Errorf("mail: missing from address")
	}
	return nil
}

// Mailer sends email over SMTP.
type Mailer struct {
	from   string
	dialer *gomail.Dialer
}

func NewMailer(cfg MailConfig) (*Mailer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Mailer{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}, nil
}

func (m *Mailer) SendEmail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("mail: send to %s: %w", to, err)
	}
	return nil
}
