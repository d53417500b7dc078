package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

var ErrMissingCredentials = errors.New("SMTP credentials are incomplete: username, password, sender and receiver are required")

type Config struct {
	Server       string
	Username     string
	Password     string
	Sender       string
	Receiver     string
	PrimaryPort  int
	FallbackPort int
	Timeout      time.Duration
}

// Validate reports a configuration fault before any connection is made.
func (c Config) Validate() error {
	if c.Username == "" || c.Password == "" || c.Sender == "" || c.Receiver == "" {
		return ErrMissingCredentials
	}
	if c.Server == "" {
		return fmt.Errorf("SMTP server is not set")
	}
	return nil
}

type attempt struct {
	name    string
	port    int
	options []mail.Option
}

// Mailer delivers HTML mail, trying implicit TLS on the primary port and
// STARTTLS on the fallback port.
type Mailer struct {
	cfg     Config
	deliver func(ctx context.Context, host string, a attempt, msg *mail.Msg) error
}

func NewMailer(cfg Config) *Mailer {
	if cfg.PrimaryPort == 0 {
		cfg.PrimaryPort = 465
	}
	if cfg.FallbackPort == 0 {
		cfg.FallbackPort = 25
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Mailer{cfg: cfg, deliver: dialAndSend}
}

// Send reports whether the message was delivered by any attempt.
func (m *Mailer) Send(ctx context.Context, subject, html string) bool {
	if err := m.cfg.Validate(); err != nil {
		slog.Error("Mail not sent", "subject", subject, "error", err)
		return false
	}

	msg, err := m.message(subject, html)
	if err != nil {
		slog.Error("Mail not sent", "subject", subject, "error", err)
		return false
	}

	var failures []string
	for _, a := range m.attempts() {
		slog.Debug("Sending mail", "subject", subject, "server", m.cfg.Server, "port", a.port, "mode", a.name)

		if err := m.deliver(ctx, m.cfg.Server, a, msg); err != nil {
			slog.Warn("Mail attempt failed", "mode", a.name, "port", a.port, "error", err)
			failures = append(failures, fmt.Sprintf("%s (port %d): %v", a.name, a.port, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		slog.Info("Mail sent", "subject", subject, "receiver", m.cfg.Receiver, "mode", a.name, "port", a.port)
		return true
	}

	slog.Error("All mail attempts failed", "subject", subject, "errors", strings.Join(failures, "; "))
	return false
}

func (m *Mailer) message(subject, html string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.Sender); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(m.cfg.Receiver); err != nil {
		return nil, fmt.Errorf("invalid receiver address: %w", err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextHTML, html)
	return msg, nil
}

func (m *Mailer) attempts() []attempt {
	common := []mail.Option{
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTimeout(m.cfg.Timeout),
	}

	ssl := append([]mail.Option{mail.WithPort(m.cfg.PrimaryPort), mail.WithSSL()}, common...)
	starttls := append([]mail.Option{mail.WithPort(m.cfg.FallbackPort), mail.WithTLSPolicy(mail.TLSMandatory)}, common...)

	return []attempt{
		{name: "ssl", port: m.cfg.PrimaryPort, options: ssl},
		{name: "starttls", port: m.cfg.FallbackPort, options: starttls},
	}
}

func dialAndSend(ctx context.Context, host string, a attempt, msg *mail.Msg) error {
	client, err := mail.NewClient(host, a.options...)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}
	return nil
}
