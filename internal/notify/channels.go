package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"
)

// LogChannel writes the message to the log instead of delivering it.
type LogChannel struct {
	Logger logrus.FieldLogger
}

func (LogChannel) Name() string { return "log" }

func (c LogChannel) Send(ctx context.Context, to, subject, body string) (bool, error) {
	logger := c.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
	}).Info(body)
	return true, nil
}

const defaultSMTPTimeout = 15 * time.Second

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Timeout bounds the whole SMTP session when the caller's context has
	// no earlier deadline.
	Timeout time.Duration
}

// SMTPChannel sends plain-text mail through an SMTP relay.
type SMTPChannel struct {
	cfg  SMTPConfig
	send func(ctx context.Context, msg *mail.Msg) error
}

func NewSMTPChannel(cfg SMTPConfig) (*SMTPChannel, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp sender address is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	c := &SMTPChannel{cfg: cfg}
	c.send = c.dialAndSend
	return c, nil
}

func (*SMTPChannel) Name() string { return "email" }

func (c *SMTPChannel) Send(ctx context.Context, to, subject, body string) (bool, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	msg := mail.NewMsg()
	if err := msg.From(c.cfg.From); err != nil {
		return false, fmt.Errorf("invalid sender %q: %w", c.cfg.From, err)
	}
	if err := msg.To(to); err != nil {
		return false, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := c.send(ctx, msg); err != nil {
		return false, fmt.Errorf("send mail to %s: %w", to, err)
	}
	return true, nil
}

func (c *SMTPChannel) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(c.cfg.Port),
		mail.WithTimeout(c.cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithDialContextFunc(deadlineDialer(c.cfg.Timeout)),
	}
	if c.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(c.cfg.Username),
			mail.WithPassword(c.cfg.Password),
		)
	}
	client, err := mail.NewClient(c.cfg.Host, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// deadlineDialer pins the connection deadline to the dial context so a relay
// that accepts but never answers cannot hold the session open.
func deadlineDialer(timeout time.Duration) mail.DialContextFunc {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(timeout)
		}
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}
}
