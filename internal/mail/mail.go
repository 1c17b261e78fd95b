// Package mail sends deadline reminder messages. The SMTP sender is a
// thin client over net/smtp; deployments without a mail relay use the
// log sender instead.
package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// Message is one reminder mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a single message. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// RecipientDomain extracts the mail domain from an address, used to key
// the notification circuit breaker. Returns "" for malformed addresses.
func RecipientDomain(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}

// SMTPSender delivers messages through a single SMTP relay.
type SMTPSender struct {
	addr     string
	from     string
	username string
	password string
	logger   *zap.Logger
}

func NewSMTPSender(addr, from, username, password string, logger *zap.Logger) *SMTPSender {
	return &SMTPSender{
		addr:     addr,
		from:     from,
		username: username,
		password: password,
		logger:   logger,
	}
}

// Send delivers one message. A message with an empty recipient is
// logged and dropped without error: the upstream record has no address
// to deliver to and retrying cannot fix that.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		s.logger.Warn("skipping mail with empty recipient", zap.String("subject", msg.Subject))
		return nil
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", s.addr, err)
	}

	host, _, err := net.SplitHostPort(s.addr)
	if err != nil {
		host = s.addr
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if s.username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", s.username, s.password, host)
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := fmt.Fprintf(w, "From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.from, msg.To, msg.Subject, msg.Body); err != nil {
		w.Close()
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close body: %w", err)
	}

	return client.Quit()
}

// LogSender writes messages to the log instead of delivering them.
// Used when no SMTP relay is configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		s.logger.Warn("skipping mail with empty recipient", zap.String("subject", msg.Subject))
		return nil
	}
	s.logger.Info("mail (log sender)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
	return nil
}

var (
	_ Sender = (*SMTPSender)(nil)
	_ Sender = (*LogSender)(nil)
)
