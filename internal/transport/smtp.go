package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/bpr-rehab/campaigner/internal/config"
)

// SMTPTransport relays messages through a single configured smarthost.
// Each Send opens a fresh connection; batches are small and paced, so
// connection reuse buys nothing worth the session bookkeeping.
type SMTPTransport struct {
	cfg    config.SMTPConfig
	logger *slog.Logger
}

func NewSMTP(cfg config.SMTPConfig, logger *slog.Logger) *SMTPTransport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPTransport{cfg: cfg, logger: logger}
}

// Send delivers one message through the smarthost.
func (t *SMTPTransport) Send(ctx context.Context, msg *Message) error {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))

	dialer := &net.Dialer{Timeout: t.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &DeliveryError{
			Temporary: true,
			Message:   fmt.Sprintf("connection failed to %s: %v", addr, err),
		}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(t.cfg.Timeout))
	}

	var client *smtp.Client
	if t.cfg.StartTLS {
		tlsConfig := &tls.Config{
			ServerName: t.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
		// NewClientStartTLS greets the server itself before upgrading,
		// so the configured HELO name only applies to plaintext sessions.
		client, err = smtp.NewClientStartTLS(conn, tlsConfig)
		if err != nil {
			return categorizeError(err, "STARTTLS")
		}
	} else {
		client = smtp.NewClient(conn)
		if err := client.Hello(t.cfg.Hostname); err != nil {
			return categorizeError(err, "HELO")
		}
	}
	defer client.Close()

	if t.cfg.Username != "" {
		auth := sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)
		if err := client.Auth(auth); err != nil {
			return categorizeError(err, "AUTH")
		}
	}

	if err := client.Mail(msg.FromEmail, nil); err != nil {
		return categorizeError(err, "MAIL FROM")
	}
	if err := client.Rcpt(msg.To, nil); err != nil {
		return categorizeError(err, fmt.Sprintf("RCPT TO %s", msg.To))
	}

	wc, err := client.Data()
	if err != nil {
		return categorizeError(err, "DATA")
	}
	if _, err := wc.Write(buildMessage(msg, t.cfg.Hostname, time.Now())); err != nil {
		wc.Close()
		return &DeliveryError{
			Temporary: true,
			Message:   fmt.Sprintf("failed to write message data: %v", err),
		}
	}
	if err := wc.Close(); err != nil {
		return categorizeError(err, "DATA close")
	}

	client.Quit()

	t.logger.Debug("message relayed",
		"smarthost", addr,
		"from", msg.FromEmail,
		"to", msg.To,
	)

	return nil
}

// smtpCodePattern matches SMTP response codes at word boundaries
var smtpCodePattern = regexp.MustCompile(`\b(4\d{2}|5\d{2})\b`)

// categorizeError determines if an SMTP error is temporary or permanent
func categorizeError(err error, stage string) *DeliveryError {
	msg := fmt.Sprintf("%s failed: %v", stage, err)

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return &DeliveryError{Temporary: smtpErr.Temporary(), Message: msg}
	}

	matches := smtpCodePattern.FindStringSubmatch(err.Error())
	if len(matches) > 1 {
		if strings.HasPrefix(matches[1], "5") {
			return &DeliveryError{Temporary: false, Message: msg}
		}
		return &DeliveryError{Temporary: true, Message: msg}
	}

	// Assume temporary by default
	return &DeliveryError{Temporary: true, Message: msg}
}
