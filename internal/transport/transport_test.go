package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"

	"github.com/bpr-rehab/campaigner/internal/config"
)

func TestBuildMessageHeaders(t *testing.T) {
	msg := &Message{
		To:             "pat@example.com",
		ToName:         "Pat Doe",
		FromEmail:      "clinic@example.com",
		FromName:       "BPR Clinic",
		ReplyTo:        "frontdesk@example.com",
		Subject:        "Your recovery plan",
		HTML:           "<p>hi</p>",
		UnsubscribeURL: "https://clinic.example/unsubscribe?token=abc",
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	raw := string(buildMessage(msg, "mail.clinic.example", now))
	headers, body, ok := strings.Cut(raw, "\r\n\r\n")
	if !ok {
		t.Fatal("no header/body separator")
	}

	for _, want := range []string{
		"From: BPR Clinic <clinic@example.com>",
		"To: Pat Doe <pat@example.com>",
		"Reply-To: frontdesk@example.com",
		"Subject: Your recovery plan",
		"List-Unsubscribe: <https://clinic.example/unsubscribe?token=abc>",
		"List-Unsubscribe-Post: List-Unsubscribe=One-Click",
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="utf-8"`,
		"Date: Sun, 01 Jun 2025 12:00:00 +0000",
		"Message-ID: <",
	} {
		if !strings.Contains(headers, want+"\r\n") && !strings.Contains(headers, want) {
			t.Errorf("headers missing %q\nheaders: %s", want, headers)
		}
	}
	if !strings.Contains(body, "<p>hi</p>") {
		t.Errorf("body = %q", body)
	}
}

func TestBuildMessageOptionalHeadersOmitted(t *testing.T) {
	msg := &Message{
		To:        "pat@example.com",
		FromEmail: "clinic@example.com",
		Subject:   "s",
		HTML:      "<p>hi</p>",
	}
	raw := string(buildMessage(msg, "localhost", time.Now()))

	if strings.Contains(raw, "Reply-To:") {
		t.Error("unexpected Reply-To header")
	}
	if strings.Contains(raw, "List-Unsubscribe") {
		t.Error("unexpected List-Unsubscribe header")
	}
	if !strings.Contains(raw, "From: clinic@example.com\r\n") {
		t.Error("bare address From not kept bare")
	}
}

func TestBuildMessageEncodesNonASCII(t *testing.T) {
	msg := &Message{
		To:        "pat@example.com",
		ToName:    "Пациент",
		FromEmail: "clinic@example.com",
		Subject:   "Привет",
		HTML:      "<p>hi</p>",
	}
	raw := string(buildMessage(msg, "localhost", time.Now()))

	if strings.Contains(raw, "Subject: Привет") {
		t.Error("subject not Q-encoded")
	}
	if !strings.Contains(raw, "=?utf-8?q?") {
		t.Errorf("no Q-encoded headers in: %s", raw)
	}
}

func TestBuildMessageNormalizesLineEndings(t *testing.T) {
	msg := &Message{
		To:        "pat@example.com",
		FromEmail: "clinic@example.com",
		Subject:   "s",
		HTML:      "line1\nline2\r\nline3",
	}
	raw := string(buildMessage(msg, "localhost", time.Now()))

	_, body, _ := strings.Cut(raw, "\r\n\r\n")
	if !strings.Contains(body, "line1\r\nline2\r\nline3") {
		t.Errorf("body line endings not normalized: %q", body)
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantTemporary bool
	}{
		{"5xx permanent", errors.New("550 mailbox unavailable"), false},
		{"4xx temporary", errors.New("421 try again later"), true},
		{"no code", errors.New("connection reset"), true},
		{"smtp error permanent", &smtp.SMTPError{Code: 550, Message: "no such user"}, false},
		{"smtp error temporary", &smtp.SMTPError{Code: 451, Message: "greylisted"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			de := categorizeError(tt.err, "RCPT TO")
			if de.Temporary != tt.wantTemporary {
				t.Errorf("Temporary = %v, want %v", de.Temporary, tt.wantTemporary)
			}
			if !strings.Contains(de.Message, "RCPT TO") {
				t.Errorf("Message = %q, want stage included", de.Message)
			}
		})
	}
}

func TestIsTemporaryError(t *testing.T) {
	if !IsTemporaryError(&DeliveryError{Temporary: true}) {
		t.Error("temporary DeliveryError not recognized")
	}
	if IsTemporaryError(&DeliveryError{Temporary: false}) {
		t.Error("permanent DeliveryError reported temporary")
	}
	if !IsTemporaryError(errors.New("unknown")) {
		t.Error("unknown errors should default to temporary")
	}
}

// loopbackBackend captures deliveries for a local test server.
type loopbackBackend struct {
	mu         sync.Mutex
	rcptErr    error
	deliveries []loopbackDelivery
}

type loopbackDelivery struct {
	from string
	to   []string
	data []byte
}

func (b *loopbackBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &loopbackSession{backend: b}, nil
}

func (b *loopbackBackend) delivered() []loopbackDelivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]loopbackDelivery(nil), b.deliveries...)
}

type loopbackSession struct {
	backend *loopbackBackend
	from    string
	to      []string
}

func (s *loopbackSession) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *loopbackSession) Rcpt(to string, opts *smtp.RcptOptions) error {
	if err := s.backend.rcptErr; err != nil {
		return err
	}
	s.to = append(s.to, to)
	return nil
}

func (s *loopbackSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.deliveries = append(s.backend.deliveries, loopbackDelivery{
		from: s.from,
		to:   s.to,
		data: data,
	})
	return nil
}

func (s *loopbackSession) Reset()        {}
func (s *loopbackSession) Logout() error { return nil }

func startLoopbackServer(t *testing.T, be *loopbackBackend) config.SMTPConfig {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	srv := smtp.NewServer(be)
	srv.Domain = "localhost"
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	return config.SMTPConfig{
		Host:     "127.0.0.1",
		Port:     l.Addr().(*net.TCPAddr).Port,
		Hostname: "mail.clinic.example",
		Timeout:  5 * time.Second,
	}
}

func TestSendRelaysThroughServer(t *testing.T) {
	be := &loopbackBackend{}
	cfg := startLoopbackServer(t, be)
	tr := NewSMTP(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	msg := &Message{
		To:        "pat@example.com",
		ToName:    "Pat Doe",
		FromEmail: "clinic@example.com",
		FromName:  "BPR Clinic",
		Subject:   "Your recovery plan",
		HTML:      "<p>hi Pat</p>",
	}
	if err := tr.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got := be.delivered()
	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(got))
	}
	if got[0].from != "clinic@example.com" {
		t.Errorf("envelope from = %q", got[0].from)
	}
	if len(got[0].to) != 1 || got[0].to[0] != "pat@example.com" {
		t.Errorf("envelope to = %v", got[0].to)
	}

	raw := string(got[0].data)
	if !strings.Contains(raw, "Subject: Your recovery plan") {
		t.Errorf("subject header missing from relayed message:\n%s", raw)
	}
	if !strings.Contains(raw, "<p>hi Pat</p>") {
		t.Errorf("body missing from relayed message:\n%s", raw)
	}
}

func TestSendPermanentRejection(t *testing.T) {
	be := &loopbackBackend{
		rcptErr: &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "mailbox unavailable"},
	}
	cfg := startLoopbackServer(t, be)
	tr := NewSMTP(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := tr.Send(context.Background(), &Message{
		To:        "gone@example.com",
		FromEmail: "clinic@example.com",
		Subject:   "x",
		HTML:      "<p>x</p>",
	})
	if err == nil {
		t.Fatal("Send() expected error")
	}
	if IsTemporaryError(err) {
		t.Errorf("550 rejection classified temporary: %v", err)
	}
	if !strings.Contains(err.Error(), "RCPT TO") {
		t.Errorf("error missing stage: %v", err)
	}
	if len(be.delivered()) != 0 {
		t.Error("rejected message was delivered")
	}
}

func TestSendConnectionRefused(t *testing.T) {
	// Grab a port and close it so nothing is listening.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	tr := NewSMTP(config.SMTPConfig{
		Host:    "127.0.0.1",
		Port:    port,
		Timeout: time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	sendErr := tr.Send(context.Background(), &Message{
		To:        "pat@example.com",
		FromEmail: "clinic@example.com",
	})
	if sendErr == nil {
		t.Fatal("Send() expected error")
	}
	if !IsTemporaryError(sendErr) {
		t.Errorf("connection failure should be temporary: %v", sendErr)
	}
}
