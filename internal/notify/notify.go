// Package notify delivers best-effort email notifications to the lab admin
// when samples reach 'submitted' status.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Notifier sends messages. Implementations are best-effort from the caller's
// perspective: the transfer workflow logs failures and never propagates them.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// SMTP sends mail through a plain SMTP relay.
type SMTP struct {
	Addr string // host:port
	From string
	Auth smtp.Auth // nil for unauthenticated relays
}

func (s *SMTP) Send(ctx context.Context, msg Message) error {
	if s.Addr == "" {
		return fmt.Errorf("smtp address not configured")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)

	if err := smtp.SendMail(s.Addr, s.Auth, s.From, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("sending mail to %s: %w", msg.To, err)
	}
	return nil
}

// Memory records messages for tests.
type Memory struct {
	mu   sync.Mutex
	sent []Message

	// Fail makes every Send return this error.
	Fail error
}

func (m *Memory) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *Memory) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}
