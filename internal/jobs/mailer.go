package jobs

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Message is a rendered plain-text email
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Mailer delivers rendered messages
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of delivering them
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a mailer that logs at info level
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger.Named("mail")}
}

// Send logs msg
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.Info("outgoing mail",
		zap.String("from", msg.From),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.Body)),
	)
	return nil
}

// MemoryMailer records messages; used in tests and dry runs
type MemoryMailer struct {
	mu   sync.Mutex
	sent []Message
}

// Send records msg
func (m *MemoryMailer) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages
func (m *MemoryMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}
