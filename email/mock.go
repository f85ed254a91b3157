package email

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Message is an outcome mail captured by MockProvider.
type Message struct {
	To      string
	Subject string
	Body    string
	Level   Level
}

// MockProvider logs outcome mails and keeps them for inspection.
type MockProvider struct {
	logger *slog.Logger
	mu     sync.Mutex
	sent   []Message
}

// NewMockProvider creates a new mock email provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{logger: logger}
}

// Send records the mail and logs its outcome level instead of sending it.
func (m *MockProvider) Send(_ context.Context, to, subject, htmlBody string) error {
	msg := Message{To: to, Subject: subject, Body: htmlBody, Level: levelOf(subject)}

	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()

	log := m.logger.Info
	if msg.Level == LevelWarning {
		log = m.logger.Warn
	}
	log("MOCK EMAIL", "to", to, "subject", subject, "level", string(msg.Level), "body_length", len(htmlBody))
	return nil
}

// Sent returns the mails recorded so far.
func (m *MockProvider) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

// levelOf reverses subjectFor.
func levelOf(subject string) Level {
	if strings.HasPrefix(subject, "No tweet published") {
		return LevelWarning
	}
	return LevelSuccess
}
