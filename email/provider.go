// Package email sends run outcome notifications to the operator.
package email

import (
	"context"
	"errors"
	"log/slog"
)

// Provider defines the interface for email sending implementations.
type Provider interface {
	// Send sends an email with the given parameters.
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Level classifies an outcome mail.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
)

// Sender sends outcome emails using a pluggable provider.
type Sender struct {
	provider Provider
	logger   *slog.Logger
	to       string // Operator address
	account  string // Account handle shown in the mail, e.g. @example
}

// New creates a new email sender with the given provider.
func New(provider Provider, logger *slog.Logger, to, account string) *Sender {
	return &Sender{
		provider: provider,
		logger:   logger,
		to:       to,
		account:  account,
	}
}

// SendOutcome mails a single run outcome to the operator.
func (s *Sender) SendOutcome(ctx context.Context, level Level, message string) error {
	if s.to == "" {
		return errors.New("no recipient configured")
	}

	subject := subjectFor(level, s.account)
	body := s.formatOutcomeBody(level, message)

	s.logger.Info("Sending outcome email",
		"to", s.to,
		"subject", subject,
		"level", string(level))

	return s.provider.Send(ctx, s.to, subject, body)
}

func subjectFor(level Level, account string) string {
	prefix := "Tweet published"
	if level == LevelWarning {
		prefix = "No tweet published"
	}
	if account == "" {
		return prefix
	}
	return prefix + " for " + account
}
