// Package report surfaces publisher outcomes to an operator.
package report

import (
	"context"
	"log/slog"

	"tweet-publisher/email"
)

// Log reports outcomes as structured log records.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log reporter.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

// Warning logs a policy abort.
func (l *Log) Warning(ctx context.Context, msg string) {
	l.logger.WarnContext(ctx, msg, "outcome", "warning")
}

// Success logs a published tweet.
func (l *Log) Success(ctx context.Context, msg string) {
	l.logger.InfoContext(ctx, msg, "outcome", "success")
}

// Mailer interface for outcome emails.
type Mailer interface {
	SendOutcome(ctx context.Context, level email.Level, message string) error
}

// Mail emails outcomes to the operator. Failures are logged and never fail the run.
type Mail struct {
	mailer   Mailer
	logger   *slog.Logger
	warnings bool
}

// NewMail creates an email reporter. Warnings are mailed only when warnings is true.
func NewMail(mailer Mailer, warnings bool, logger *slog.Logger) *Mail {
	return &Mail{mailer: mailer, logger: logger, warnings: warnings}
}

// Warning mails a policy abort if enabled.
func (m *Mail) Warning(ctx context.Context, msg string) {
	if !m.warnings {
		return
	}
	m.send(ctx, email.LevelWarning, msg)
}

// Success mails a published tweet.
func (m *Mail) Success(ctx context.Context, msg string) {
	m.send(ctx, email.LevelSuccess, msg)
}

func (m *Mail) send(ctx context.Context, level email.Level, msg string) {
	if err := m.mailer.SendOutcome(ctx, level, msg); err != nil {
		m.logger.Warn("Failed to send outcome email", "level", string(level), "error", err)
	}
}

// Reporter receives outcome messages.
type Reporter interface {
	Warning(ctx context.Context, msg string)
	Success(ctx context.Context, msg string)
}

// Multi fans out to several reporters in order.
type Multi []Reporter

// Warning forwards to every reporter.
func (m Multi) Warning(ctx context.Context, msg string) {
	for _, r := range m {
		r.Warning(ctx, msg)
	}
}

// Success forwards to every reporter.
func (m Multi) Success(ctx context.Context, msg string) {
	for _, r := range m {
		r.Success(ctx, msg)
	}
}
