// Package publish picks one unpublished candidate and tweets it.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"tweet-publisher/pkg/tweet"
)

// ErrMissingText indicates a candidate without text reached the publisher.
var ErrMissingText = errors.New("candidate has no text")

// Timeline interface for the remote account history and publishing.
type Timeline interface {
	DaysSinceLastTweet(ctx context.Context) (int, error)
	PublishedTweets(ctx context.Context) ([]*tweet.Published, error)
	Publish(ctx context.Context, text string) error
	PublishWithImage(ctx context.Context, text, image string) error
}

// Provider interface for the candidate pool.
type Provider interface {
	Provide(ctx context.Context) ([]*tweet.Candidate, error)
}

// Reporter interface for surfacing outcomes to an operator.
type Reporter interface {
	Warning(ctx context.Context, msg string)
	Success(ctx context.Context, msg string)
}

// Outcome describes how a run ended.
type Outcome string

const (
	OutcomePublished        Outcome = "published"
	OutcomeGapNotElapsed    Outcome = "gap_not_elapsed"
	OutcomeNothingToPublish Outcome = "nothing_to_publish"
)

// Result is the outcome of a single run.
type Result struct {
	Tweet   *tweet.Candidate // Set only when Outcome is OutcomePublished
	Outcome Outcome
	Message string
}

// Config holds publisher dependencies.
type Config struct {
	Timeline   Timeline
	Provider   Provider
	Reporter   Reporter
	Logger     *slog.Logger
	Rand       func(n int) int // Returns a value in [0, n); defaults to math/rand/v2
	MinGapDays int
}

// Publisher runs one decide-and-publish cycle per call to Run.
type Publisher struct {
	timeline   Timeline
	provider   Provider
	reporter   Reporter
	logger     *slog.Logger
	rand       func(n int) int
	minGapDays int
}

// New creates a new publisher.
func New(cfg Config) (*Publisher, error) {
	if cfg.MinGapDays < 0 {
		return nil, fmt.Errorf("minimal gap must not be negative, got %d", cfg.MinGapDays)
	}
	if cfg.Timeline == nil || cfg.Provider == nil || cfg.Reporter == nil {
		return nil, errors.New("timeline, provider and reporter are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.IntN
	}
	return &Publisher{
		timeline:   cfg.Timeline,
		provider:   cfg.Provider,
		reporter:   cfg.Reporter,
		logger:     logger,
		rand:       rnd,
		minGapDays: cfg.MinGapDays,
	}, nil
}

// Run performs a single publish cycle. Policy aborts are reported as warnings
// and return a nil error; collaborator failures are returned as-is, wrapped.
func (p *Publisher) Run(ctx context.Context) (*Result, error) {
	days, err := p.timeline.DaysSinceLastTweet(ctx)
	if err != nil {
		return nil, fmt.Errorf("days since last tweet: %w", err)
	}
	if days < p.minGapDays {
		msg := fmt.Sprintf("It is only %d days since last tweet. Minimal gap is %d days, so no tweet until then.", days, p.minGapDays)
		p.logger.Info("Gap not elapsed", "days_since_last", days, "min_gap_days", p.minGapDays)
		p.reporter.Warning(ctx, msg)
		return &Result{Outcome: OutcomeGapNotElapsed, Message: msg}, nil
	}

	candidates, err := p.provider.Provide(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}
	published, err := p.timeline.PublishedTweets(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch published tweets: %w", err)
	}

	for i, c := range candidates {
		if c == nil || c.Text == "" {
			return nil, fmt.Errorf("candidate %d: %w", i, ErrMissingText)
		}
	}

	unpublished := Unpublished(candidates, published)
	p.logger.Info("Candidates filtered",
		"candidates", len(candidates),
		"published", len(published),
		"unpublished", len(unpublished),
		"days_since_last", days)

	if len(unpublished) == 0 {
		msg := `There is no new tweet to publish. Add a new one to one of your post under "tweet:" option.`
		p.reporter.Warning(ctx, msg)
		return &Result{Outcome: OutcomeNothingToPublish, Message: msg}, nil
	}

	candidate, err := Pick(unpublished, p.rand)
	if err != nil {
		return nil, err
	}

	if candidate.HasImage() {
		p.logger.Info("Publishing tweet with image", "origin", candidate.Origin, "image", candidate.Image)
		if err := p.timeline.PublishWithImage(ctx, candidate.Text, candidate.Image); err != nil {
			return nil, fmt.Errorf("publish tweet with image: %w", err)
		}
	} else {
		p.logger.Info("Publishing tweet", "origin", candidate.Origin)
		if err := p.timeline.Publish(ctx, candidate.Text); err != nil {
			return nil, fmt.Errorf("publish tweet: %w", err)
		}
	}

	msg := fmt.Sprintf(`Tweet "%s" was successfully published.`, candidate.Text)
	p.reporter.Success(ctx, msg)
	return &Result{Outcome: OutcomePublished, Message: msg, Tweet: candidate}, nil
}

// Unpublished returns candidates whose text matches no published tweet exactly.
// Matching is byte-exact on text only; the image is not part of the key.
// Nil history entries are ignored.
func Unpublished(candidates []*tweet.Candidate, published []*tweet.Published) []*tweet.Candidate {
	seen := make(map[string]struct{}, len(published))
	for _, p := range published {
		if p == nil {
			continue
		}
		seen[p.Text] = struct{}{}
	}

	var out []*tweet.Candidate
	for _, c := range candidates {
		if _, ok := seen[c.Text]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Pick draws one candidate uniformly using rnd, which must return a value in [0, n).
func Pick(candidates []*tweet.Candidate, rnd func(n int) int) (*tweet.Candidate, error) {
	if len(candidates) == 0 {
		return nil, errors.New("no candidates to pick from")
	}
	i := rnd(len(candidates))
	if i < 0 || i >= len(candidates) {
		return nil, fmt.Errorf("random index %d out of range [0, %d)", i, len(candidates))
	}
	return candidates[i], nil
}
