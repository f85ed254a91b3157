package source

import (
	"context"

	"tweet-publisher/pkg/tweet"
)

// Provider yields candidates.
type Provider interface {
	Provide(ctx context.Context) ([]*tweet.Candidate, error)
}

// Multi concatenates several providers in order.
type Multi []Provider

// Provide returns all candidates; the first failing provider aborts.
func (m Multi) Provide(ctx context.Context) ([]*tweet.Candidate, error) {
	var all []*tweet.Candidate
	for _, p := range m {
		c, err := p.Provide(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, c...)
	}
	return all, nil
}
