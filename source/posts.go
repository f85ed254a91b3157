// Package source provides the candidate pool for the publisher.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"tweet-publisher/pkg/tweet"
)

const (
	textKey  = "tweet"
	imageKey = "tweet_image"
)

var frontmatterSep = []byte("---\n")

// Blobs interface for listing and reading post files.
type Blobs interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Read(ctx context.Context, key string) ([]byte, error)
}

// Posts reads candidates from the front matter of markdown posts.
type Posts struct {
	blobs  Blobs
	logger *slog.Logger
	prefix string
}

// NewPosts creates a provider over all *.md objects below prefix.
func NewPosts(blobs Blobs, prefix string, logger *slog.Logger) *Posts {
	return &Posts{
		blobs:  blobs,
		logger: logger,
		prefix: prefix,
	}
}

// Provide returns one candidate per post that declares a tweet.
func (p *Posts) Provide(ctx context.Context) ([]*tweet.Candidate, error) {
	keys, err := p.blobs.List(ctx, p.prefix)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	var candidates []*tweet.Candidate
	var scanned int
	for _, key := range keys {
		if !strings.HasSuffix(key, ".md") {
			continue
		}
		scanned++

		data, err := p.blobs.Read(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read post %s: %w", key, err)
		}

		c, err := parsePost(data)
		if err != nil {
			return nil, fmt.Errorf("parse post %s: %w", key, err)
		}
		if c == nil {
			continue
		}
		c.Origin = key
		candidates = append(candidates, c)
	}

	p.logger.Info("Post candidates loaded", "prefix", p.prefix, "posts", scanned, "candidates", len(candidates))
	return candidates, nil
}

// parsePost returns nil for a post without a tweet entry.
func parsePost(data []byte) (*tweet.Candidate, error) {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(data, frontmatterSep) {
		return nil, nil
	}
	rest := data[len(frontmatterSep):]
	end := bytes.Index(rest, append([]byte("\n"), frontmatterSep...))
	var fm []byte
	switch {
	case bytes.HasPrefix(rest, frontmatterSep):
		// empty front matter
	case end >= 0:
		fm = rest[:end+1]
	case bytes.HasSuffix(rest, []byte("\n---")):
		fm = rest[:len(rest)-3]
	default:
		return nil, errors.New("unterminated front matter")
	}

	meta := map[string]any{}
	if err := yaml.Unmarshal(fm, &meta); err != nil {
		return nil, err
	}

	raw, ok := meta[textKey]
	if !ok || raw == nil {
		return nil, nil
	}
	text, err := cast.ToStringE(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", textKey, err)
	}
	text = strings.TrimRight(text, "\n")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s is empty", textKey)
	}

	var image string
	if v, ok := meta[imageKey]; ok && v != nil {
		if image, err = cast.ToStringE(v); err != nil {
			return nil, fmt.Errorf("%s: %w", imageKey, err)
		}
	}

	return &tweet.Candidate{Text: text, Image: strings.TrimSpace(image)}, nil
}
