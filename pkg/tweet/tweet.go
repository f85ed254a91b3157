// Package tweet contains the core domain types for the tweet publisher.
package tweet

import "time"

// Candidate is a post that may be published.
// An empty Image means a text-only tweet.
type Candidate struct {
	Text  string `json:"text" yaml:"text"`
	Image string `json:"image,omitempty" yaml:"image,omitempty"`
	// Origin names where the candidate came from (post key, page URL). Informational only.
	Origin string `json:"origin,omitempty" yaml:"origin,omitempty"`
}

// HasImage reports whether the candidate carries a media reference.
func (c *Candidate) HasImage() bool {
	return c.Image != ""
}

// Published is a tweet already present in the account's history.
type Published struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	Text      string    `json:"text"`
}
