package twitter

import (
	"context"
	"fmt"
	"log/slog"
)

// DryRun reads the real timeline but only logs writes.
type DryRun struct {
	*Client
	logger *slog.Logger
}

// NewDryRun wraps c so Publish and PublishWithImage never reach the API.
func NewDryRun(c *Client, logger *slog.Logger) *DryRun {
	return &DryRun{Client: c, logger: logger}
}

// Publish logs the tweet instead of posting it.
func (d *DryRun) Publish(_ context.Context, text string) error {
	d.logger.Info("DRY RUN tweet", "text", text)
	return nil
}

// PublishWithImage checks that the image can be opened, then logs the tweet.
func (d *DryRun) PublishWithImage(ctx context.Context, text, image string) error {
	if d.media == nil {
		return fmt.Errorf("open media %s: no media opener configured", image)
	}
	name, data, err := d.media.Open(ctx, image)
	if err != nil {
		return fmt.Errorf("open media %s: %w", image, err)
	}
	d.logger.Info("DRY RUN tweet with image", "text", text, "image", image, "name", name, "bytes", len(data))
	return nil
}
