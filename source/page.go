package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"

	"tweet-publisher/pkg/tweet"
)

// DefaultSelector matches elements carrying a data-tweet attribute.
const DefaultSelector = "[data-tweet]"

// Page scrapes candidates from an HTML page, e.g. a blog's rendered tweet index.
type Page struct {
	client   *http.Client
	logger   *slog.Logger
	url      string
	selector string
}

// NewPage creates a page provider. An empty selector uses DefaultSelector.
func NewPage(client *http.Client, pageURL, selector string, logger *slog.Logger) *Page {
	if selector == "" {
		selector = DefaultSelector
	}
	return &Page{
		client:   client,
		logger:   logger,
		url:      pageURL,
		selector: selector,
	}
}

// Provide fetches the page and returns one candidate per matching element.
func (p *Page) Provide(ctx context.Context) ([]*tweet.Candidate, error) {
	var candidates []*tweet.Candidate

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Accept", "text/html,application/xhtml+xml")

			startTime := time.Now()
			resp, err := p.client.Do(req)
			duration := time.Since(startTime)
			if err != nil {
				p.logger.Warn("HTTP request failed, will retry", "url", p.url, "duration_ms", duration.Milliseconds(), "error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					p.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			p.logger.Info("HTTP request completed",
				"url", p.url,
				"status_code", resp.StatusCode,
				"duration_ms", duration.Milliseconds())

			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return retry.Unrecoverable(fmt.Errorf("HTTP %d", resp.StatusCode))
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			candidates, err = parsePage(resp.Body, p.url, p.selector)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Info("Retrying page fetch after error", "attempt", n, "url", p.url, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", p.url, err)
	}

	p.logger.Info("Page candidates loaded", "url", p.url, "candidates", len(candidates))
	return candidates, nil
}

func parsePage(body io.Reader, pageURL, selector string) ([]*tweet.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	var candidates []*tweet.Candidate
	var parseErr error
	doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		text, ok := s.Attr("data-tweet")
		if !ok || strings.TrimSpace(text) == "" {
			text = strings.TrimSpace(s.Text())
		}
		if text == "" {
			parseErr = fmt.Errorf("element %d matching %q has no tweet text", i, selector)
			return false
		}

		var image string
		if src, ok := s.Attr("data-tweet-image"); ok && strings.TrimSpace(src) != "" {
			ref, err := url.Parse(strings.TrimSpace(src))
			if err != nil {
				parseErr = fmt.Errorf("element %d: image %q: %w", i, src, err)
				return false
			}
			image = base.ResolveReference(ref).String()
		}

		candidates = append(candidates, &tweet.Candidate{
			Text:   text,
			Image:  image,
			Origin: pageURL,
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return candidates, nil
}
