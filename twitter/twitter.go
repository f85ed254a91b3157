// Package twitter talks to the X (Twitter) API v2 on behalf of one account.
package twitter

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/codeGROOVE-dev/retry"

	"tweet-publisher/pkg/tweet"
)

const (
	// DefaultBaseURL is the X API host.
	DefaultBaseURL  = "https://api.x.com"
	defaultMaxPages = 32
	pageSize        = 100
)

// NeverTweeted is reported by DaysSinceLastTweet for an account without history.
const NeverTweeted = math.MaxInt32

// APIError is a non-2xx response from the API.
type APIError struct {
	Body       string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// MediaOpener resolves an image reference to its bytes.
type MediaOpener interface {
	Open(ctx context.Context, ref string) (name string, data []byte, err error)
}

// Config holds client configuration.
type Config struct {
	HTTPClient *http.Client // Must attach credentials, see NewHTTPClient
	Media      MediaOpener
	Logger     *slog.Logger
	Now        func() time.Time
	BaseURL    string
	UserID     string
	MaxPages   int
	RetryDelay time.Duration // Base delay between attempts, default 2s
}

// Client reads the account timeline and publishes tweets.
type Client struct {
	client   *http.Client
	media    MediaOpener
	logger   *slog.Logger
	now      func() time.Time
	baseURL  string
	userID   string
	maxPages int
	delay    time.Duration
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.UserID == "" {
		return nil, errors.New("user id is required")
	}
	if cfg.HTTPClient == nil {
		return nil, errors.New("http client is required")
	}
	c := &Client{
		client:   cfg.HTTPClient,
		media:    cfg.Media,
		logger:   cfg.Logger,
		now:      cfg.Now,
		baseURL:  cfg.BaseURL,
		userID:   cfg.UserID,
		maxPages: cfg.MaxPages,
		delay:    cfg.RetryDelay,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.maxPages <= 0 {
		c.maxPages = defaultMaxPages
	}
	if c.delay <= 0 {
		c.delay = 2 * time.Second
	}
	return c, nil
}

type apiProblem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type timelineResponse struct {
	Data []struct {
		ID        string `json:"id"`
		Text      string `json:"text"`
		CreatedAt string `json:"created_at"`
	} `json:"data"`
	Meta struct {
		NextToken   string `json:"next_token"`
		ResultCount int    `json:"result_count"`
	} `json:"meta"`
	Errors []apiProblem `json:"errors"`
}

// DaysSinceLastTweet returns whole days elapsed since the newest tweet.
func (c *Client) DaysSinceLastTweet(ctx context.Context) (int, error) {
	page, err := c.timelinePage(ctx, "", 5)
	if err != nil {
		return 0, err
	}
	tweets, err := page.published()
	if err != nil {
		return 0, err
	}
	if len(tweets) == 0 {
		c.logger.Info("No tweets in timeline", "user_id", c.userID)
		return NeverTweeted, nil
	}

	newest := tweets[0].CreatedAt
	for _, t := range tweets[1:] {
		if t.CreatedAt.After(newest) {
			newest = t.CreatedAt
		}
	}
	days := int(c.now().Sub(newest) / (24 * time.Hour))
	if days < 0 {
		days = 0
	}
	c.logger.Info("Last tweet found", "tweet_id", tweets[0].ID, "created_at", newest.Format(time.RFC3339), "days", days)
	return days, nil
}

// PublishedTweets returns the account's timeline, newest first, up to the page limit.
func (c *Client) PublishedTweets(ctx context.Context) ([]*tweet.Published, error) {
	var all []*tweet.Published
	token := ""
	for i := 0; i < c.maxPages; i++ {
		page, err := c.timelinePage(ctx, token, pageSize)
		if err != nil {
			return nil, err
		}
		tweets, err := page.published()
		if err != nil {
			return nil, err
		}
		all = append(all, tweets...)

		token = page.Meta.NextToken
		if token == "" {
			break
		}
		if i == c.maxPages-1 {
			c.logger.Warn("Timeline page limit reached, older tweets ignored", "max_pages", c.maxPages, "tweets", len(all))
		}
	}

	c.logger.Info("Published tweets fetched", "user_id", c.userID, "count", len(all))
	return all, nil
}

func (c *Client) timelinePage(ctx context.Context, token string, size int) (*timelineResponse, error) {
	var page timelineResponse
	err := c.read(ctx, "users.tweets", func() error {
		page = timelineResponse{}
		rb := c.request("/2/users/"+url.PathEscape(c.userID)+"/tweets").
			Param("max_results", fmt.Sprint(size)).
			Param("tweet.fields", "created_at").
			Param("exclude", "retweets").
			ToJSON(&page)
		if token != "" {
			rb = rb.Param("pagination_token", token)
		}
		return rb.Fetch(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch timeline: %w", err)
	}
	if len(page.Data) == 0 && len(page.Errors) > 0 {
		return nil, fmt.Errorf("fetch timeline: %s: %s", page.Errors[0].Title, page.Errors[0].Detail)
	}
	return &page, nil
}

func (r *timelineResponse) published() ([]*tweet.Published, error) {
	out := make([]*tweet.Published, 0, len(r.Data))
	for _, d := range r.Data {
		createdAt, err := time.Parse(time.RFC3339, d.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("tweet %s: created_at %q: %w", d.ID, d.CreatedAt, err)
		}
		out = append(out, &tweet.Published{
			ID: d.ID,
			// The API entity-encodes &, < and >.
			Text:      html.UnescapeString(d.Text),
			CreatedAt: createdAt,
		})
	}
	return out, nil
}

type createTweetRequest struct {
	Media *createTweetMedia `json:"media,omitempty"`
	Text  string            `json:"text"`
}

type createTweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type createTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
	Errors []apiProblem `json:"errors"`
}

// Publish posts a text-only tweet.
func (c *Client) Publish(ctx context.Context, text string) error {
	return c.createTweet(ctx, createTweetRequest{Text: text})
}

// PublishWithImage uploads the referenced image and posts it with text.
func (c *Client) PublishWithImage(ctx context.Context, text, image string) error {
	if c.media == nil {
		return errors.New("no media opener configured")
	}
	name, data, err := c.media.Open(ctx, image)
	if err != nil {
		return fmt.Errorf("open media %s: %w", image, err)
	}
	mediaID, err := c.upload(ctx, name, data)
	if err != nil {
		return err
	}
	return c.createTweet(ctx, createTweetRequest{
		Text:  text,
		Media: &createTweetMedia{MediaIDs: []string{mediaID}},
	})
}

func (c *Client) createTweet(ctx context.Context, body createTweetRequest) error {
	var resp createTweetResponse
	err := c.write(ctx, "tweets.create", func() error {
		resp = createTweetResponse{}
		return c.request("/2/tweets").
			BodyJSON(&body).
			ToJSON(&resp).
			Fetch(ctx)
	})
	if err != nil {
		return fmt.Errorf("create tweet: %w", err)
	}
	if resp.Data.ID == "" {
		if len(resp.Errors) > 0 {
			return fmt.Errorf("create tweet: %s: %s", resp.Errors[0].Title, resp.Errors[0].Detail)
		}
		return errors.New("create tweet: response without tweet id")
	}
	c.logger.Info("Tweet created", "tweet_id", resp.Data.ID, "with_media", body.Media != nil)
	return nil
}

func (c *Client) request(path string) *requests.Builder {
	return requests.
		URL(c.baseURL).
		Path(path).
		Client(c.client).
		AddValidator(checkStatus)
}

func checkStatus(res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	return &APIError{StatusCode: res.StatusCode, Body: string(body)}
}

// read retries transport failures, rate limits and server errors.
func (c *Client) read(ctx context.Context, endpoint string, fn func() error) error {
	return c.do(ctx, endpoint, fn, func(err error) bool {
		code := StatusCode(err)
		return code == 0 || code == http.StatusTooManyRequests || code >= 500
	})
}

// write retries only responses that guarantee nothing was created.
func (c *Client) write(ctx context.Context, endpoint string, fn func() error) error {
	return c.do(ctx, endpoint, fn, func(err error) bool {
		code := StatusCode(err)
		return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
	})
}

func (c *Client) do(ctx context.Context, endpoint string, fn func() error, retryable func(error) bool) error {
	return retry.Do(
		func() error {
			startTime := time.Now()
			err := fn()
			duration := time.Since(startTime)
			if err != nil {
				c.logger.Warn("X API request failed",
					"endpoint", endpoint,
					"status_code", StatusCode(err),
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			c.logger.Debug("X API request completed", "endpoint", endpoint, "duration_ms", duration.Milliseconds())
			return nil
		},
		retry.Attempts(3),
		retry.Delay(c.delay),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(c.delay),
		retry.Context(ctx),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying X API request after error", "endpoint", endpoint, "attempt", n, "error", err)
		}),
	)
}
