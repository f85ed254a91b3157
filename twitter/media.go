package twitter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/carlmjohnson/requests"
)

// MaxImageSize is the X upload limit for tweet images.
const MaxImageSize = 5 << 20

// Blobs interface for reading media from storage.
type Blobs interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Bucket() string
}

// Media opens image references found in candidates.
// http(s) URLs are downloaded, gs://bucket/key and bare keys are read from storage.
type Media struct {
	blobs  Blobs
	client *http.Client
	logger *slog.Logger
}

// NewMedia creates a media opener.
func NewMedia(blobs Blobs, client *http.Client, logger *slog.Logger) *Media {
	return &Media{blobs: blobs, client: client, logger: logger}
}

// Open returns the file name and content of ref.
func (m *Media) Open(ctx context.Context, ref string) (string, []byte, error) {
	var data []byte
	var name string

	switch u, err := url.Parse(ref); {
	case err != nil:
		return "", nil, fmt.Errorf("parse media reference: %w", err)
	case u.Scheme == "http" || u.Scheme == "https":
		err := requests.
			URL(ref).
			Client(m.client).
			Handle(func(res *http.Response) error {
				// One byte past the limit is enough to reject it below.
				var readErr error
				data, readErr = io.ReadAll(io.LimitReader(res.Body, MaxImageSize+1))
				return readErr
			}).
			Fetch(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("download media: %w", err)
		}
		name = path.Base(u.Path)
	case u.Scheme == "gs":
		if u.Host != m.blobs.Bucket() {
			return "", nil, fmt.Errorf("media bucket %q is not the configured bucket", u.Host)
		}
		key := strings.TrimPrefix(u.Path, "/")
		if data, err = m.blobs.Read(ctx, key); err != nil {
			return "", nil, err
		}
		name = path.Base(key)
	case u.Scheme == "":
		key := strings.TrimPrefix(u.Path, "/")
		if data, err = m.blobs.Read(ctx, key); err != nil {
			return "", nil, err
		}
		name = path.Base(key)
	default:
		return "", nil, fmt.Errorf("unsupported media scheme %q", u.Scheme)
	}

	if len(data) == 0 {
		return "", nil, errors.New("media is empty")
	}
	if len(data) > MaxImageSize {
		return "", nil, fmt.Errorf("media is %d bytes, limit is %d", len(data), MaxImageSize)
	}
	m.logger.Debug("Media opened", "ref", ref, "bytes", len(data))
	return name, data, nil
}

type uploadResponse struct {
	Data struct {
		ID       string `json:"id"`
		MediaKey string `json:"media_key"`
	} `json:"data"`
	Errors []apiProblem `json:"errors"`
}

func (c *Client) upload(ctx context.Context, name string, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("media_category", "tweet_image"); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	fw, err := mw.CreateFormFile("media", name)
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	var resp uploadResponse
	// Uploading is idempotent from the account's point of view, so it is retried like a read.
	err = c.read(ctx, "media.upload", func() error {
		resp = uploadResponse{}
		return c.request("/2/media/upload").
			Method(http.MethodPost).
			ContentType(mw.FormDataContentType()).
			BodyBytes(body.Bytes()).
			ToJSON(&resp).
			Fetch(ctx)
	})
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	if resp.Data.ID == "" {
		if len(resp.Errors) > 0 {
			return "", fmt.Errorf("upload media: %s: %s", resp.Errors[0].Title, resp.Errors[0].Detail)
		}
		return "", errors.New("upload media: response without media id")
	}

	c.logger.Info("Media uploaded", "media_id", resp.Data.ID, "name", name, "bytes", len(data))
	return resp.Data.ID, nil
}
