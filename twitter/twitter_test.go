package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeMedia struct {
	data []byte
	err  error
	refs []string
}

func (f *fakeMedia) Open(_ context.Context, ref string) (string, []byte, error) {
	f.refs = append(f.refs, ref)
	return "image.png", f.data, f.err
}

// fakeAPI serves a minimal subset of the X API v2.
type fakeAPI struct {
	mu          sync.Mutex
	pages       map[string]string // pagination token -> JSON body
	createCodes []int             // status codes returned by successive POST /2/tweets
	created     []map[string]any
	uploads     int
	uploadCat   string
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/2/users/42/tweets", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("tweet.fields"); got != "created_at" {
			t.Errorf("tweet.fields = %q, want created_at", got)
		}
		body, ok := f.pages[r.URL.Query().Get("pagination_token")]
		if !ok {
			http.Error(w, `{"title":"bad token"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("/2/tweets", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if len(f.createCodes) > 0 {
			code := f.createCodes[0]
			f.createCodes = f.createCodes[1:]
			if code != http.StatusCreated {
				w.WriteHeader(code)
				return
			}
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode create body: %v", err)
		}
		f.created = append(f.created, req)
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"data":{"id":"%d","text":%q}}`, 1000+len(f.created), req["text"])
	})
	mux.HandleFunc("/2/media/upload", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		file, _, err := r.FormFile("media")
		if err != nil {
			t.Errorf("media field: %v", err)
		} else {
			_ = file.Close()
		}
		f.uploadCat = r.FormValue("media_category")
		f.uploads++
		_, _ = io.WriteString(w, `{"data":{"id":"777","media_key":"3_777"}}`)
	})
	return mux
}

func newTestClient(t *testing.T, api *fakeAPI, media MediaOpener, now time.Time) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	c, err := New(Config{
		HTTPClient: srv.Client(),
		Media:      media,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:        func() time.Time { return now },
		BaseURL:    srv.URL,
		UserID:     "42",
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func TestDaysSinceLastTweet(t *testing.T) {
	tests := []struct {
		name string
		page string
		want int
	}{
		{
			name: "newest first",
			page: `{"data":[{"id":"2","text":"b","created_at":"2024-03-07T11:00:00.000Z"},{"id":"1","text":"a","created_at":"2024-01-01T00:00:00.000Z"}],"meta":{"result_count":2}}`,
			want: 3,
		},
		{
			name: "partial day rounds down",
			page: `{"data":[{"id":"2","text":"b","created_at":"2024-03-09T13:00:00.000Z"}],"meta":{"result_count":1}}`,
			want: 0,
		},
		{
			name: "no tweets",
			page: `{"meta":{"result_count":0}}`,
			want: NeverTweeted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{pages: map[string]string{"": tt.page}}
			got, err := newTestClient(t, api, nil, now).DaysSinceLastTweet(context.Background())
			if err != nil {
				t.Fatalf("DaysSinceLastTweet() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DaysSinceLastTweet() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDaysSinceLastTweetMalformed(t *testing.T) {
	api := &fakeAPI{pages: map[string]string{
		"": `{"data":[{"id":"1","text":"a","created_at":"yesterday"}]}`,
	}}
	if _, err := newTestClient(t, api, nil, now).DaysSinceLastTweet(context.Background()); err == nil {
		t.Fatal("DaysSinceLastTweet() should fail on malformed created_at")
	}
}

func TestPublishedTweetsPaginates(t *testing.T) {
	api := &fakeAPI{pages: map[string]string{
		"":   `{"data":[{"id":"3","text":"Fish &amp; chips","created_at":"2024-03-01T00:00:00Z"}],"meta":{"next_token":"p2"}}`,
		"p2": `{"data":[{"id":"2","text":"&lt;b&gt;","created_at":"2024-02-01T00:00:00Z"},{"id":"1","text":"plain","created_at":"2024-01-01T00:00:00Z"}],"meta":{}}`,
	}}

	got, err := newTestClient(t, api, nil, now).PublishedTweets(context.Background())
	if err != nil {
		t.Fatalf("PublishedTweets() error = %v", err)
	}
	want := []string{"Fish & chips", "<b>", "plain"}
	if len(got) != len(want) {
		t.Fatalf("PublishedTweets() returned %d tweets, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Text != w {
			t.Errorf("tweet %d text = %q, want %q", i, got[i].Text, w)
		}
	}
}

func TestPublishedTweetsAPIError(t *testing.T) {
	api := &fakeAPI{pages: map[string]string{
		"": `{"data":[],"meta":{"next_token":"missing"}}`,
	}}
	_, err := newTestClient(t, api, nil, now).PublishedTweets(context.Background())
	if err == nil {
		t.Fatal("PublishedTweets() should fail when a page is rejected")
	}
	if StatusCode(err) != http.StatusBadRequest {
		t.Errorf("StatusCode(err) = %d, want 400", StatusCode(err))
	}
}

func TestPublish(t *testing.T) {
	api := &fakeAPI{}
	if err := newTestClient(t, api, nil, now).Publish(context.Background(), "hello"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(api.created) != 1 || api.created[0]["text"] != "hello" {
		t.Fatalf("created = %v, want one tweet with text hello", api.created)
	}
	if _, ok := api.created[0]["media"]; ok {
		t.Error("text-only tweet should not carry media")
	}
}

func TestPublishRetriesRateLimit(t *testing.T) {
	api := &fakeAPI{createCodes: []int{http.StatusTooManyRequests, http.StatusCreated}}
	if err := newTestClient(t, api, nil, now).Publish(context.Background(), "again"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(api.created) != 1 {
		t.Errorf("created %d tweets, want 1", len(api.created))
	}
}

func TestPublishDoesNotRetryServerError(t *testing.T) {
	api := &fakeAPI{createCodes: []int{http.StatusInternalServerError, http.StatusCreated}}
	err := newTestClient(t, api, nil, now).Publish(context.Background(), "once")
	if err == nil {
		t.Fatal("Publish() should fail on 500")
	}
	if StatusCode(err) != http.StatusInternalServerError {
		t.Errorf("StatusCode(err) = %d, want 500", StatusCode(err))
	}
	if len(api.created) != 0 {
		t.Errorf("created %d tweets, want 0", len(api.created))
	}
}

func TestPublishWithImage(t *testing.T) {
	api := &fakeAPI{}
	media := &fakeMedia{data: []byte("\x89PNG")}
	if err := newTestClient(t, api, media, now).PublishWithImage(context.Background(), "pic", "/img/a.png"); err != nil {
		t.Fatalf("PublishWithImage() error = %v", err)
	}
	if api.uploads != 1 || api.uploadCat != "tweet_image" {
		t.Errorf("uploads = %d (category %q), want 1 tweet_image", api.uploads, api.uploadCat)
	}
	if len(media.refs) != 1 || media.refs[0] != "/img/a.png" {
		t.Errorf("media refs = %v", media.refs)
	}
	if len(api.created) != 1 {
		t.Fatalf("created %d tweets, want 1", len(api.created))
	}
	m, _ := api.created[0]["media"].(map[string]any)
	ids, _ := m["media_ids"].([]any)
	if len(ids) != 1 || ids[0] != "777" {
		t.Errorf("media_ids = %v, want [777]", m["media_ids"])
	}
}

func TestPublishWithImageMediaError(t *testing.T) {
	api := &fakeAPI{}
	boom := errors.New("no such image")
	err := newTestClient(t, api, &fakeMedia{err: boom}, now).PublishWithImage(context.Background(), "pic", "x.png")
	if !errors.Is(err, boom) {
		t.Fatalf("PublishWithImage() error = %v, want %v", err, boom)
	}
	if api.uploads != 0 || len(api.created) != 0 {
		t.Error("nothing should be uploaded or created when media cannot be opened")
	}
}

func TestDryRun(t *testing.T) {
	api := &fakeAPI{pages: map[string]string{"": `{"meta":{"result_count":0}}`}}
	media := &fakeMedia{data: []byte("img")}
	d := NewDryRun(newTestClient(t, api, media, now), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	if days, err := d.DaysSinceLastTweet(ctx); err != nil || days != NeverTweeted {
		t.Fatalf("DaysSinceLastTweet() = %d, %v", days, err)
	}
	if err := d.Publish(ctx, "a"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := d.PublishWithImage(ctx, "b", "b.png"); err != nil {
		t.Fatalf("PublishWithImage() error = %v", err)
	}
	if len(api.created) != 0 || api.uploads != 0 {
		t.Error("dry run must not write to the API")
	}
	if len(media.refs) != 1 {
		t.Error("dry run should still open the image")
	}
}

func TestNewRequiresUserID(t *testing.T) {
	if _, err := New(Config{HTTPClient: http.DefaultClient}); err == nil || !strings.Contains(err.Error(), "user id") {
		t.Errorf("New() error = %v, want missing user id", err)
	}
}
