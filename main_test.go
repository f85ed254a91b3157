package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"tweet-publisher/config"
	"tweet-publisher/report"
	"tweet-publisher/source"
	"tweet-publisher/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewProvider(t *testing.T) {
	store := storage.New(nil, "", t.TempDir(), discardLogger())

	tests := []struct {
		name   string
		source config.SourceConfig
		want   int
	}{
		{"posts only", config.SourceConfig{PostsPrefix: "_posts/"}, 1},
		{"posts and pages", config.SourceConfig{PostsPrefix: "_posts/", Pages: []string{"https://a.example", "https://b.example"}}, 3},
		{"pages only", config.SourceConfig{DisablePosts: true, Pages: []string{"https://a.example"}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Source: tt.source}
			got := newProvider(cfg, store, http.DefaultClient, discardLogger())
			if len(got) != tt.want {
				t.Errorf("newProvider() has %d providers, want %d", len(got), tt.want)
			}
			if !tt.source.DisablePosts {
				if _, ok := got[0].(*source.Posts); !ok {
					t.Errorf("first provider = %T, want *source.Posts", got[0])
				}
			}
		})
	}
}

func TestNewProviderEmptyPosts(t *testing.T) {
	store := storage.New(nil, "", t.TempDir(), discardLogger())
	cfg := &config.Config{Source: config.SourceConfig{PostsPrefix: "_posts/"}}

	got, err := newProvider(cfg, store, http.DefaultClient, discardLogger()).Provide(context.Background())
	if err != nil {
		t.Fatalf("Provide() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Provide() = %d candidates, want 0", len(got))
	}
}

func TestNewReporter(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		want     int
		wantErr  bool
	}{
		{name: "log only", provider: "", want: 1},
		{name: "mock mail", provider: "mock", want: 2},
		{name: "brevo", provider: "brevo", want: 2},
		{name: "unknown", provider: "carrier-pigeon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Email: config.EmailConfig{
				Provider:    tt.provider,
				To:          "ops@example.com",
				From:        "bot@example.com",
				BrevoAPIKey: "key",
			}}
			got, err := newReporter(context.Background(), cfg, discardLogger())
			if tt.wantErr {
				if err == nil {
					t.Fatal("newReporter() should fail")
				}
				return
			}
			if err != nil {
				t.Fatalf("newReporter() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("newReporter() has %d reporters, want %d", len(got), tt.want)
			}
			if _, ok := got[0].(*report.Log); !ok {
				t.Errorf("first reporter = %T, want *report.Log", got[0])
			}
		})
	}
}

func TestInitGmailServiceWithCredentials(t *testing.T) {
	creds := `{"type":"authorized_user","client_id":"id","client_secret":"secret","refresh_token":"token"}`
	if _, err := initGmailService(context.Background(), creds); err != nil {
		t.Errorf("initGmailService() error = %v", err)
	}
}
