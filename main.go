// Package main implements a scheduled job that tweets one not-yet-published
// candidate post, at most once per configured number of days.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"tweet-publisher/config"
	"tweet-publisher/email"
	"tweet-publisher/publish"
	"tweet-publisher/report"
	"tweet-publisher/server"
	"tweet-publisher/source"
	"tweet-publisher/storage"
	"tweet-publisher/twitter"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default ./config.yaml if present)")
	serve := flag.Bool("serve", false, "serve POST /publishz instead of running once")
	dryRun := flag.Bool("dry-run", false, "read everything but log the tweet instead of posting it")
	flag.Parse()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(context.Background(), *configPath, *serve, *dryRun, logger); err != nil {
		logger.Error("Publisher failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, serve, dryRun bool, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.DryRun = cfg.DryRun || dryRun

	var storageClient *gcs.Client
	if cfg.Storage.LocalPath == "" {
		storageClient, err = gcs.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("initialize storage client: %w", err)
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}()
	} else {
		logger.Info("Running in local storage mode", "storage_path", cfg.Storage.LocalPath)
	}
	store := storage.New(storageClient, cfg.Storage.Bucket, cfg.Storage.LocalPath, logger)

	publisher, err := newPublisher(ctx, cfg, store, logger)
	if err != nil {
		return err
	}

	if serve {
		return server.New(&server.Config{Publisher: publisher, Logger: logger}).ListenAndServe(cfg.Port)
	}

	res, err := publisher.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("Run completed", "outcome", string(res.Outcome), "dry_run", cfg.DryRun)
	return nil
}

func newPublisher(ctx context.Context, cfg *config.Config, store *storage.Store, logger *slog.Logger) (*publish.Publisher, error) {
	plain := &http.Client{Timeout: cfg.X.Timeout}

	authed, err := twitter.NewHTTPClient(ctx, twitter.Credentials{
		Store:        store,
		StoreKey:     cfg.X.TokenKey,
		ClientID:     cfg.X.ClientID,
		ClientSecret: cfg.X.ClientSecret,
		RefreshToken: cfg.X.RefreshToken,
		AccessToken:  cfg.X.AccessToken,
	}, cfg.X.Timeout, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize X credentials: %w", err)
	}

	client, err := twitter.New(twitter.Config{
		HTTPClient: authed,
		Media:      twitter.NewMedia(store, plain, logger),
		Logger:     logger,
		BaseURL:    cfg.X.BaseURL,
		UserID:     cfg.X.UserID,
		MaxPages:   cfg.X.MaxPages,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize X client: %w", err)
	}

	var timeline publish.Timeline = client
	if cfg.DryRun {
		logger.Info("Dry run mode enabled, tweets will only be logged")
		timeline = twitter.NewDryRun(client, logger)
	}

	reporter, err := newReporter(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return publish.New(publish.Config{
		Timeline:   timeline,
		Provider:   newProvider(cfg, store, plain, logger),
		Reporter:   reporter,
		Logger:     logger,
		MinGapDays: cfg.MinGapDays,
	})
}

func newProvider(cfg *config.Config, store *storage.Store, client *http.Client, logger *slog.Logger) source.Multi {
	var providers source.Multi
	if !cfg.Source.DisablePosts {
		providers = append(providers, source.NewPosts(store, cfg.Source.PostsPrefix, logger))
	}
	for _, u := range cfg.Source.Pages {
		providers = append(providers, source.NewPage(client, u, cfg.Source.PageSelector, logger))
	}
	return providers
}

func newReporter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (report.Multi, error) {
	reporters := report.Multi{report.NewLog(logger)}

	var provider email.Provider
	switch cfg.Email.Provider {
	case "":
		return reporters, nil
	case "mock":
		provider = email.NewMockProvider(logger)
	case "brevo":
		provider = email.NewBrevoProvider(cfg.Email.BrevoAPIKey, cfg.Email.From, cfg.Email.FromName, logger)
	case "gmail":
		service, err := initGmailService(ctx, cfg.Email.GoogleCredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("initialize Gmail service: %w", err)
		}
		provider = email.NewGmailProvider(service, logger)
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Email.Provider)
	}

	sender := email.New(provider, logger, cfg.Email.To, cfg.X.Account)
	return append(reporters, report.NewMail(sender, cfg.Email.NotifyWarnings, logger)), nil
}

// isCloudRun checks if we're running in a GCP environment by querying the metadata server.
func isCloudRun(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://metadata.google.internal/computeMetadata/v1/project/project-id", http.NoBody)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := (&http.Client{Timeout: 2 * time.Second}).Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}

func initGmailService(ctx context.Context, credsJSON string) (*gmail.Service, error) {
	if credsJSON != "" {
		return gmail.NewService(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
	}

	// Application Default Credentials; the service account needs the gmail.send scope.
	if isCloudRun(ctx) {
		return gmail.NewService(ctx)
	}

	return nil, errors.New("GOOGLE_CREDENTIALS_JSON required when not running in Cloud Run")
}
