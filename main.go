// Package main implements a Cloud Run service that resolves the school's
// breakfast and lunch menu each day and emails it to subscribers, with a
// self-service subscribe/unsubscribe surface.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/vikasy/school-menu-of-the-day/assemble"
	"github.com/vikasy/school-menu-of-the-day/email"
	"github.com/vikasy/school-menu-of-the-day/menuapi"
	"github.com/vikasy/school-menu-of-the-day/scraper"
	"github.com/vikasy/school-menu-of-the-day/server"
	"github.com/vikasy/school-menu-of-the-day/storage"
	"github.com/vikasy/school-menu-of-the-day/token"
)

const (
	defaultMenuPageURL = "https://cusdk8nutrition.com/index.php?sid=1805092039571289&page=menus"

	// Per-call budget for every outbound menu request. A slow upstream
	// degrades to a note in the email, never a hung run.
	menuCallTimeout = 15 * time.Second
)

func main() {
	ctx := context.Background()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	pageURL := envOr("MENU_PAGE_URL", defaultMenuPageURL)

	pageClient := &http.Client{Timeout: menuCallTimeout}

	// Redirect hops carry the menu id in their Location header, so they
	// must be observed rather than followed.
	redirectClient := &http.Client{
		Timeout: menuCallTimeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	scr := scraper.New(pageClient, redirectClient, pageURL, logger)
	items := menuapi.New(menuapi.Config{Client: pageClient, Logger: logger})
	assembler := assemble.New(scr, items, scraper.ElementarySelector, logger)

	store, closeStore := initStore(ctx, logger)
	defer closeStore()

	tokens := token.New(os.Getenv("UNSUBSCRIBE_SECRET"))
	if !tokens.Enabled() {
		logger.Warn("UNSUBSCRIBE_SECRET not set, emails will omit unsubscribe links")
	}

	unsubBase := os.Getenv("UNSUBSCRIBE_BASE_URL")
	if unsubBase == "" {
		if base := os.Getenv("BASE_URL"); base != "" {
			unsubBase = strings.TrimSuffix(base, "/") + "/unsubscribe"
		}
	}

	provider := initProvider(ctx, logger)
	mailer := email.New(provider, tokens, logger, unsubBase, pageURL)

	srv := server.New(&server.Config{
		Assembler: assembler,
		Store:     store,
		Mailer:    mailer,
		Tokens:    tokens,
		Logger:    logger,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := srv.ListenAndServe(port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// initStore builds the subscriber store: a local directory of JSON documents
// when LOCAL_STORAGE is set, Firestore otherwise.
func initStore(ctx context.Context, logger *slog.Logger) (*storage.Store, func()) {
	fallback := os.Getenv("RECIPIENT_FALLBACK")

	if localPath := os.Getenv("LOCAL_STORAGE"); localPath != "" {
		logger.Info("Running with local subscriber storage", "path", localPath)
		if err := os.MkdirAll(localPath, 0o755); err != nil {
			logger.Error("Failed to create local storage directory", "error", err)
			os.Exit(1)
		}
		return storage.New(nil, localPath, fallback, logger), func() {}
	}

	project := os.Getenv("FIRESTORE_PROJECT")
	if project == "" {
		project = firestore.DetectProjectID
	}
	client, err := firestore.NewClient(ctx, project)
	if err != nil {
		logger.Error("Failed to initialize Firestore client", "error", err)
		os.Exit(1)
	}

	return storage.New(client, "", fallback, logger), func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close Firestore client", "error", err)
		}
	}
}

// initProvider picks the mail transport: Mailjet when its keys are set, then
// Gmail, then the logging mock for local development.
func initProvider(ctx context.Context, logger *slog.Logger) email.Provider {
	from := os.Getenv("FROM_EMAIL")

	pub := os.Getenv("MAILJET_PUBLIC_KEY")
	priv := os.Getenv("MAILJET_PRIVATE_KEY")
	if pub != "" && priv != "" {
		if from == "" {
			logger.Error("FROM_EMAIL required when using Mailjet")
			os.Exit(1)
		}
		logger.Info("Using Mailjet email provider", "from", from)
		return email.NewMailjetProvider(pub, priv, from, "School Menu Notifier", logger)
	}

	service, err := initGmailService(ctx)
	if err != nil {
		logger.Warn("Gmail unavailable, using mock email provider", "error", err)
		return email.NewMockProvider(logger)
	}

	logger.Info("Using Gmail email provider")
	return email.NewGmailProvider(service, logger, from)
}

// isCloudRun checks if we're running in a GCP environment by querying the metadata server.
func isCloudRun(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://metadata.google.internal/computeMetadata/v1/project/project-id", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}

func initGmailService(ctx context.Context) (*gmail.Service, error) {
	// Try explicit credentials first (for local development or specific use cases)
	credsJSON := os.Getenv("GOOGLE_CREDENTIALS_JSON")
	if credsJSON != "" {
		return gmail.NewService(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
	}

	// In Cloud Run, Application Default Credentials carry the service
	// account, which needs the gmail.send scope.
	if isCloudRun(ctx) {
		return gmail.NewService(ctx)
	}

	return nil, errors.New("GOOGLE_CREDENTIALS_JSON required when not running in Cloud Run")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
