// Command feeledger-oauth-init authorizes the sheets backend with a Google
// user account and stores the resulting token for GOOGLE_OAUTH_TOKEN_FILE.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"feeledger/internal/cli"
	"feeledger/internal/log"
	gsheet "feeledger/internal/sheets/google"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		fmt.Fprintln(os.Stderr, "ignoring malformed .env file:", err)
	}
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentSheets)

	if err := run(logger); err != nil {
		logger.Error("OAuth initialization failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *log.Logger) error {
	cfg, err := gsheet.OAuthConfigFromEnv()
	if err != nil {
		return err
	}

	// The redirect URI must be registered on the OAuth client.
	redirectPort := os.Getenv("OAUTH_REDIRECT_PORT")
	if redirectPort == "" {
		redirectPort = "8085"
	}
	cfg.RedirectURL = "http://localhost:" + redirectPort + "/callback"

	state := uuid.NewString()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		case q.Get("error") != "":
			http.Error(w, "OAuth error: "+q.Get("error"), http.StatusBadRequest)
			select {
			case errCh <- fmt.Errorf("authorization denied: %s", q.Get("error")):
			default:
			}
			return
		}
		fmt.Fprintln(w, "You may close this window and return to the terminal.")
		select {
		case codeCh <- q.Get("code"):
		default:
		}
	})
	srv := &http.Server{Addr: "localhost:" + redirectPort, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	fmt.Printf("Open this URL to authorize:\n%s\n", cfg.AuthCodeURL(state, oauth2.AccessTypeOffline))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	select {
	case code := <-codeCh:
		tok, err := cfg.Exchange(ctx, code)
		if err != nil {
			return fmt.Errorf("token exchange: %w", err)
		}
		outFile := os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")
		if outFile == "" {
			outFile = gsheet.DefaultTokenFile
		}
		if err := gsheet.SaveToken(outFile, tok); err != nil {
			return err
		}
		logger.Info("Saved OAuth token", "path", outFile)
		return nil
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return fmt.Errorf("authorization not completed: %w", ctx.Err())
	}
}
