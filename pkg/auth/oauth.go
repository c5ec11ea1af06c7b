// Package auth runs the Google OAuth flow and keeps tokens in the
// credential store.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/lamp/pkg/adapter"
)

const (
	// ClientSecretsService is the credential holding the downloaded
	// credentials.json of the Google API project.
	ClientSecretsService = "google-oauth-client"

	// LocalhostAuthPort is the port the local server listens on to capture
	// the OAuth redirect.
	LocalhostAuthPort = "6789"
)

// CalendarScopes are the scopes the calendar adapter needs.
var CalendarScopes = []string{
	calendar.CalendarEventsScope,
	calendar.CalendarReadonlyScope,
}

var defaultLogger = log.New(os.Stderr, "[auth] ", log.LstdFlags)

// Config builds an oauth2.Config from client secrets JSON. Localhost and
// out-of-band redirects are pointed at LocalhostAuthPort.
func Config(secretsJSON []byte, scopes []string) (*oauth2.Config, error) {
	config, err := google.ConfigFromJSON(secretsJSON, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	parsedURL, parseErr := url.Parse(config.RedirectURL)
	switch {
	case config.RedirectURL == "urn:ietf:wg:oauth:2.0:oob":
		config.RedirectURL = fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
	case parseErr != nil:
		defaultLogger.Printf("WARNING: could not parse redirect URL %q: %v", config.RedirectURL, parseErr)
	case parsedURL.Hostname() == "localhost" || parsedURL.Hostname() == "127.0.0.1":
		if parsedURL.Port() != LocalhostAuthPort {
			parsedURL.Host = net.JoinHostPort(parsedURL.Hostname(), LocalhostAuthPort)
			config.RedirectURL = parsedURL.String()
		}
	default:
		defaultLogger.Printf("WARNING: redirect URL %s is not a localhost callback", config.RedirectURL)
	}
	return config, nil
}

// LoadConfig reads the client secrets from the credential store.
func LoadConfig(secrets adapter.Secrets, scopes []string) (*oauth2.Config, error) {
	raw, err := secrets.Get(ClientSecretsService)
	if err != nil {
		return nil, fmt.Errorf("google client secrets: %w (run `lamp auth import <credentials.json>`)", err)
	}
	return Config([]byte(raw), scopes)
}

// Token reads the token stored under service.
func Token(secrets adapter.Secrets, service string) (*oauth2.Token, error) {
	raw, err := secrets.Get(service)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal([]byte(raw), tok); err != nil {
		return nil, fmt.Errorf("failed to decode token %s: %w", service, err)
	}
	return tok, nil
}

// SaveToken stores tok under service.
func SaveToken(secrets adapter.Secrets, service string, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return secrets.Put(service, string(data))
}

// persistingSource saves every token that differs from the last one seen,
// so refreshed access tokens survive the process.
type persistingSource struct {
	base    oauth2.TokenSource
	secrets adapter.Secrets
	service string
	logger  *log.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil || tok.AccessToken != p.last.AccessToken || tok.RefreshToken != p.last.RefreshToken {
		if err := SaveToken(p.secrets, p.service, tok); err != nil {
			p.logger.Printf("WARNING: could not save refreshed token: %v", err)
		}
		p.last = tok
	}
	return tok, nil
}

// TokenSource returns a source for the stored token that refreshes it as
// needed and writes refreshed tokens back.
func TokenSource(ctx context.Context, config *oauth2.Config, secrets adapter.Secrets, service string) (oauth2.TokenSource, error) {
	tok, err := Token(secrets, service)
	if err != nil {
		return nil, fmt.Errorf("%w (run `lamp auth login`)", err)
	}
	return oauth2.ReuseTokenSource(tok, &persistingSource{
		base:    config.TokenSource(ctx, tok),
		secrets: secrets,
		service: service,
		logger:  defaultLogger,
		last:    tok,
	}), nil
}

// Client returns an authenticated HTTP client for service.
func Client(ctx context.Context, secrets adapter.Secrets, service string, scopes []string) (*http.Client, error) {
	config, err := LoadConfig(secrets, scopes)
	if err != nil {
		return nil, err
	}
	ts, err := TokenSource(ctx, config, secrets, service)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, ts), nil
}

// Login runs the authorization code flow through a local web server and
// stores the resulting token under service.
func Login(ctx context.Context, config *oauth2.Config, secrets adapter.Secrets, service string, out io.Writer) error {
	tok, err := tokenFromWeb(ctx, config, out)
	if err != nil {
		return err
	}
	return SaveToken(secrets, service, tok)
}

func tokenFromWeb(ctx context.Context, config *oauth2.Config, out io.Writer) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	state := uuid.NewString()

	listener, err := net.Listen("tcp", "localhost:"+LocalhostAuthPort)
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("state") != state {
				http.Error(w, "State mismatch", http.StatusBadRequest)
				return
			}
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				errCh <- errors.New("authorization code not found in redirect URL")
				return
			}
			fmt.Fprintf(w, "Authentication successful! You can close this window.")
			codeCh <- code
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	defer server.Shutdown(context.Background())

	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(out, "Open the following URL in your browser to authorize lamp:\n%s\n", authURL)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	select {
	case code := <-codeCh:
		tok, err := config.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("authorization did not complete: %w", ctx.Err())
	}
}
