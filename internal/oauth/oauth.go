// Package oauth provides the OAuth2 consent flow and credential
// lifecycle management for unimail accounts.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/unimail/unimail/internal/store"
)

// Scopes requested during account authorization.
var Scopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/gmail.send",
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/gmail.labels",
	"https://www.googleapis.com/auth/userinfo.email",
}

const (
	redirectPort = "8089"
	callbackPath = "/callback"
	userinfoURL  = "https://www.googleapis.com/oauth2/v2/userinfo"

	// authTimeout bounds the whole browser consent handshake.
	authTimeout = 5 * time.Minute
)

// Flow performs the interactive browser consent handshake for a new account.
type Flow struct {
	config *oauth2.Config
	logger *slog.Logger
}

// NewFlow creates a consent flow from the OAuth application credential.
// A missing client ID or secret is a startup error; nothing works without it.
func NewFlow(clientID, clientSecret string, logger *slog.Logger) (*Flow, error) {
	if clientID == "" || clientSecret == "" {
		return nil, &AuthError{Err: fmt.Errorf("GOOGLE_OAUTH_CLIENT_ID and GOOGLE_OAUTH_CLIENT_SECRET must be set")}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       Scopes,
			RedirectURL:  "http://localhost:" + redirectPort + callbackPath,
		},
		logger: logger,
	}, nil
}

// Config returns the underlying oauth2 configuration, for constructing
// the credential manager with the same application credential.
func (f *Flow) Config() *oauth2.Config {
	return f.config
}

// newCallbackHandler returns an HTTP handler that processes the OAuth callback.
func (f *Flow) newCallbackHandler(expectedState string, codeChan chan<- string, errChan chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != expectedState {
			errChan <- fmt.Errorf("state mismatch: possible CSRF attack")
			http.Error(w, "Error: state mismatch", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no code in callback")
			http.Error(w, "Error: no authorization code received", http.StatusBadRequest)
			return
		}
		codeChan <- code
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<h1>Authentication successful!</h1><p>This account has been added to your unified inbox. You can close this window.</p>")
	}
}

// Authorize opens a browser for consent, waits for the redirect callback,
// exchanges the code, and resolves the account's email address. The
// returned credential has not been persisted yet.
func (f *Flow) Authorize(ctx context.Context) (*store.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	state := base64.URLEncoding.EncodeToString(stateBytes)

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.Handle(callbackPath, f.newCallbackHandler(state, codeChan, errChan))
	server := &http.Server{Addr: "localhost:" + redirectPort, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	defer func() { _ = server.Shutdown(context.Background()) }()

	// prompt=consent forces Google to issue a refresh token.
	authURL := f.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Printf("Opening browser for authorization...\n")
	fmt.Printf("If the browser doesn't open, visit:\n%s\n\n", authURL)
	if err := openBrowser(authURL); err != nil {
		f.logger.Warn("failed to open browser", "error", err)
	}

	var code string
	select {
	case code = <-codeChan:
	case err := <-errChan:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("authorization timed out: %w", ctx.Err())
	}

	token, err := f.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token in response; revoke access and re-authorize")
	}

	email, err := f.fetchEmail(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("resolve account email: %w", err)
	}

	return &store.Account{
		Email:        email,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry.UnixMilli(),
	}, nil
}

// fetchEmail resolves the authorized user's email via the userinfo endpoint.
func (f *Flow) fetchEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	client := f.config.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, "GET", userinfoURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo request failed (%d)", resp.StatusCode)
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	if info.Email == "" {
		return "", fmt.Errorf("userinfo response contained no email")
	}
	return info.Email, nil
}

// openBrowser opens the default browser to the given URL.
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}
