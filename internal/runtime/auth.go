// internal/runtime/auth.go
package runtime

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	gc "github.com/joshsymonds/gmarchive/internal/gmail"
	"github.com/joshsymonds/gmarchive/internal/rate"
)

const (
	credentialsFile = "credentials.json"
	tokenFile       = "token.json"
)

// ErrNoToken is returned when no OAuth token has been stored yet.
var ErrNoToken = errors.New("no oauth token")

// Credentials locates the OAuth material for an account.
type Credentials struct {
	Dir      string // holds credentials.json and token.json
	AuthFile string // optional token file overriding Dir/token.json
}

func (c Credentials) tokenPath() string {
	if c.AuthFile != "" {
		return c.AuthFile
	}
	return filepath.Join(c.Dir, tokenFile)
}

func (c Credentials) config() (*oauth2.Config, error) {
	b, err := os.ReadFile(filepath.Join(c.Dir, credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return cfg, nil
}

// NewGmailClient logs in with stored credentials and returns a rate limited client.
func NewGmailClient(ctx context.Context, creds Credentials, limiter rate.Limiter) (gc.Client, error) {
	tok, err := readToken(creds.tokenPath())
	if err != nil {
		return nil, err
	}
	var ts oauth2.TokenSource
	cfg, err := creds.config()
	switch {
	case err == nil:
		ts = cfg.TokenSource(ctx, tok)
	case creds.AuthFile != "":
		// a bare access token still works until it expires
		ts = oauth2.StaticTokenSource(tok)
	default:
		return nil, err
	}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return NewGoogleAPIClient(svc, limiter), nil
}

// InitToken runs the interactive consent flow and stores the resulting token.
func InitToken(ctx context.Context, creds Credentials, in io.Reader, out io.Writer) error {
	cfg, err := creds.config()
	if err != nil {
		return err
	}
	url := cfg.AuthCodeURL("gmarchive", oauth2.AccessTypeOffline)
	if _, err := fmt.Fprintf(out, "Open the following URL and authorize read access:\n\n  %s\n\nAuthorization code: ", url); err != nil {
		return err
	}
	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New("empty authorization code")
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	return writeToken(creds.tokenPath(), tok)
}

func readToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w at %s (run with -init)", ErrNoToken, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w in %s", ErrNoToken, path)
	}
	return &tok, nil
}

func writeToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	b, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

func DefaultLogger() *slog.Logger {
	return NewLogger(slog.LevelInfo)
}

// NewLogger returns the stderr text logger used by the command at the given level.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
