// Package testutils holds helpers shared by integration tests.
package testutils

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/nfrund/chatsync/internal/auth"
	"github.com/nfrund/chatsync/internal/config"
	"github.com/nfrund/chatsync/internal/devserver"
	"github.com/nfrund/chatsync/internal/domain"
	"github.com/stretchr/testify/require"
)

// ConfigForTests applies .env.test from the module root (when present), then
// env, for the duration of the test and returns the resulting configuration.
func ConfigForTests(t *testing.T, env map[string]string) *config.Config {
	t.Helper()

	if root, ok := moduleRoot(); ok {
		if fileEnv, err := godotenv.Read(filepath.Join(root, ".env.test")); err == nil {
			for key, value := range fileEnv {
				t.Setenv(key, value)
			}
		}
	}
	for key, value := range env {
		t.Setenv(key, value)
	}

	cfg, err := config.FromEnv()
	require.NoError(t, err, "failed to load test configuration")
	return cfg
}

func moduleRoot() (string, bool) {
	path, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(path, "go.mod")); err == nil {
			return path, true
		}
		if path == filepath.Dir(path) {
			return "", false
		}
		path = filepath.Dir(path)
	}
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// DevServer is a dev backend running on an httptest listener.
type DevServer struct {
	Server *devserver.Server
	HTTP   *httptest.Server
	Tokens *auth.Tokens
}

// StartDevServer runs a dev backend knowing the given user ids. It is shut
// down when the test ends.
func StartDevServer(t *testing.T, userIDs ...string) *DevServer {
	t.Helper()

	cfg := ConfigForTests(t, nil)
	store := devserver.NewStore(nil)
	for _, id := range userIDs {
		require.NoError(t, store.AddUser(domain.Participant{ID: id, Name: "User " + id}))
	}
	tokens := auth.NewTokens(cfg.JWTSecret, time.Hour)
	srv := devserver.New(tokens, devserver.WithStore(store), devserver.WithLogger(DiscardLogger()))
	ts := httptest.NewServer(srv)

	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return &DevServer{Server: srv, HTTP: ts, Tokens: tokens}
}

// Token issues a bearer token for userID.
func (d *DevServer) Token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := d.Tokens.Issue(userID)
	require.NoError(t, err)
	return tok
}

// URL is the REST base URL.
func (d *DevServer) URL() string { return d.HTTP.URL }

// WSURL is the WebSocket endpoint.
func (d *DevServer) WSURL() string {
	return "ws" + strings.TrimPrefix(d.HTTP.URL, "http") + "/ws"
}
