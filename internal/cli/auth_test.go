package cli

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/term"
)

const boundAddress = "0x00000000000000000000000000000000000a11ce"

// whoamiServer accepts only validKey on /api/v1/whoami
func whoamiServer(t *testing.T, validKey string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/whoami" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("X-API-Key") == validKey {
			w.Write([]byte(`{"address":"` + boundAddress + `","keyName":"dapp"}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Invalid API key"}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func pipeStdin(t *testing.T, input string) {
	t.Helper()
	orig := os.Stdin
	r, w, err := os.Pipe()
	require.NoError(t, err)
	go func() {
		defer w.Close()
		io.WriteString(w, input)
	}()
	os.Stdin = r
	t.Cleanup(func() { os.Stdin = orig })
}

// TestStdinFdCrossplatform verifies that os.Stdin.Fd() can be passed to
// golang.org/x/term on every platform.
func TestStdinFdCrossplatform(t *testing.T) {
	stdinFd := int(os.Stdin.Fd())
	assert.GreaterOrEqual(t, stdinFd, 0, "stdin file descriptor should be non-negative")

	isTerminal := term.IsTerminal(stdinFd)
	t.Logf("stdin fd=%d, isTerminal=%v", stdinFd, isTerminal)
}

func TestAuthLoginWithFlags(t *testing.T) {
	isolate(t)
	srv := whoamiServer(t, "valid-key")

	t.Run("successful login with valid key", func(t *testing.T) {
		_, err := captureStdout(t, func() error { return runAuthLogin(srv.URL, "valid-key") })
		require.NoError(t, err)
		assert.Equal(t, "valid-key", getCredential(srv.URL))

		creds, err := loadCredentials()
		require.NoError(t, err)
		assert.Equal(t, boundAddress, creds.Servers[srv.URL].Address)
	})

	t.Run("failed login with invalid key", func(t *testing.T) {
		_, err := captureStdout(t, func() error { return runAuthLogin(srv.URL, "invalid-key") })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid API key")
	})
}

func TestAuthLoginFromStdin(t *testing.T) {
	isolate(t)
	srv := whoamiServer(t, "piped-key")

	testCases := []struct {
		name  string
		input string
	}{
		{"simple key", "piped-key\n"},
		{"key with spaces", "  piped-key  \n"},
		{"key without newline", "piped-key"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pipeStdin(t, tc.input)
			_, err := captureStdout(t, func() error { return runAuthLogin(srv.URL, "") })
			require.NoError(t, err)
			assert.Equal(t, "piped-key", getCredential(srv.URL))
		})
	}

	t.Run("empty input", func(t *testing.T) {
		pipeStdin(t, "\n")
		_, err := captureStdout(t, func() error { return runAuthLogin(srv.URL, "") })
		assert.Error(t, err)
	})
}

func TestAuthLogout(t *testing.T) {
	isolate(t)

	require.NoError(t, saveCredential("http://server1:8080", ServerCredential{APIKey: "key1"}))
	require.NoError(t, saveCredential("http://server2:8080", ServerCredential{APIKey: "key2"}))

	t.Run("logout from specific server", func(t *testing.T) {
		_, err := captureStdout(t, func() error { return runAuthLogout("http://server1:8080", false) })
		require.NoError(t, err)
		assert.Equal(t, "", getCredential("http://server1:8080"))
		assert.Equal(t, "key2", getCredential("http://server2:8080"))
	})

	t.Run("logout from non-existent server", func(t *testing.T) {
		_, err := captureStdout(t, func() error { return runAuthLogout("http://nonexistent:8080", false) })
		require.NoError(t, err)
	})

	t.Run("logout all", func(t *testing.T) {
		_, err := captureStdout(t, func() error { return runAuthLogout("", true) })
		require.NoError(t, err)
		_, err = loadCredentials()
		assert.True(t, os.IsNotExist(err))
	})
}

func TestAuthStatus(t *testing.T) {
	isolate(t)

	t.Run("no credentials", func(t *testing.T) {
		out, err := captureStdout(t, runAuthStatus)
		require.NoError(t, err)
		assert.Contains(t, out, "Not authenticated")
	})

	t.Run("with credentials", func(t *testing.T) {
		require.NoError(t, saveCredential("http://test-server:8080", ServerCredential{APIKey: "test-api-key-12345678901234", Address: boundAddress}))

		out, err := captureStdout(t, runAuthStatus)
		require.NoError(t, err)
		assert.Contains(t, out, "Authenticated servers")
		assert.Contains(t, out, "http://test-server:8080")
		assert.Contains(t, out, boundAddress)
		assert.Contains(t, out, "test-api...")
	})
}

func TestValidateAPIKey(t *testing.T) {
	srv := whoamiServer(t, "valid-key")

	t.Run("valid key", func(t *testing.T) {
		address, valid, err := validateAPIKey(srv.URL, "valid-key")
		require.NoError(t, err)
		assert.True(t, valid)
		assert.Equal(t, boundAddress, address)
	})

	t.Run("invalid key", func(t *testing.T) {
		_, valid, err := validateAPIKey(srv.URL, "invalid-key")
		require.NoError(t, err)
		assert.False(t, valid)
	})

	t.Run("server error treated as valid", func(t *testing.T) {
		failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer failing.Close()

		_, valid, err := validateAPIKey(failing.URL, "any-key")
		require.NoError(t, err)
		assert.True(t, valid)
	})

	t.Run("connection error", func(t *testing.T) {
		_, _, err := validateAPIKey("http://localhost:99999", "any-key")
		assert.Error(t, err)
	})
}

func TestCredentialPermissions(t *testing.T) {
	home := isolate(t)

	require.NoError(t, saveCredential("http://test:8080", ServerCredential{APIKey: "test-key"}))

	if os.Getenv("GOOS") == "windows" {
		t.Skip("permission bits differ on windows")
	}

	info, err := os.Stat(filepath.Join(home, ".revealer", "credentials"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	info, err = os.Stat(filepath.Join(home, ".revealer"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestCredentialOverwrite(t *testing.T) {
	isolate(t)

	serverURL := "http://test:8080"
	require.NoError(t, saveCredential(serverURL, ServerCredential{APIKey: "old-key"}))
	assert.Equal(t, "old-key", getCredential(serverURL))

	require.NoError(t, saveCredential(serverURL, ServerCredential{APIKey: "new-key"}))
	assert.Equal(t, "new-key", getCredential(serverURL))
}

func TestAuthCommandStructure(t *testing.T) {
	cmd := createAuthCmd()
	assert.Equal(t, "auth", cmd.Use)

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "login")
	assert.Contains(t, names, "logout")
	assert.Contains(t, names, "status")

	login := createAuthLoginCmd()
	assert.NotNil(t, login.Flags().Lookup("server"))
	assert.NotNil(t, login.Flags().Lookup("api-key"))
}
