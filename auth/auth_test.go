package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, calls *atomic.Int32, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/oauth2/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer app-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
			t.Errorf("unexpected grant_type %q", r.PostForm.Get("grant_type"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenAcquireAndCache(t *testing.T) {
	var calls atomic.Int32
	expiresAt := time.Now().Add(time.Hour).Unix()
	srv := tokenServer(t, &calls, http.StatusOK,
		fmt.Sprintf(`{"access_token":"tok-1","token_type":"Bearer","expires_at":%d}`, expiresAt))

	p := New("app-key", WithBaseURL(srv.URL))

	cred, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", cred.AccessToken)
	assert.Equal(t, "Bearer", cred.TokenType)
	assert.Equal(t, time.Unix(expiresAt, 0), cred.ExpiresAt)

	// Second call is served from the cached credential.
	_, err = p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTokenRefreshInsideSafetyMargin(t *testing.T) {
	var calls atomic.Int32
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	now := base
	srv := tokenServer(t, &calls, http.StatusOK,
		`{"access_token":"tok","token_type":"Bearer","expires_in":60}`)

	p := New("app-key",
		WithBaseURL(srv.URL),
		WithMargin(30*time.Second),
		WithClock(func() time.Time { return now }),
	)

	_, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	// Still comfortably inside the credential lifetime.
	now = base.Add(20 * time.Second)
	_, err = p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	// Within 30s of expiry: the provider must refresh rather than race it.
	now = base.Add(31 * time.Second)
	_, err = p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestInvalidateForcesReacquire(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls, http.StatusOK,
		`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`)

	p := New("app-key", WithBaseURL(srv.URL))

	_, err := p.Token(context.Background())
	require.NoError(t, err)

	p.Invalidate()

	_, err = p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMissingApplicationKey(t *testing.T) {
	p := New("   ")

	_, err := p.Token(context.Background())
	var ae *Error
	require.True(t, errors.As(err, &ae), "expected *auth.Error, got %v", err)
	assert.Contains(t, ae.Message, "application key")
}

func TestRejectedApplicationKey(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	p := New("app-key", WithBaseURL(srv.URL))

	_, err := p.Token(context.Background())
	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusUnauthorized, ae.Status)
}

func TestTokenResponseMissingAccessToken(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls, http.StatusOK, `{"token_type":"Bearer"}`)

	p := New("app-key", WithBaseURL(srv.URL))

	_, err := p.Token(context.Background())
	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Contains(t, ae.Message, "access_token")
}

func TestCredentialValid(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cred := Credential{AccessToken: "tok", ExpiresAt: now.Add(time.Minute)}

	assert.True(t, cred.Valid(now, 30*time.Second))
	assert.False(t, cred.Valid(now.Add(31*time.Second), 30*time.Second))
	assert.False(t, Credential{}.Valid(now, 0))
}
