// Package auth exchanges a Lookout application key for short-lived bearer
// credentials and keeps them fresh.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/canopysec/lookoutstream/internal/httpclient"
)

const (
	// DefaultBaseURL is the production Lookout API host.
	DefaultBaseURL = "https://api.lookout.com"

	tokenPath = "/oauth2/token"

	// defaultMargin keeps a credential from being used so close to expiry
	// that it could lapse mid-request.
	defaultMargin = 30 * time.Second
)

// Error reports a failed credential acquisition or a rejected key.
// Acquisition failures are permanent: retrying without a different
// application key cannot succeed.
type Error struct {
	Status  int
	Message string
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.wrapped)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.wrapped }

// Credential is a bearer token with its expiry. Replaced wholesale on
// refresh, never mutated.
type Credential struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// Valid reports whether the credential is usable at the given instant,
// leaving the safety margin before expiry.
func (c Credential) Valid(now time.Time, margin time.Duration) bool {
	if c.AccessToken == "" {
		return false
	}
	return now.Before(c.ExpiresAt.Add(-margin))
}

// Option configures a Provider.
type Option func(*options)

type options struct {
	baseURL    string
	httpClient *http.Client
	margin     time.Duration
	now        func() time.Time
}

// WithBaseURL overrides the token endpoint host.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithHTTPClient provides a custom HTTP client for the token exchange.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithMargin overrides the expiry safety margin.
func WithMargin(d time.Duration) Option {
	return func(o *options) { o.margin = d }
}

// WithClock overrides the wall clock. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Provider owns the credential lifecycle. It is safe for concurrent use;
// callers always receive a complete Credential value, never a torn one.
type Provider struct {
	appKey string
	opts   options

	mu   sync.Mutex
	cred Credential
}

// New constructs a Provider for the given application key.
func New(appKey string, opts ...Option) *Provider {
	o := options{
		baseURL: DefaultBaseURL,
		margin:  defaultMargin,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = httpclient.New(httpclient.WithTimeout(30 * time.Second))
	}
	return &Provider{appKey: appKey, opts: o}
}

// Token returns a valid credential, transparently acquiring a new one when
// the cached credential is absent or within the safety margin of expiry.
func (p *Provider) Token(ctx context.Context) (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cred.Valid(p.opts.now(), p.opts.margin) {
		return p.cred, nil
	}
	cred, err := p.acquire(ctx)
	if err != nil {
		return Credential{}, err
	}
	p.cred = cred
	return cred, nil
}

// Invalidate discards the cached credential so the next Token call
// re-acquires. The session manager calls this after a 401-class rejection
// on the stream itself.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.cred = Credential{}
	p.mu.Unlock()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (p *Provider) acquire(ctx context.Context) (Credential, error) {
	if strings.TrimSpace(p.appKey) == "" {
		return Credential{}, &Error{Message: "application key is missing"}
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	endpoint := strings.TrimRight(p.opts.baseURL, "/") + tokenPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, &Error{Message: "build token request", wrapped: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.appKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.opts.httpClient.Do(req)
	if err != nil {
		return Credential{}, &Error{Message: "token exchange failed", wrapped: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Credential{}, &Error{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("token endpoint rejected application key: %s: %s", resp.Status, body),
		}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return Credential{}, &Error{Message: "decode token response", wrapped: err}
	}
	if tr.AccessToken == "" {
		return Credential{}, &Error{Message: "token response missing access_token"}
	}

	expiresAt := p.expiry(tr)
	return Credential{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType,
		ExpiresAt:   expiresAt,
	}, nil
}

// expiry resolves the credential lifetime. The vendor documents an
// absolute expires_at epoch; expires_in seconds is accepted as the common
// OAuth2 fallback.
func (p *Provider) expiry(tr tokenResponse) time.Time {
	if tr.ExpiresAt > 0 {
		return time.Unix(tr.ExpiresAt, 0)
	}
	if tr.ExpiresIn > 0 {
		return p.opts.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	// No lifetime given; assume an hour and let 401 handling correct us.
	return p.opts.now().Add(time.Hour)
}
