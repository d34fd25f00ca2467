// Package opensky talks to the OpenSky Network REST API: OAuth2 client
// credentials tokens and the per-aircraft flight history used to infer
// departure and arrival airports.
package opensky

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

// DefaultTokenURL is the OpenSky OAuth2 token endpoint.
const DefaultTokenURL = "https://auth.opensky-network.org/auth/realms/opensky-network/protocol/openid-connect/token"

// expirySafetyMargin is subtracted from expires_in so a token is never used
// in the last minute of its life.
const expirySafetyMargin = 60 * time.Second

// defaultTokenLifetime is assumed when the server does not say how long a
// token lives. OpenSky issues 30 minute tokens.
const defaultTokenLifetime = 30 * time.Minute

// ErrNoToken is returned when no bearer token could be obtained. Callers are
// expected to continue unauthenticated.
var ErrNoToken = errors.New("opensky: no access token")

// TokenManager caches a single client-credentials access token.
//
// The zero state is Empty. A successful exchange moves it to Valid until the
// expiry instant passes; any failure or Reset returns it to Empty. Concurrent
// refreshes are collapsed into one exchange.
type TokenManager struct {
	cfg        clientcredentials.Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// TokenOption customizes a TokenManager.
type TokenOption func(*TokenManager)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) { m.now = now }
}

// WithHTTPClient sets the client used for the token exchange.
func WithHTTPClient(c *http.Client) TokenOption {
	return func(m *TokenManager) { m.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) TokenOption {
	return func(m *TokenManager) { m.logger = l }
}

// NewTokenManager creates a manager for the given client credentials. An
// empty tokenURL selects DefaultTokenURL.
func NewTokenManager(clientID, clientSecret, tokenURL string, opts ...TokenOption) *TokenManager {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	m := &TokenManager{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Configured reports whether credentials are present.
func (m *TokenManager) Configured() bool {
	return m != nil && m.cfg.ClientID != "" && m.cfg.ClientSecret != ""
}

// Token returns a valid bearer token, exchanging credentials if the cached
// one is missing or expired.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	if !m.Configured() {
		return "", fmt.Errorf("%w: credentials not configured", ErrNoToken)
	}

	m.mu.Lock()
	if m.token != "" && m.now().Before(m.expiresAt) {
		token := m.token
		m.mu.Unlock()
		return token, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do("token", func() (interface{}, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Reset drops the cached token. Used after the upstream rejects it.
func (m *TokenManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.expiresAt = time.Time{}
}

// ExpiresAt returns the expiry of the cached token, zero when Empty.
func (m *TokenManager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiresAt
}

func (m *TokenManager) refresh(ctx context.Context) (string, error) {
	requested := m.now()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	tok, err := m.cfg.Token(ctx)
	if err == nil && tok.AccessToken == "" {
		err = errors.New("token response without access_token")
	}
	if err != nil {
		m.Reset()
		m.logger.Error("OpenSky token exchange failed", slog.Any("error", err))
		return "", fmt.Errorf("%w: %v", ErrNoToken, err)
	}

	lifetime, ok := expiresIn(tok)
	if !ok {
		m.logger.Warn("OpenSky token response without a lifetime",
			slog.Duration("assumed", defaultTokenLifetime))
		lifetime = defaultTokenLifetime
	}
	expiresAt := requested.Add(lifetime - expirySafetyMargin)

	m.mu.Lock()
	m.token = tok.AccessToken
	m.expiresAt = expiresAt
	m.mu.Unlock()

	m.logger.Debug("OpenSky token refreshed", slog.Time("expires_at", expiresAt))
	return tok.AccessToken, nil
}

// expiresIn reads the lifetime the server granted. The raw expires_in field
// is preferred over Expiry, which oauth2 computes against the wall clock.
// ok is false when the response carries no usable lifetime.
func expiresIn(tok *oauth2.Token) (d time.Duration, ok bool) {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		d = time.Duration(v) * time.Second
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			d = time.Duration(n) * time.Second
		}
	}
	if d <= 0 && !tok.Expiry.IsZero() {
		d = time.Until(tok.Expiry)
	}
	if d <= 0 {
		return 0, false
	}
	return d, true
}
