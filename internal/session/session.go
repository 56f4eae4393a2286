// Package session manages the access/refresh JWT lifecycle used by
// every outbound caller (report agent, list manager). Tokens are issued
// by the upstream PDS; this package only parses their expiry claim, it
// never verifies a signature, since these are not tokens this system
// issues.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atscope/modguard/internal/httpx"
	"github.com/atscope/modguard/pkg/mlog"
	"github.com/golang-jwt/jwt/v5"
)

// AccessExpiryBuffer is how far ahead of actual expiry CheckRefresh
// proactively renews the access token.
const AccessExpiryBuffer = 2 * time.Minute

const refreshRetryDelay = 5 * time.Second

// Kind classifies a refresh failure.
type Kind string

const (
	KindAuthFailed Kind = "auth-failed"
	KindTransient  Kind = "transient"
)

// RefreshError wraps a failed session refresh with its Kind.
type RefreshError struct {
	Kind Kind
	Err  error
}

func (e *RefreshError) Error() string { return fmt.Sprintf("session: %s: %v", e.Kind, e.Err) }
func (e *RefreshError) Unwrap() error { return e.Err }

// Credentials identifies and authenticates a new session.
type Credentials struct {
	Identifier string
	Password   string
}

type tokens struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
}

// Session owns one PDS session's tokens and is safe for concurrent use:
// CheckRefresh is expected to be called from any worker goroutine.
type Session struct {
	mu            sync.RWMutex
	client        *httpx.Client
	creds         Credentials
	tok           tokens
	accessExpiry  time.Time
	refreshExpiry time.Time
}

// New constructs a Session bound to client; call Connect before use.
func New(client *httpx.Client, creds Credentials) *Session {
	return &Session{client: client, creds: creds}
}

// Connect establishes the initial session, retrying up to httpx.MaxRetries
// times with a fixed delay on transient failure.
func (s *Session) Connect(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt <= httpx.MaxRetries; attempt++ {
		var tok tokens
		err := s.client.Post(ctx, "com.atproto.server.createSession", map[string]string{
			"identifier": s.creds.Identifier,
			"password":   s.creds.Password,
		}, &tok)
		if err == nil {
			return s.storeTokens(tok)
		}
		mlog.Errorf("session: create-session failed: %v, retry %d/%d", err, attempt+1, httpx.MaxRetries)
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(refreshRetryDelay):
		}
	}
	return &RefreshError{Kind: KindAuthFailed, Err: lastErr}
}

// CheckRefresh refreshes the access token if it is within
// AccessExpiryBuffer of expiring. Safe to call frequently from any
// worker.
func (s *Session) CheckRefresh(ctx context.Context) error {
	s.mu.RLock()
	timeToExpiry := time.Until(s.accessExpiry)
	refreshJwt := s.tok.RefreshJwt
	s.mu.RUnlock()

	if timeToExpiry >= AccessExpiryBuffer {
		return nil
	}
	mlog.Infof("session: refreshing access token, expiry in %s", timeToExpiry)

	var lastErr error
	for attempt := 0; attempt <= httpx.MaxRetries; attempt++ {
		s.client.SetHeader("Authorization", "Bearer "+refreshJwt)
		var tok tokens
		err := s.client.Post(ctx, "com.atproto.server.refreshSession", struct{}{}, &tok)
		s.client.ClearHeader("Authorization")
		if err == nil {
			return s.storeTokens(tok)
		}
		mlog.Errorf("session: refresh-session failed: %v, retry %d/%d", err, attempt+1, httpx.MaxRetries)
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(refreshRetryDelay):
		}
	}
	return &RefreshError{Kind: KindTransient, Err: lastErr}
}

func (s *Session) storeTokens(tok tokens) error {
	accessExpiry, err := expiryOf(tok.AccessJwt)
	if err != nil {
		return &RefreshError{Kind: KindAuthFailed, Err: err}
	}
	refreshExpiry, err := expiryOf(tok.RefreshJwt)
	if err != nil {
		return &RefreshError{Kind: KindAuthFailed, Err: err}
	}

	s.mu.Lock()
	s.tok = tok
	s.accessExpiry = accessExpiry
	s.refreshExpiry = refreshExpiry
	s.mu.Unlock()

	mlog.Infof("session: access token expires at %s, refresh token at %s", accessExpiry, refreshExpiry)
	return nil
}

// AccessToken returns the current bearer token for use in request
// headers.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tok.AccessJwt
}

// AccessExpiry returns the current access token's expiry time.
func (s *Session) AccessExpiry() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessExpiry
}

var jwtParser = jwt.NewParser()

// expiryOf extracts the "exp" claim without verifying signature: the
// token was obtained over an authenticated HTTPS call to the upstream
// service, which already vouches for it.
func expiryOf(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	_, _, err := jwtParser.ParseUnverified(raw, claims)
	if err != nil {
		return time.Time{}, fmt.Errorf("session: parse token claims: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("session: missing exp claim: %w", err)
	}
	return exp.Time, nil
}
