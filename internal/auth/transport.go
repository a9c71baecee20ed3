package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/shop_client/internal/domain"
	"golang.org/x/sync/singleflight"
)

var ErrRefreshFailed = errors.New("token refresh failed")

// publicPaths need no bearer credential and never engage the refresh
// protocol. The refresh endpoint itself must be here or a 401 on it would
// recurse.
var publicPaths = []string{
	"/auth/login",
	"/auth/register",
	"/auth/verify-otp",
	"/auth/refresh",
	"/auth/forgot-password",
	"/auth/reset-password",
	"/products",
}

// Transport authorizes every outgoing request and recovers transparently
// from access-token expiry. On a 401 it refreshes the token pair and retries
// the original request exactly once; concurrent 401s share a single refresh
// call through singleflight, so at most one refresh is ever in flight.
type Transport struct {
	base       http.RoundTripper
	creds      CredentialStore
	refreshURL string
	sfg        singleflight.Group

	// refreshTimeout bounds the refresh call, which runs detached from any
	// single caller's context because its result is shared by all waiters.
	refreshTimeout time.Duration
}

func NewTransport(base http.RoundTripper, creds CredentialStore, refreshURL string) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:           base,
		creds:          creds,
		refreshURL:     refreshURL,
		refreshTimeout: 15 * time.Second,
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if isPublicPath(req.URL.Path) {
		return t.base.RoundTrip(req)
	}

	authReq := req
	pair, err := t.creds.Tokens(req.Context())
	if err != nil && !errors.Is(err, ErrNoCredentials) {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	if pair.AccessToken != "" {
		authReq = withBearer(req, pair.AccessToken)
	}

	resp, err := t.base.RoundTrip(authReq)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	accessToken, refreshErr := t.refresh()
	if refreshErr != nil {
		// Session is gone; the original 401 propagates untouched.
		return resp, nil
	}

	retry, retryErr := rewind(req)
	if retryErr != nil {
		return resp, nil
	}
	retry = withBearer(retry, accessToken)

	drain(resp)
	return t.base.RoundTrip(retry)
}

// refresh issues the refresh call, deduplicated across concurrent callers.
// Late arrivals during an in-flight refresh wait for its outcome instead of
// issuing their own call.
func (t *Transport) refresh() (string, error) {
	v, err, _ := t.sfg.Do("refresh", func() (interface{}, error) {
		token, err := t.doRefresh()
		if err != nil {
			// Terminal for the session: both tokens and the user id go.
			if clearErr := t.creds.Clear(context.Background()); clearErr != nil {
				log.Printf("failed to clear credentials after refresh failure: %v", clearErr)
			}
			return nil, err
		}
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (t *Transport) doRefresh() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.refreshTimeout)
	defer cancel()

	pair, err := t.creds.Tokens(ctx)
	if err != nil || pair.RefreshToken == "" {
		return "", fmt.Errorf("%w: no refresh token", ErrRefreshFailed)
	}

	body, err := json.Marshal(map[string]string{"refreshToken": pair.RefreshToken})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.refreshURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	// The bare transport, not t: the refresh call must bypass interception.
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrRefreshFailed, resp.StatusCode)
	}

	var next domain.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&next); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	if next.AccessToken == "" || next.RefreshToken == "" {
		return "", fmt.Errorf("%w: incomplete token pair", ErrRefreshFailed)
	}

	if err := t.creds.SetTokens(context.Background(), next); err != nil {
		return "", fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}
	return next.AccessToken, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// withBearer clones the request before attaching the credential; a
// RoundTripper must not mutate the caller's request.
func withBearer(req *http.Request, accessToken string) *http.Request {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+accessToken)
	return r
}

// rewind rebuilds the request with a fresh body so it can be sent again. The
// first attempt consumed the original body.
func rewind(req *http.Request) (*http.Request, error) {
	r := req.Clone(req.Context())
	if req.Body == nil {
		return r, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("failed to rewind request body: %w", err)
	}
	r.Body = body
	return r, nil
}

func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
