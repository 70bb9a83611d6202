package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/edgard/cupidbot/internal/logger"
	"github.com/edgard/cupidbot/internal/model"
)

const (
	breakerMaxFailures = 5
	breakerInterval    = time.Minute
	breakerCooldown    = 30 * time.Second
)

// apiClient is the HTTP and session plumbing shared by the platforms.
type apiClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	creds      *CredentialStore
	authHeader func(token string) (key, value string)
	now        func() time.Time
	log        *slog.Logger
	breaker    *gobreaker.CircuitBreaker

	mu      sync.RWMutex
	session Credentials
}

func newAPIClient(name, baseURL string, httpClient *http.Client, creds *CredentialStore, log *slog.Logger,
	authHeader func(string) (string, string),
) *apiClient {
	c := &apiClient{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		creds:      creds,
		authHeader: authHeader,
		now:        time.Now,
		log:        logger.OrDiscard(log).With("component", "platform", "platform", name),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    breakerInterval,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
		// Auth and not-found answers mean the platform is up.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, model.ErrNotAuthenticated) ||
				errors.Is(err, model.ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("Platform circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})
	if creds != nil {
		c.session = creds.Load(name)
	}
	return c
}

func (c *apiClient) Name() string { return c.name }

func (c *apiClient) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.Valid(c.now())
}

func (c *apiClient) currentSession() Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// storeSession installs a new session. A keyring failure keeps the
// in-memory session and is only logged.
func (c *apiClient) storeSession(ctx context.Context, s Credentials) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	if c.creds == nil {
		return
	}
	if err := c.creds.Save(c.name, s); err != nil {
		c.log.WarnContext(ctx, "Session not persisted", "error", err)
	}
}

// call performs an authenticated request.
func (c *apiClient) call(ctx context.Context, method, path string, query url.Values, in, out any) error {
	s := c.currentSession()
	if !s.Valid(c.now()) {
		return fmt.Errorf("%s: %w", c.name, model.ErrNotAuthenticated)
	}
	return c.callWithToken(ctx, s.Token, method, path, query, in, out)
}

// callWithToken performs a request with an explicit token; an empty token
// sends no auth header. After repeated server or transport failures the
// platform's breaker opens and calls fail fast until the cooldown ends.
func (c *apiClient) callWithToken(ctx context.Context, token, method, path string, query url.Values, in, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.do(ctx, token, method, path, query, in, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s %s: platform %s unavailable: %w", method, path, c.name, err)
	}
	return err
}

func (c *apiClient) do(ctx context.Context, token, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(c.authHeader(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, model.ErrNotAuthenticated)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, model.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, logger.Truncate(string(snippet), 200))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func limitQuery(key string, limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	return url.Values{key: []string{fmt.Sprint(limit)}}
}
