package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/config"
	apperrors "github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/errors"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/logger"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/metrics"
)

// Client queries the source marketplace's return/cancellation claims.
// The query surface is an idempotent GET; the same window may be fetched
// repeatedly without side effects.
type Client interface {
	FetchReturnEvents(ctx context.Context, from, to time.Time, opts FetchOptions) ([]ReturnEvent, error)
	MaxWindow() time.Duration
}

type client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	limiter      *rate.Limiter
	maxWindow    time.Duration
	logger       *logger.Logger
	metrics      *metrics.Metrics

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(cfg config.MarketplaceConfig, creds config.Credentials, log *logger.Logger, m *metrics.Metrics) Client {
	return &client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     creds.MarketplaceClientID,
		clientSecret: creds.MarketplaceClientSecret,
		httpClient:   &http.Client{Timeout: cfg.RequestTimeout},
		limiter:      rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		maxWindow:    time.Duration(cfg.MaxWindowHours) * time.Hour,
		logger:       log,
		metrics:      m,
	}
}

func (c *client) MaxWindow() time.Duration {
	return c.maxWindow
}

// FetchReturnEvents fetches all claims created in [from, to]. The window must
// not exceed MaxWindow; the collector splits longer windows before calling.
// On a mid-pagination failure the pages fetched so far are returned alongside
// the error, so callers can commit them before surfacing the failure.
func (c *client) FetchReturnEvents(ctx context.Context, from, to time.Time, opts FetchOptions) ([]ReturnEvent, error) {
	if to.Sub(from) > c.maxWindow {
		return nil, apperrors.BadRequest(fmt.Sprintf("window exceeds marketplace limit of %s", c.maxWindow), nil)
	}

	var events []ReturnEvent
	for page := 1; ; page++ {
		pageEvents, totalPages, err := c.fetchPage(ctx, from, to, opts, page)
		if err != nil {
			return events, err
		}
		events = append(events, pageEvents...)
		if page >= totalPages {
			break
		}
	}
	return events, nil
}

func (c *client) fetchPage(ctx context.Context, from, to time.Time, opts FetchOptions, page int) ([]ReturnEvent, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, apperrors.Transient("rate limiter wait interrupted", err)
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, 0, err
	}

	q := url.Values{}
	q.Set("createdFrom", from.UTC().Format(time.RFC3339))
	q.Set("createdTo", to.UTC().Format(time.RFC3339))
	q.Set("page", strconv.Itoa(page))
	if opts.ClaimType != "" {
		q.Set("claimType", string(opts.ClaimType))
	}
	if opts.ClaimStatus != "" {
		q.Set("claimStatus", opts.ClaimStatus)
	}

	endpoint := c.baseURL + "/v1/seller/claims?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, apperrors.Internal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.MarketplaceCalls.WithLabelValues("error").Inc()
		return nil, 0, apperrors.Transient("marketplace claims request failed", err)
	}
	defer resp.Body.Close()
	c.metrics.MarketplaceCalls.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		c.invalidateToken()
		return nil, 0, apperrors.Auth("marketplace token rejected", nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, 0, apperrors.Transient(fmt.Sprintf("marketplace returned status %d", resp.StatusCode), nil)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, 0, apperrors.Internal(fmt.Errorf("marketplace returned status %d: %s", resp.StatusCode, body))
	}

	var result claimsPage
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, 0, apperrors.Transient("failed to decode marketplace response", err)
	}

	c.logger.Debug("fetched marketplace claims page",
		"page", page, "total_pages", result.TotalPage, "events", len(result.Contents))

	totalPages := result.TotalPage
	if totalPages < 1 {
		totalPages = 1
	}
	return result.Contents, totalPages, nil
}

// token returns a cached client-credentials token, refreshing it when within
// a minute of expiry.
func (c *client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", apperrors.Internal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperrors.Transient("marketplace token request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", apperrors.Transient(fmt.Sprintf("marketplace token endpoint returned %d", resp.StatusCode), nil)
		}
		return "", apperrors.Auth(fmt.Sprintf("marketplace token endpoint returned %d", resp.StatusCode), nil)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", apperrors.Transient("failed to decode token response", err)
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

func (c *client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}
