package wing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/config"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/fulfillment"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/matcher"
	apperrors "github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/errors"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/logger"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/metrics"
)

const sessionKey = "wing:session"

// Client drives the Wing seller portal over its session-authenticated HTTP
// surface. A single Client holds a single shared session; callers must not
// run returns concurrently against the same seller account.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	redis      *redis.Client
	sessionTTL time.Duration
	logger     *logger.Logger
	metrics    *metrics.Metrics

	mu            sync.Mutex
	authenticated bool
}

func NewClient(cfg config.FulfillmentConfig, creds config.Credentials, rdb *redis.Client, log *logger.Logger, m *metrics.Metrics) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   creds.WingUsername,
		password:   creds.WingPassword,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout, Jar: jar},
		redis:      rdb,
		sessionTTL: cfg.SessionTTL,
		logger:     log,
		metrics:    m,
	}, nil
}

type storedSession struct {
	Cookies []storedCookie `json:"cookies"`
}

type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path"`
	Expires time.Time `json:"expires"`
}

// Authenticate reuses a still-valid session from Redis when possible and only
// falls back to a credential login. Login attempts are the scarce resource:
// the portal locks accounts that log in too often.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	if c.restoreSession(ctx) {
		if err := c.probeSession(ctx); err == nil {
			c.authenticated = true
			return nil
		}
	}

	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return apperrors.Internal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Transient("wing login request failed", err)
	}
	defer resp.Body.Close()
	c.metrics.FulfillmentCalls.WithLabelValues("login", strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusFound {
		if resp.StatusCode >= 500 {
			return apperrors.Transient(fmt.Sprintf("wing login returned %d", resp.StatusCode), nil)
		}
		return apperrors.Auth(fmt.Sprintf("wing login rejected with status %d", resp.StatusCode), nil)
	}

	c.authenticated = true
	c.metrics.SessionRefreshes.Inc()
	c.persistSession(ctx)
	c.logger.Info("wing session established")
	return nil
}

// probeSession makes a cheap authenticated call to check the restored session
// is still alive.
func (c *Client) probeSession(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/seller/me", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("session probe returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) restoreSession(ctx context.Context) bool {
	if c.redis == nil {
		return false
	}
	raw, err := c.redis.Get(ctx, sessionKey).Bytes()
	if err != nil {
		return false
	}
	var stored storedSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return false
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	cookies := make([]*http.Cookie, 0, len(stored.Cookies))
	for _, sc := range stored.Cookies {
		cookies = append(cookies, &http.Cookie{
			Name:    sc.Name,
			Value:   sc.Value,
			Path:    sc.Path,
			Expires: sc.Expires,
		})
	}
	c.httpClient.Jar.SetCookies(base, cookies)
	return len(cookies) > 0
}

func (c *Client) persistSession(ctx context.Context) {
	if c.redis == nil {
		return
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return
	}
	var stored storedSession
	for _, ck := range c.httpClient.Jar.Cookies(base) {
		stored.Cookies = append(stored.Cookies, storedCookie{
			Name:    ck.Name,
			Value:   ck.Value,
			Path:    ck.Path,
			Expires: ck.Expires,
		})
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, sessionKey, raw, c.sessionTTL).Err(); err != nil {
		c.logger.Warn("failed to persist wing session", "error", err.Error())
	}
}

// doAuthed runs an authenticated request, transparently re-establishing the
// session and replaying once when the portal signals expiry.
func (c *Client) doAuthed(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	c.mu.Lock()
	if !c.authenticated {
		if err := c.authenticateLocked(ctx); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	c.mu.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		req, err := build()
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, apperrors.Transient("wing request failed", err)
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			resp.Body.Close()
			if attempt == 1 {
				return nil, apperrors.Auth("wing session expired and re-login failed", nil)
			}
			c.mu.Lock()
			c.authenticated = false
			err := c.authenticateLocked(ctx)
			c.mu.Unlock()
			if err != nil {
				return nil, err
			}
			continue
		}
		return resp, nil
	}
	return nil, apperrors.Auth("wing session could not be established", nil)
}

type transactionItem struct {
	ID             string `json:"id"`
	ProductLabel   string `json:"productLabel"`
	RecipientLabel string `json:"recipientLabel"`
	ReturnFiled    bool   `json:"returnFiled"`
}

type transactionsPage struct {
	Items []transactionItem `json:"items"`
}

// ListTransactions pages through the seller's transaction history,
// most-recent-first. An empty slice signals the end of the history.
func (c *Client) ListTransactions(ctx context.Context, page int) ([]matcher.Candidate, error) {
	resp, err := c.doAuthed(ctx, func() (*http.Request, error) {
		endpoint := fmt.Sprintf("%s/api/seller/transactions?page=%d&sort=recent", c.baseURL, page)
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	c.metrics.FulfillmentCalls.WithLabelValues("list_transactions", strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return nil, apperrors.Transient(fmt.Sprintf("wing transaction listing returned %d", resp.StatusCode), nil)
		}
		return nil, apperrors.SurfaceDrift(fmt.Sprintf("wing transaction listing returned %d", resp.StatusCode), nil)
	}

	var result transactionsPage
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.SurfaceDrift("wing transaction listing shape changed", err)
	}

	candidates := make([]matcher.Candidate, 0, len(result.Items))
	for _, item := range result.Items {
		candidates = append(candidates, matcher.Candidate{
			TransactionID: item.ID,
			Product:       item.ProductLabel,
			Recipient:     item.RecipientLabel,
			ReturnFiled:   item.ReturnFiled,
		})
	}
	return candidates, nil
}

// interactionPoint is one known way to reach a step of the return sequence.
// The portal renames endpoints and payload fields between deployments, so
// each step tries an ordered list before declaring the step unreachable.
type interactionPoint struct {
	path    string
	payload func(req fulfillment.ReturnRequest) map[string]string
}

var reasonSteps = []interactionPoint{
	{
		path: "/api/seller/transactions/%s/return/reason",
		payload: func(req fulfillment.ReturnRequest) map[string]string {
			return map[string]string{"reasonCategory": req.ReasonCategory}
		},
	},
	{
		path: "/api/seller/returns/%s/reason",
		payload: func(req fulfillment.ReturnRequest) map[string]string {
			return map[string]string{"reason": req.ReasonCategory}
		},
	},
}

var submitSteps = []interactionPoint{
	{path: "/api/seller/transactions/%s/return/submit"},
	{path: "/api/seller/returns/%s/submit"},
	{path: "/api/seller/transactions/%s/return"},
}

var confirmSteps = []interactionPoint{
	{path: "/api/seller/transactions/%s/return/confirm"},
	{path: "/api/seller/returns/%s/confirm"},
}

// SubmitReturn executes the return action: select reason, submit, confirm.
// The sequence is not idempotent; the processor must verify external state
// before replaying a record whose prior attempt outcome is unknown.
func (c *Client) SubmitReturn(ctx context.Context, req fulfillment.ReturnRequest) error {
	start := time.Now()
	defer func() {
		c.metrics.ActuatorLatency.Observe(time.Since(start).Seconds())
	}()

	if err := c.step(ctx, "select_reason", reasonSteps, req); err != nil {
		return err
	}
	if err := c.step(ctx, "submit", submitSteps, req); err != nil {
		return err
	}
	if err := c.step(ctx, "confirm", confirmSteps, req); err != nil {
		return err
	}
	c.logger.Info("return filed on wing", "transaction_id", req.Transaction.TransactionID)
	return nil
}

// step tries each interaction point in order. A 404 or 400 means this variant
// is gone from the surface; anything else is a real outcome for the step.
func (c *Client) step(ctx context.Context, name string, points []interactionPoint, req fulfillment.ReturnRequest) error {
	var lastStatus int
	for _, point := range points {
		payload := map[string]string{}
		if point.payload != nil {
			payload = point.payload(req)
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return apperrors.Internal(err)
		}

		endpoint := c.baseURL + fmt.Sprintf(point.path, url.PathEscape(req.Transaction.TransactionID))
		resp, err := c.doAuthed(ctx, func() (*http.Request, error) {
			r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			r.Header.Set("Content-Type", "application/json")
			return r, nil
		})
		if err != nil {
			return err
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		c.metrics.FulfillmentCalls.WithLabelValues(name, strconv.Itoa(resp.StatusCode)).Inc()

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
			c.logger.Debug("return step succeeded", "step", name, "endpoint", endpoint)
			return nil
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
			// This variant no longer exists on the surface; try the next one.
			lastStatus = resp.StatusCode
			continue
		case resp.StatusCode >= 500:
			return apperrors.Transient(fmt.Sprintf("wing %s step returned %d", name, resp.StatusCode), nil)
		default:
			return apperrors.SurfaceDrift(fmt.Sprintf("wing %s step returned unexpected status %d", name, resp.StatusCode), nil)
		}
	}
	c.metrics.SurfaceDriftErrors.Inc()
	return apperrors.SurfaceDrift(fmt.Sprintf("no known interaction point for %s step (last status %d)", name, lastStatus), nil)
}

type transactionDetail struct {
	ID          string `json:"id"`
	ReturnFiled bool   `json:"returnFiled"`
}

// VerifyReturned re-queries a single transaction, used as the duplicate-action
// guard before any replay of SubmitReturn.
func (c *Client) VerifyReturned(ctx context.Context, transactionID string) (bool, error) {
	resp, err := c.doAuthed(ctx, func() (*http.Request, error) {
		endpoint := c.baseURL + "/api/seller/transactions/" + url.PathEscape(transactionID)
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	c.metrics.FulfillmentCalls.WithLabelValues("verify", strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return false, apperrors.Transient(fmt.Sprintf("wing verify returned %d", resp.StatusCode), nil)
		}
		return false, apperrors.SurfaceDrift(fmt.Sprintf("wing verify returned %d", resp.StatusCode), nil)
	}

	var detail transactionDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return false, apperrors.SurfaceDrift("wing transaction detail shape changed", err)
	}
	return detail.ReturnFiled, nil
}
