package lapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/proctorline/relay/internal/domain"
	"github.com/proctorline/relay/internal/ports"
)

const contentType = "application/json; charset=utf-8"

// TokenSource yields the current access token for request authorisation.
type TokenSource interface {
	Access() string
}

// TokenSourceFunc adapts a plain function to the TokenSource interface.
type TokenSourceFunc func() string

func (f TokenSourceFunc) Access() string { return f() }

// Config tunes the HTTP client for the collection API.
type Config struct {
	BaseURL        string
	HTTPClient     *http.Client
	SubmitRetries  int
	RefreshRetries int
	RetryWait      time.Duration
}

// Client speaks the collection API: sample/alert submission, validation
// status lookup and token refresh. Failed requests are retried a bounded
// number of times with a short fixed wait; the delivery cycle provides the
// longer-term retry cadence, so no backoff growth happens here.
type Client struct {
	base           string
	http           *http.Client
	tokens         TokenSource
	submitRetries  int
	refreshRetries int
	retryWait      time.Duration
}

func New(cfg Config, tokens TokenSource) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("lapi: base URL is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("lapi: token source is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.SubmitRetries < 0 {
		cfg.SubmitRetries = 0
	}
	if cfg.RefreshRetries < 0 {
		cfg.RefreshRetries = 0
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 250 * time.Millisecond
	}
	return &Client{
		base:           strings.TrimRight(cfg.BaseURL, "/"),
		http:           hc,
		tokens:         tokens,
		submitRetries:  cfg.SubmitRetries,
		refreshRetries: cfg.RefreshRetries,
		retryWait:      cfg.RetryWait,
	}, nil
}

type submitResponse struct {
	Status string         `json:"status"`
	Path   string         `json:"path"`
	Errors map[string]any `json:"errors"`
}

type statusRequest struct {
	LearnerID string   `json:"learner_id"`
	Samples   []string `json:"samples"`
}

type refreshRequest struct {
	Token string `json:"token"`
}

type refreshResponse struct {
	Token domain.Credential `json:"token"`
}

// Submit delivers one queued sample or alert and returns the tracking path
// the server assigned to it.
func (c *Client) Submit(ctx context.Context, sub *domain.Submission) (string, error) {
	url := fmt.Sprintf("%s/lapi/v1/%s/%d/%s/", c.base, sub.Kind, sub.InstitutionID, sub.LearnerID)
	var resp submitResponse
	if err := c.post(ctx, url, "JWT "+c.tokens.Access(), []byte(sub.Body), &resp, c.submitRetries); err != nil {
		return "", err
	}
	if resp.Path == "" {
		return "", fmt.Errorf("lapi: submission accepted without a tracking path")
	}
	return resp.Path, nil
}

// SampleStatus asks the server for the validation verdict of previously
// delivered samples, identified by their tracking paths.
func (c *Client) SampleStatus(ctx context.Context, institutionID int, learnerID string, samples []string) ([]domain.StatusResult, error) {
	url := fmt.Sprintf("%s/lapi/v1/status/%d/%s/", c.base, institutionID, learnerID)
	body, err := json.Marshal(statusRequest{LearnerID: learnerID, Samples: samples})
	if err != nil {
		return nil, err
	}
	var results []domain.StatusResult
	if err := c.post(ctx, url, "JWT "+c.tokens.Access(), body, &results, 0); err != nil {
		return nil, err
	}
	return results, nil
}

// RefreshCredential exchanges the current pair for a fresh one. The refresh
// token authorises the call; the access token travels in the body.
func (c *Client) RefreshCredential(ctx context.Context, cred domain.Credential) (domain.Credential, error) {
	url := c.base + "/api/v2/auth/token/refresh"
	body, err := json.Marshal(refreshRequest{Token: cred.AccessToken})
	if err != nil {
		return domain.Credential{}, err
	}
	var resp refreshResponse
	if err := c.post(ctx, url, "JWT "+cred.RefreshToken, body, &resp, c.refreshRetries); err != nil {
		return domain.Credential{}, err
	}
	if resp.Token.AccessToken == "" {
		return domain.Credential{}, fmt.Errorf("lapi: refresh response missing access token")
	}
	return resp.Token, nil
}

// StatusError reports a non-2xx response. All HTTP failures are treated as
// transient by callers: auth problems resolve through proactive token
// refresh, and anything else is retried on the next cycle.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("lapi: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("lapi: unexpected status %d: %s", e.Code, e.Body)
}

func (c *Client) post(ctx context.Context, url, auth string, body []byte, out any, retries int) error {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryWait):
			}
		}
		lastErr = c.doPost(ctx, url, auth, body, out)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) doPost(ctx context.Context, url, auth string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("lapi: decode response: %w", err)
	}
	return nil
}

var _ ports.Transport = (*Client)(nil)
