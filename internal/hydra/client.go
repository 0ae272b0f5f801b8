// Package hydra talks to the external authorization server's admin API for
// login/consent challenges and session revocation.
package hydra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/swaptacular/accountd/internal/limiters"
)

var (
	// ErrUnavailable indicates the authorization server timed out or
	// answered outside 2xx. Fatal for the current request: a login is never
	// marked accepted without a confirmed redirect URL.
	ErrUnavailable = errors.New("authorization server unavailable")
)

// LoginRequest is the state of one pending login challenge.
type LoginRequest struct {
	Skip    bool   `json:"skip"`
	Subject string `json:"subject"`
}

// ConsentRequest is the state of one pending consent challenge.
type ConsentRequest struct {
	Skip           bool     `json:"skip"`
	Subject        string   `json:"subject"`
	RequestedScope []string `json:"requested_scope"`
}

type redirectResponse struct {
	RedirectTo string `json:"redirect_to"`
}

// Client is a stateless wrapper around the admin challenge endpoints, with
// the monthly login-quota guard applied on login acceptance.
type Client struct {
	adminURL string
	http     *http.Client
	quota    *limiters.LoginQuota
}

// New creates a Client. Every call is bounded by timeout.
func New(adminURL string, timeout time.Duration, quota *limiters.LoginQuota) *Client {
	return &Client{
		adminURL: adminURL,
		http:     &http.Client{Timeout: timeout},
		quota:    quota,
	}
}

// GetLoginRequest fetches the login challenge. Skip==true means the
// authorization server already knows the subject and local authentication
// can be short-circuited.
func (c *Client) GetLoginRequest(ctx context.Context, challenge string) (*LoginRequest, error) {
	var req LoginRequest
	err := c.do(ctx, http.MethodGet,
		"/oauth2/auth/requests/login", url.Values{"login_challenge": {challenge}}, nil, &req)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// AcceptLogin bumps the subject's monthly quota and either accepts the
// challenge or, over the cap, rejects it with an explicable reason. It
// returns the redirect URL to send the browser to and whether the login was
// actually accepted.
func (c *Client) AcceptLogin(ctx context.Context, challenge, subject string, remember bool, rememberFor time.Duration) (string, bool, error) {
	if c.quota != nil {
		allowed, err := c.quota.Allow(ctx, subject)
		if err != nil {
			return "", false, err
		}
		if !allowed {
			redirect, err := c.RejectLogin(ctx, challenge, "request_denied", "monthly login quota exceeded")
			return redirect, false, err
		}
	}

	body := map[string]any{
		"subject":  subject,
		"remember": remember,
	}
	if remember {
		body["remember_for"] = int(rememberFor.Seconds())
	}

	var resp redirectResponse
	err := c.do(ctx, http.MethodPut,
		"/oauth2/auth/requests/login/accept", url.Values{"login_challenge": {challenge}}, body, &resp)
	if err != nil {
		return "", false, err
	}
	return resp.RedirectTo, true, nil
}

// RejectLogin rejects the login challenge and returns the redirect URL.
func (c *Client) RejectLogin(ctx context.Context, challenge, reason, description string) (string, error) {
	body := map[string]any{
		"error":             reason,
		"error_description": description,
	}

	var resp redirectResponse
	err := c.do(ctx, http.MethodPut,
		"/oauth2/auth/requests/login/reject", url.Values{"login_challenge": {challenge}}, body, &resp)
	if err != nil {
		return "", err
	}
	return resp.RedirectTo, nil
}

// GetConsentRequest fetches the consent challenge.
func (c *Client) GetConsentRequest(ctx context.Context, challenge string) (*ConsentRequest, error) {
	var req ConsentRequest
	err := c.do(ctx, http.MethodGet,
		"/oauth2/auth/requests/consent", url.Values{"consent_challenge": {challenge}}, nil, &req)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// AcceptConsent grants the given scopes and returns the redirect URL.
func (c *Client) AcceptConsent(ctx context.Context, challenge string, grantScope []string, remember bool, rememberFor time.Duration) (string, error) {
	body := map[string]any{
		"grant_scope": grantScope,
		"remember":    remember,
	}
	if remember {
		body["remember_for"] = int(rememberFor.Seconds())
	}

	var resp redirectResponse
	err := c.do(ctx, http.MethodPut,
		"/oauth2/auth/requests/consent/accept", url.Values{"consent_challenge": {challenge}}, body, &resp)
	if err != nil {
		return "", err
	}
	return resp.RedirectTo, nil
}

// RejectConsent rejects the consent challenge and returns the redirect URL.
func (c *Client) RejectConsent(ctx context.Context, challenge, reason, description string) (string, error) {
	body := map[string]any{
		"error":             reason,
		"error_description": description,
	}

	var resp redirectResponse
	err := c.do(ctx, http.MethodPut,
		"/oauth2/auth/requests/consent/reject", url.Values{"consent_challenge": {challenge}}, body, &resp)
	if err != nil {
		return "", err
	}
	return resp.RedirectTo, nil
}

// RevokeLoginSessions invalidates every authorization-server session of the
// subject. Used when a password change forces logout of all devices.
func (c *Client) RevokeLoginSessions(ctx context.Context, subject string) error {
	return c.do(ctx, http.MethodDelete,
		"/oauth2/auth/sessions/login", url.Values{"subject": {subject}}, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.adminURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s %s returned %d", ErrUnavailable, method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}
