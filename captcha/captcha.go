// Package captcha verifies CAPTCHA solutions through the reCAPTCHA
// siteverify endpoint. The flows consume only the Result; rendering the
// challenge widget belongs to the presentation layer.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrUnavailable indicates the verification endpoint could not be
	// reached. Fatal for the current request.
	ErrUnavailable = errors.New("captcha verifier unavailable")
)

// Result is the outcome of one verification.
type Result struct {
	Valid   bool
	Message string // set when Valid is false, suitable for re-rendering the form
}

// Verifier checks a user-submitted CAPTCHA solution.
type Verifier interface {
	Verify(ctx context.Context, response, remoteIP string) (Result, error)
}

// ReCAPTCHA verifies solutions against the Google siteverify API.
type ReCAPTCHA struct {
	verifyURL string
	secretKey string
	http      *http.Client
}

// NewReCAPTCHA creates a verifier with the given endpoint and secret.
func NewReCAPTCHA(verifyURL, secretKey string, timeout time.Duration) *ReCAPTCHA {
	return &ReCAPTCHA{
		verifyURL: verifyURL,
		secretKey: secretKey,
		http:      &http.Client{Timeout: timeout},
	}
}

const failedMessage = `You did not solve the "reCAPTCHA" challenge.`

// Verify submits the solution for verification. An empty response is invalid
// without a network round trip.
func (v *ReCAPTCHA) Verify(ctx context.Context, response, remoteIP string) (Result, error) {
	if response == "" {
		return Result{Valid: false, Message: failedMessage}, nil
	}

	form := url.Values{
		"secret":   {v.secretKey},
		"response": {response},
		"remoteip": {remoteIP},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: siteverify returned %d", ErrUnavailable, resp.StatusCode)
	}

	var body struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !body.Success {
		return Result{Valid: false, Message: failedMessage}, nil
	}
	return Result{Valid: true}, nil
}

// Disabled is a Verifier that accepts everything. Used when the CAPTCHA is
// switched off by configuration.
type Disabled struct{}

// Verify always reports a valid solution.
func (Disabled) Verify(ctx context.Context, response, remoteIP string) (Result, error) {
	return Result{Valid: true}, nil
}
