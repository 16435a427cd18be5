// Package iam resolves bearer tokens to caller identities through an
// OAuth2 token introspection endpoint and decides who may read summaries.
package iam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Identity is the client_id the introspection service returns for a token.
type Identity string

// FailureReason says why a token could not be turned into an Identity.
// Callers treat every reason the same way; it exists for logging.
type FailureReason string

const (
	ReasonMissingToken      FailureReason = "missing_token"
	ReasonTransport         FailureReason = "transport"
	ReasonHTTPStatus        FailureReason = "http_status"
	ReasonMalformedResponse FailureReason = "malformed_response"
	ReasonMissingClientID   FailureReason = "missing_client_id"
)

// AuthError is returned for every failed verification.
type AuthError struct {
	Reason     FailureReason
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	msg := "token verification failed: " + string(e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// ReasonOf returns the failure reason carried by err, or "" when err is
// not an *AuthError.
func ReasonOf(err error) FailureReason {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}

// Verifier turns a bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// IntrospectionConfig configures an Introspector.
type IntrospectionConfig struct {
	Endpoint     string
	ServerID     string
	ServerSecret string
	Timeout      time.Duration
}

// Introspector verifies tokens against an introspection endpoint,
// authenticating itself with HTTP Basic credentials.
type Introspector struct {
	endpoint     string
	serverID     string
	serverSecret string
	timeout      time.Duration
	client       *http.Client
}

// NewIntrospector creates an Introspector. A zero timeout means 10s.
func NewIntrospector(cfg IntrospectionConfig) *Introspector {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Introspector{
		endpoint:     strings.TrimSpace(cfg.Endpoint),
		serverID:     cfg.ServerID,
		serverSecret: cfg.ServerSecret,
		timeout:      timeout,
		client:       &http.Client{Timeout: timeout},
	}
}

type introspectionResponse struct {
	ClientID *string `json:"client_id"`
}

// Verify posts the token to the introspection endpoint and returns the
// client_id from its JSON reply.
func (v *Introspector) Verify(ctx context.Context, token string) (Identity, error) {
	if strings.TrimSpace(token) == "" {
		return "", &AuthError{Reason: ReasonMissingToken}
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Reason: ReasonTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(v.serverID, v.serverSecret)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", &AuthError{Reason: ReasonTransport, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &AuthError{Reason: ReasonHTTPStatus, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &AuthError{Reason: ReasonTransport, Err: err}
	}
	var out introspectionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &AuthError{Reason: ReasonMalformedResponse, Err: err}
	}
	if out.ClientID == nil || strings.TrimSpace(*out.ClientID) == "" {
		return "", &AuthError{Reason: ReasonMissingClientID}
	}
	return Identity(*out.ClientID), nil
}

// TokenFromHeader extracts the token from an Authorization header value of
// the form "<scheme> <token>". Any other shape is reported as a missing
// token.
func TokenFromHeader(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", &AuthError{Reason: ReasonMissingToken, Err: errors.New("no authorization header")}
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return "", &AuthError{Reason: ReasonMissingToken, Err: errors.New("authorization header not of the form \"<scheme> <token>\"")}
	}
	return parts[1], nil
}
