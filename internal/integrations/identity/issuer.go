// Package identity exchanges a subject identity for temporary, role-scoped
// AWS credentials: an OIDC token issuer vends an identity token, which is
// then traded to STS for short-lived credentials.
package identity

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"sms-chat-agent/internal/integrations/paramstore"
)

// ErrIssuerUnreachable reports that the token endpoint did not return a
// usable identity token. Not retried; fatal to the current turn.
var ErrIssuerUnreachable = errors.New("identity: token issuer unreachable")

// clientCredential is the JSON shape stored in SSM for the issuer client
// credential.
type clientCredential struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

type tokenRequest struct {
	Email string `json:"email"`
}

type tokenResponse struct {
	IDToken string `json:"id_token"`
}

// TokenClient requests identity tokens from the OIDC issuer, authenticating
// with a fixed client credential resolved from the parameter store.
type TokenClient struct {
	issuerURL   string
	origin      string
	httpClient  *http.Client
	getter      paramstore.Getter
	paramPrefix string

	credOnce  sync.Once
	basicAuth string
	credErr   error
}

type TokenOption func(*TokenClient)

func WithHTTPClient(httpClient *http.Client) TokenOption {
	return func(c *TokenClient) {
		c.httpClient = httpClient
	}
}

// WithOrigin sets the Origin header sent on token requests, for issuers
// that enforce an allowed-origin list.
func WithOrigin(origin string) TokenOption {
	return func(c *TokenClient) {
		c.origin = strings.TrimSpace(origin)
	}
}

// NewTokenClient creates a TokenClient. The client credential is fetched
// from SSM on the first IssueToken call and reused for the lifetime of the
// process.
func NewTokenClient(issuerURL string, ps paramstore.Getter, paramPrefix string, opts ...TokenOption) (*TokenClient, error) {
	issuerURL = strings.TrimRight(strings.TrimSpace(issuerURL), "/")
	if issuerURL == "" {
		return nil, errors.New("identity: issuer URL must not be empty")
	}
	if ps == nil {
		return nil, errors.New("identity: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("identity: parameter prefix must not be empty")
	}
	c := &TokenClient{
		issuerURL:   issuerURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// IssueToken requests an identity token for the given subject.
func (c *TokenClient) IssueToken(ctx context.Context, subject string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("identity: subject must not be empty")
	}

	auth, err := c.resolveBasicAuth(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(tokenRequest{Email: subject})
	if err != nil {
		return "", fmt.Errorf("identity: marshal token request: %w", err)
	}

	url := c.issuerURL + "/token"
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return "", fmt.Errorf("identity: create token request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+auth)
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}

	res, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return "", fmt.Errorf("%w: %v", ErrIssuerUnreachable, doErr)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("%w: unexpected status %d", ErrIssuerUnreachable, res.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrIssuerUnreachable, err)
	}

	var payload tokenResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrIssuerUnreachable, decErr)
	}
	if payload.IDToken == "" {
		return "", fmt.Errorf("%w: empty id_token", ErrIssuerUnreachable)
	}
	return payload.IDToken, nil
}

// resolveBasicAuth fetches the client credential from SSM on the first call
// and returns the cached Authorization value on every subsequent call.
func (c *TokenClient) resolveBasicAuth(ctx context.Context) (string, error) {
	c.credOnce.Do(func() {
		c.basicAuth, c.credErr = fetchBasicAuth(ctx, c.getter, c.credentialParameterName())
	})
	return c.basicAuth, c.credErr
}

func (c *TokenClient) credentialParameterName() string {
	return paramstore.Join(c.paramPrefix, "issuer-client-credential")
}

func fetchBasicAuth(ctx context.Context, getter paramstore.Getter, name string) (string, error) {
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("identity: fetch client credential: %w", err)
	}
	var cred clientCredential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return "", fmt.Errorf("identity: unmarshal client credential: %w", err)
	}
	if cred.ID == "" || cred.Secret == "" {
		return "", errors.New("identity: client credential is incomplete")
	}
	return base64.StdEncoding.EncodeToString([]byte(cred.ID + ":" + cred.Secret)), nil
}
