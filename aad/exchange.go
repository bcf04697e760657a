// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	grantRefreshToken      = "refresh_token"
	grantAuthorizationCode = "authorization_code"

	maxTokenResponseSize = 1 << 20
)

// ExchangeClient gets access tokens for other resources (e.g. the Graph
// API) on behalf of a logged in client, with the client's cached refresh
// token or, right after login, its authorization code.
type ExchangeClient struct {
	config  *Config
	client  *http.Client
	logger  hclog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewExchangeClient creates an ExchangeClient for c.
//
// Supported options: WithLogger, WithMetrics, WithHTTPClient, WithNow
func NewExchangeClient(c *Config, opt ...Option) (*ExchangeClient, error) {
	const op = "aad.NewExchangeClient"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	c = c.normalize()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getComponentOpts(opt...)
	client := opts.withHTTPClient
	if client == nil {
		var err error
		if client, err = c.HttpClient(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return &ExchangeClient{
		config:  c,
		client:  client,
		logger:  opts.withLogger,
		metrics: opts.withMetrics,
		now:     opts.withNow,
	}, nil
}

// tokenResponse is the provider's token endpoint response. Azure AD v1
// returns expires_in as a string, json.Number accepts both forms.
type tokenResponse struct {
	AccessToken      string      `json:"access_token"`
	TokenType        string      `json:"token_type"`
	ExpiresIn        json.Number `json:"expires_in"`
	RefreshToken     string      `json:"refresh_token"`
	Resource         string      `json:"resource"`
	Error            string      `json:"error"`
	ErrorDescription string      `json:"error_description"`
}

// GetAccessToken returns an access token for resource, which is either a
// name from the Config's Resources or a resource URI. The client's refresh
// token for the resource is used when there is one, its authorization code
// otherwise. A client without either gets ErrNoCredential even when the
// application is not configured.
//
// On success the new refresh token is cached and a used authorization code
// deleted. Failures leave the client's artifacts as they were. Errors wrap
// one of: ErrNotConfigured, ErrNoCredential, ErrExchangeFailed,
// ErrInvalidResponseShape, ErrProviderRejected.
func (e *ExchangeClient) GetAccessToken(ctx context.Context, artifacts ArtifactStore, resource string) (*AccessToken, error) {
	const op = "ExchangeClient.GetAccessToken"
	if artifacts == nil {
		return nil, fmt.Errorf("%s: artifact store is nil: %w", op, ErrNilParameter)
	}
	resource = e.config.Resource(resource)
	if resource == "" {
		return nil, fmt.Errorf("%s: resource is empty: %w", op, ErrInvalidParameter)
	}

	refreshTokens, err := NewRefreshTokenStore(artifacts, e.config.RefreshDuration, WithLogger(e.logger))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	form := url.Values{
		"client_id":     {e.config.ApplicationID},
		"client_secret": {string(e.config.ApplicationSecret)},
		"resource":      {resource},
	}
	var grant string
	rt, ok, err := refreshTokens.Get(ctx, resource)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if ok {
		grant = grantRefreshToken
		form.Set("grant_type", grantRefreshToken)
		form.Set("refresh_token", string(rt))
	} else {
		code, ok, err := artifacts.Get(ctx, CodeArtifact)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to read authorization code: %w", op, err)
		}
		if !ok {
			e.logger.Debug("no refresh token or authorization code for resource", "resource", resource)
			return nil, fmt.Errorf("%s: %w", op, ErrNoCredential)
		}
		grant = grantAuthorizationCode
		form.Set("grant_type", grantAuthorizationCode)
		form.Set("code", code)
		form.Set("redirect_uri", e.config.RedirectURL)
	}

	if e.config.TenantID == "" || e.config.ApplicationID == "" || e.config.ApplicationSecret == "" {
		e.logger.Error("tenant id, application id or application secret is not configured", "op", op)
		return nil, fmt.Errorf("%s: %w", op, ErrNotConfigured)
	}

	tk, err := e.exchange(ctx, form)
	e.metrics.RecordTokenExchange(ctx, grant, err)
	if err != nil {
		e.logger.Error("could not get access token", "op", op, "grant", grant, "resource", resource, "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := refreshTokens.Set(ctx, resource, tk.RefreshToken); err != nil {
		e.logger.Warn("unable to cache refresh token", "op", op, "resource", resource, "error", err)
	}
	if grant == grantAuthorizationCode {
		if err := artifacts.Delete(ctx, CodeArtifact); err != nil {
			e.logger.Warn("unable to delete used authorization code", "op", op, "error", err)
		}
	}
	e.logger.Debug("got access token", "grant", grant, "resource", resource, "expiry", tk.Expiry)
	return tk, nil
}

func (e *ExchangeClient) exchange(ctx context.Context, form url.Values) (*AccessToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.TokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("unable to create request: %w: %s", ErrExchangeFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return nil, fmt.Errorf("unable to read response: %w: %s", ErrExchangeFailed, err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("unable to decode response (status %d): %w: %s", resp.StatusCode, ErrInvalidResponseShape, err)
	}
	if tr.Error != "" {
		e.logger.Error("token request rejected", "status", resp.StatusCode, "error", tr.Error, "error_description", tr.ErrorDescription)
		return nil, fmt.Errorf("%s: %w", tr.Error, ErrProviderRejected)
	}
	return e.validateShape(&tr)
}

// validateShape only lets complete bearer token responses through.
func (e *ExchangeClient) validateShape(tr *tokenResponse) (*AccessToken, error) {
	var missing []string
	if tr.AccessToken == "" {
		missing = append(missing, "access_token")
	}
	expiresIn, err := strconv.ParseInt(tr.ExpiresIn.String(), 10, 64)
	if err != nil || expiresIn < 0 {
		missing = append(missing, "expires_in")
	}
	if tr.RefreshToken == "" {
		missing = append(missing, "refresh_token")
	}
	if !strings.EqualFold(tr.TokenType, "bearer") {
		missing = append(missing, "token_type")
	}
	if tr.Resource == "" {
		missing = append(missing, "resource")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing or invalid %s: %w", strings.Join(missing, ", "), ErrInvalidResponseShape)
	}
	return &AccessToken{
		AccessToken:  RawAccessToken(tr.AccessToken),
		RefreshToken: RefreshToken(tr.RefreshToken),
		TokenType:    tr.TokenType,
		Resource:     tr.Resource,
		ExpiresIn:    expiresIn,
		Expiry:       e.now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}
