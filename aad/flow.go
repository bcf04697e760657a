// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"

	"github.com/asoet/wpo365-login/sdk/id"
)

const (
	// hybridResponseType asks for an id_token and an authorization code.
	hybridResponseType = "id_token code"

	formPostResponseMode = "form_post"
)

// FlowInitiator sends clients to the provider to log in.
type FlowInitiator struct {
	config   *Config
	oauth2   oauth2.Config
	logger   hclog.Logger
	metrics  *Metrics
	failures loginFailures
}

// NewFlowInitiator creates a FlowInitiator for c.
//
// Supported options: WithLogger, WithMetrics, WithMessenger
func NewFlowInitiator(c *Config, opt ...Option) (*FlowInitiator, error) {
	const op = "aad.NewFlowInitiator"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	c = c.normalize()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getComponentOpts(opt...)
	return newFlowInitiator(c, opts), nil
}

func newFlowInitiator(c *Config, opts componentOptions) *FlowInitiator {
	return &FlowInitiator{
		config: c,
		oauth2: oauth2.Config{
			ClientID:    c.ApplicationID,
			RedirectURL: c.RedirectURL,
			Scopes:      strings.Fields(c.Scope),
			Endpoint: oauth2.Endpoint{
				AuthURL:  c.AuthorizeURL(),
				TokenURL: c.TokenURL(),
			},
		},
		logger:  opts.withLogger,
		metrics: opts.withMetrics,
		failures: loginFailures{
			loginURL:  c.LoginURL,
			messenger: opts.withMessenger,
			metrics:   opts.withMetrics,
		},
	}
}

// Start stores a new nonce for the client and returns the redirect to the
// provider's authorize endpoint. The current URL is sent as state so the
// client can be sent back to it after logging in.
func (f *FlowInitiator) Start(ctx context.Context, r *Request) Outcome {
	const op = "FlowInitiator.Start"
	if err := r.validate(op); err != nil {
		f.logger.Error("invalid request", "op", op, "error", err)
		return f.failures.toLocalLogin(ctx, CodeCheckLog, err)
	}
	if !f.config.IsConfigured() {
		f.logger.Error("azure ad login is not configured", "op", op)
		return f.failures.toLocalLogin(ctx, CodeNotConfigured, fmt.Errorf("%s: %w", op, ErrNotConfigured))
	}

	nonce, err := id.New("")
	if err != nil {
		f.logger.Error("unable to generate nonce", "op", op, "error", err)
		return f.failures.toLocalLogin(ctx, CodeCheckLog, fmt.Errorf("%s: unable to generate nonce: %w", op, err))
	}
	if err := r.Artifacts.Set(ctx, NonceArtifact, nonce, f.config.NonceTTL); err != nil {
		f.logger.Error("unable to store nonce", "op", op, "error", err)
		return f.failures.toLocalLogin(ctx, CodeCheckLog, fmt.Errorf("%s: unable to store nonce: %w", op, err))
	}

	state := CurrentURL(r.HTTP)
	location := f.AuthCodeURL(state, nonce)
	f.logger.Debug("redirecting to azure ad to log in", "state", state)
	f.metrics.RecordAuthorizeStarted(ctx)
	return Outcome{Kind: RedirectToIdP, Location: location}
}

// AuthCodeURL returns the authorize URL of the hybrid flow for state and
// nonce.
func (f *FlowInitiator) AuthCodeURL(state, nonce string) string {
	return f.oauth2.AuthCodeURL(state,
		oauth2.SetAuthURLParam("response_type", hybridResponseType),
		oauth2.SetAuthURLParam("response_mode", formPostResponseMode),
		oauth2.SetAuthURLParam("resource", f.config.ApplicationID),
		oidc.Nonce(nonce),
	)
}
