// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/asoet/wpo365-login/jwt"
)

// TokenProcessor handles the provider's callback: it verifies the id_token,
// checks it's bound to the client's nonce and maps it to a host account.
type TokenProcessor struct {
	config    *Config
	ids       IdentityStore
	validator *jwt.Validator
	logger    hclog.Logger
	metrics   *Metrics
	failures  loginFailures
}

// NewTokenProcessor creates a TokenProcessor for c.
//
// Supported options: WithLogger, WithMetrics, WithMessenger, WithKeySource,
// WithHTTPClient, WithNow
func NewTokenProcessor(c *Config, ids IdentityStore, opt ...Option) (*TokenProcessor, error) {
	const op = "aad.NewTokenProcessor"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	c = c.normalize()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p, err := newTokenProcessor(c, ids, getComponentOpts(opt...))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

func newTokenProcessor(c *Config, ids IdentityStore, opts componentOptions) (*TokenProcessor, error) {
	if ids == nil {
		return nil, fmt.Errorf("identity store is nil: %w", ErrNilParameter)
	}
	keys := opts.withKeySource
	if keys == nil {
		keyOpts := []jwt.Option{
			jwt.WithProviderCA(c.ProviderCA),
			jwt.WithLogger(opts.withLogger),
		}
		if c.InsecureSkipVerify {
			keyOpts = append(keyOpts, jwt.WithInsecureSkipVerify())
		}
		if opts.withHTTPClient != nil {
			keyOpts = append(keyOpts, jwt.WithHTTPClient(opts.withHTTPClient))
		}
		var err error
		if keys, err = jwt.NewRemoteKeySource(c.KeysURL, keyOpts...); err != nil {
			return nil, err
		}
	}
	v, err := jwt.NewValidator(keys,
		jwt.WithIssuer(c.Issuer),
		jwt.WithAudience(c.ApplicationID),
		jwt.WithSigningAlgorithms(c.SupportedSigningAlgs...),
		jwt.WithNow(opts.withNow),
		jwt.WithLogger(opts.withLogger),
	)
	if err != nil {
		return nil, err
	}
	return &TokenProcessor{
		config:    c,
		ids:       ids,
		validator: v,
		logger:    opts.withLogger,
		metrics:   opts.withMetrics,
		failures: loginFailures{
			loginURL:  c.LoginURL,
			messenger: opts.withMessenger,
			metrics:   opts.withMetrics,
		},
	}, nil
}

// Process handles a callback request carrying an id_token, an optional
// authorization code and the state. The outcome is always a redirect: to
// the state URL when the client is logged in, to the local login page
// otherwise.
func (p *TokenProcessor) Process(ctx context.Context, r *Request) Outcome {
	o := p.process(ctx, r)
	p.metrics.RecordCallbackProcessed(ctx, o.Kind == RedirectToState)
	return o
}

func (p *TokenProcessor) process(ctx context.Context, r *Request) Outcome {
	const op = "TokenProcessor.Process"
	if err := r.validate(op); err != nil {
		p.logger.Error("invalid request", "op", op, "error", err)
		return p.failures.toLocalLogin(ctx, CodeCheckLog, err)
	}
	if !p.config.IsConfigured() {
		p.logger.Error("azure ad login is not configured", "op", op)
		return p.failures.toLocalLogin(ctx, CodeNotConfigured, fmt.Errorf("%s: %w", op, ErrNotConfigured))
	}
	path := r.HTTP.URL.Path

	if code := r.HTTP.FormValue("code"); code != "" {
		if err := r.Artifacts.Set(ctx, CodeArtifact, code, p.config.CodeTTL); err != nil {
			p.logger.Error("unable to store authorization code", "op", op, "path", path, "error", err)
			return p.failures.toLocalLogin(ctx, CodeCheckLog, fmt.Errorf("%s: unable to store authorization code: %w", op, err))
		}
		p.logger.Debug("stored authorization code", "path", path)
	}

	raw := IdToken(r.HTTP.FormValue("id_token"))
	claims, err := p.validator.DecodeAndValidate(ctx, string(raw))
	if err != nil {
		code := CodeTamperedWith
		if errors.Is(err, jwt.ErrKeyDiscoveryFailed) {
			code = CodeCheckLog
		}
		p.logger.Error("id token could not be validated", "op", op, "path", path, "id_token", raw, "error", err)
		return p.failures.toLocalLogin(ctx, code, fmt.Errorf("%s: %w", op, err))
	}

	nonce, ok, err := r.Artifacts.Get(ctx, NonceArtifact)
	switch {
	case err != nil:
		p.logger.Error("unable to read nonce", "op", op, "path", path, "error", err)
		return p.failures.toLocalLogin(ctx, CodeCheckLog, fmt.Errorf("%s: unable to read nonce: %w", op, err))
	case !ok:
		p.logger.Error("no nonce found for the client, the login may have expired or been replayed", "op", op, "path", path)
		return p.failures.toLocalLogin(ctx, CodeTamperedWith, fmt.Errorf("%s: %w", op, ErrNonceMissing))
	case subtle.ConstantTimeCompare([]byte(nonce), []byte(claims.Nonce)) != 1:
		p.logger.Error("id token nonce does not match the client's nonce", "op", op, "path", path, "subject", claims.Subject)
		return p.failures.toLocalLogin(ctx, CodeTamperedWith, fmt.Errorf("%s: %w", op, ErrNonceMismatch))
	}
	if err := r.Artifacts.Delete(ctx, NonceArtifact); err != nil {
		p.logger.Error("unable to delete nonce", "op", op, "path", path, "error", err)
		return p.failures.toLocalLogin(ctx, CodeCheckLog, fmt.Errorf("%s: unable to delete nonce: %w", op, err))
	}

	principal, err := p.ids.EnsureUser(ctx, claims)
	if err == nil && (principal == nil || principal.ID == "") {
		err = errors.New("no principal returned")
	}
	if err != nil {
		p.logger.Error("could not create or retrieve user", "op", op, "subject", claims.Subject, "upn", claims.UPN, "error", err)
		return p.failures.toLocalLogin(ctx, CodeUserNotFound, fmt.Errorf("%s: %w: %w", op, ErrUserResolutionFailed, err))
	}

	if err := r.Artifacts.Set(ctx, AuthMarkerArtifact, principal.ID, 0); err != nil {
		p.logger.Error("unable to store auth marker", "op", op, "error", err)
		return p.failures.toLocalLogin(ctx, CodeCheckLog, fmt.Errorf("%s: unable to store auth marker: %w", op, err))
	}

	location := stateLocation(p.config, r.HTTP, r.HTTP.FormValue("state"))
	p.logger.Debug("user logged in with azure ad", "principal", principal.ID, "location", location)
	return Outcome{Kind: RedirectToState, Location: location}
}
