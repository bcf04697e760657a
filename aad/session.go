// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/text/cases"
)

// SessionValidator decides, for every request, whether the client may
// continue, has to log in with Azure AD or is sent to the local login page.
type SessionValidator struct {
	config    *Config
	ids       IdentityStore
	flow      *FlowInitiator
	processor *TokenProcessor
	handlers  []EventHandler
	blacklist []string
	logger    hclog.Logger
	metrics   *Metrics
	failures  loginFailures
}

// NewSessionValidator creates a SessionValidator for c. ids maps Azure AD
// users to host accounts.
//
// Supported options: WithLogger, WithMetrics, WithMessenger,
// WithEventHandler, WithKeySource, WithHTTPClient, WithNow
func NewSessionValidator(c *Config, ids IdentityStore, opt ...Option) (*SessionValidator, error) {
	const op = "aad.NewSessionValidator"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	c = c.normalize()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getComponentOpts(opt...)
	processor, err := newTokenProcessor(c, ids, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	blacklist := make([]string, 0, len(c.PagesBlacklist))
	for _, p := range c.PagesBlacklist {
		if p = strings.TrimSpace(p); p != "" {
			blacklist = append(blacklist, cases.Fold().String(p))
		}
	}
	return &SessionValidator{
		config:    c,
		ids:       ids,
		flow:      newFlowInitiator(c, opts),
		processor: processor,
		handlers:  opts.withEventHandlers,
		blacklist: blacklist,
		logger:    opts.withLogger,
		metrics:   opts.withMetrics,
		failures: loginFailures{
			loginURL:  c.LoginURL,
			messenger: opts.withMessenger,
			metrics:   opts.withMetrics,
		},
	}, nil
}

// Validate checks the client's Azure AD session. A callback from the
// provider is processed first. Redirect outcomes are terminal.
func (v *SessionValidator) Validate(ctx context.Context, r *Request) Outcome {
	o := v.validate(ctx, r)
	v.metrics.RecordSessionOutcome(ctx, o.Kind)
	return o
}

func (v *SessionValidator) validate(ctx context.Context, r *Request) Outcome {
	const op = "SessionValidator.Validate"
	if err := r.validate(op); err != nil {
		v.logger.Error("invalid request", "op", op, "error", err)
		return v.failures.toLocalLogin(ctx, CodeCheckLog, err)
	}
	req := r.HTTP
	path := req.URL.Path

	if e := req.FormValue("error"); e != "" {
		v.logger.Error("azure ad returned an error", "op", op, "path", path, "error", e, "error_description", req.FormValue("error_description"))
		if err := r.Session.Logout(ctx); err != nil {
			v.logger.Error("unable to log out local session", "op", op, "error", err)
		}
		return v.failures.toLocalLogin(ctx, CodeCheckLog, fmt.Errorf("%s: %s: %w", op, e, ErrProviderError))
	}

	if req.FormValue("state") != "" && req.FormValue("id_token") != "" {
		v.logger.Debug("processing azure ad callback", "path", path)
		return v.processor.Process(ctx, r)
	}

	if !v.ids.IsProviderLinked(ctx, req) {
		v.logger.Debug("user is not linked to azure ad, leaving it to the host", "path", path)
		return continueOutcome()
	}

	if v.config.Scenario == ScenarioInternet && !r.Privileged {
		v.logger.Debug("skipping session validation because the scenario is internet", "path", path)
		return continueOutcome()
	}

	if v.blacklisted(path) {
		v.logger.Debug("skipping session validation for blacklisted page", "path", path)
		return continueOutcome()
	}

	if !v.config.IsConfigured() {
		if r.Privileged {
			v.logger.Warn("azure ad login is not configured, leaving admin page to the local login", "path", path)
			return continueOutcome()
		}
		v.logger.Error("azure ad login is not configured", "op", op, "path", path)
		if err := r.Session.Logout(ctx); err != nil {
			v.logger.Error("unable to log out local session", "op", op, "error", err)
		}
		return v.failures.toLocalLogin(ctx, CodeNotConfigured, fmt.Errorf("%s: %w", op, ErrNotConfigured))
	}

	marker, ok, err := r.Artifacts.Get(ctx, AuthMarkerArtifact)
	if err != nil {
		v.logger.Error("unable to read auth marker", "op", op, "error", err)
		return v.failures.toLocalLogin(ctx, CodeCheckLog, fmt.Errorf("%s: unable to read auth marker: %w", op, err))
	}
	if !ok {
		v.logger.Debug("no azure ad session found, logging in", "path", path)
		if err := r.Session.Logout(ctx); err != nil {
			v.logger.Error("unable to log out local session", "op", op, "error", err)
		}
		return v.flow.Start(ctx, r)
	}

	principalID, ok, err := v.ids.ResolveCurrentPrincipal(ctx, marker)
	if err != nil || !ok || principalID == "" {
		v.logger.Error("could not retrieve the logged in user", "op", op, "path", path, "error", err)
		cause := fmt.Errorf("%s: %w", op, ErrUserResolutionFailed)
		if err != nil {
			cause = fmt.Errorf("%s: %w: %w", op, ErrUserResolutionFailed, err)
		}
		return v.failures.toLocalLogin(ctx, CodeUserNotFound, cause)
	}

	if !r.Session.IsLoggedIn(ctx) {
		if err := r.Session.Login(ctx, principalID); err != nil {
			v.logger.Error("unable to log in local session", "op", op, "principal", principalID, "error", err)
			return v.failures.toLocalLogin(ctx, CodeCheckLog, fmt.Errorf("%s: unable to log in local session: %w", op, err))
		}
		v.logger.Debug("local session established", "principal", principalID)
	}
	v.emit(ctx, Event{Name: EventSessionValidated, PrincipalID: principalID, Request: req})
	return continueOutcome()
}

func (v *SessionValidator) blacklisted(path string) bool {
	if len(v.blacklist) == 0 {
		return false
	}
	p := cases.Fold().String(path)
	for _, b := range v.blacklist {
		if strings.Contains(p, b) {
			return true
		}
	}
	return false
}

func (v *SessionValidator) emit(ctx context.Context, e Event) {
	for _, h := range v.handlers {
		h(ctx, e)
	}
}

// DestroySession removes the client's Azure AD session, so its next
// validated request starts a new login.
func (v *SessionValidator) DestroySession(ctx context.Context, r *Request) error {
	const op = "SessionValidator.DestroySession"
	if r == nil || r.Artifacts == nil {
		return fmt.Errorf("%s: artifact store is nil: %w", op, ErrNilParameter)
	}
	for _, name := range []string{AuthMarkerArtifact, NonceArtifact, CodeArtifact} {
		if err := r.Artifacts.Delete(ctx, name); err != nil {
			return fmt.Errorf("%s: unable to delete %s: %w", op, name, err)
		}
	}
	return nil
}

// Goodbye logs the client out of the host and Azure AD session and sends it
// to the local login page. code may be empty.
func (v *SessionValidator) Goodbye(ctx context.Context, r *Request, code LoginErrorCode) Outcome {
	const op = "SessionValidator.Goodbye"
	if err := v.DestroySession(ctx, r); err != nil {
		v.logger.Error("unable to destroy azure ad session", "op", op, "error", err)
	}
	if r != nil && r.Session != nil {
		if err := r.Session.Logout(ctx); err != nil {
			v.logger.Error("unable to log out local session", "op", op, "error", err)
		}
	}
	if code != "" {
		return v.failures.toLocalLogin(ctx, code, nil)
	}
	return Outcome{Kind: RedirectToLocalLogin, Location: v.config.LoginURL}
}

// FlowInitiator returns the validator's FlowInitiator.
func (v *SessionValidator) FlowInitiator() *FlowInitiator {
	return v.flow
}

// TokenProcessor returns the validator's TokenProcessor.
func (v *SessionValidator) TokenProcessor() *TokenProcessor {
	return v.processor
}
