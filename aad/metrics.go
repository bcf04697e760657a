// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of the login metrics.
const MeterName = "github.com/asoet/wpo365-login/aad"

// Metrics holds the metric instruments of the login flow. A nil *Metrics
// records nothing.
type Metrics struct {
	SessionOutcomes   metric.Int64Counter
	AuthorizeStarted  metric.Int64Counter
	CallbackProcessed metric.Int64Counter
	LoginErrors       metric.Int64Counter
	TokenExchanges    metric.Int64Counter
}

// NewMetrics creates the instruments with a meter of mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	const op = "aad.NewMetrics"
	if mp == nil {
		return nil, fmt.Errorf("%s: meter provider is nil: %w", op, ErrNilParameter)
	}
	meter := mp.Meter(MeterName)
	m := &Metrics{}

	var err error
	m.SessionOutcomes, err = meter.Int64Counter(
		"wpo365.session.outcomes",
		metric.WithDescription("Number of validated requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create session.outcomes counter: %w", op, err)
	}

	m.AuthorizeStarted, err = meter.Int64Counter(
		"wpo365.authorize.started",
		metric.WithDescription("Number of clients sent to the provider to log in"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create authorize.started counter: %w", op, err)
	}

	m.CallbackProcessed, err = meter.Int64Counter(
		"wpo365.callback.processed",
		metric.WithDescription("Number of provider callbacks processed"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create callback.processed counter: %w", op, err)
	}

	m.LoginErrors, err = meter.Int64Counter(
		"wpo365.login.errors",
		metric.WithDescription("Number of logins ended with an error code"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create login.errors counter: %w", op, err)
	}

	m.TokenExchanges, err = meter.Int64Counter(
		"wpo365.token.exchanges",
		metric.WithDescription("Number of token requests by grant and result"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create token.exchanges counter: %w", op, err)
	}
	return m, nil
}

// RecordSessionOutcome records the outcome of validating a request.
func (m *Metrics) RecordSessionOutcome(ctx context.Context, kind OutcomeKind) {
	if m == nil {
		return
	}
	m.SessionOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", kind.String())))
}

// RecordAuthorizeStarted records a client sent to the provider.
func (m *Metrics) RecordAuthorizeStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.AuthorizeStarted.Add(ctx, 1)
}

// RecordCallbackProcessed records a processed callback.
func (m *Metrics) RecordCallbackProcessed(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.CallbackProcessed.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordLoginError records a login ended with code.
func (m *Metrics) RecordLoginError(ctx context.Context, code LoginErrorCode) {
	if m == nil {
		return
	}
	m.LoginErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", string(code))))
}

// RecordTokenExchange records a token request.
func (m *Metrics) RecordTokenExchange(ctx context.Context, grant string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.TokenExchanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant", grant),
		attribute.String("result", result),
	))
}
