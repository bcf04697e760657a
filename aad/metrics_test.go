// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func testMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)
	return m, reader
}

// testCounter sums the counter's data points carrying attr.
func testCounter(t *testing.T, reader *sdkmetric.ManualReader, name string, attr attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		if sm.Scope.Name != MeterName {
			continue
		}
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attr.Key); ok && v == attr.Value {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("record", func(t *testing.T) {
		assert := assert.New(t)
		m, reader := testMetrics(t)
		m.RecordSessionOutcome(ctx, Continue)
		m.RecordSessionOutcome(ctx, Continue)
		m.RecordSessionOutcome(ctx, RedirectToIdP)
		m.RecordCallbackProcessed(ctx, true)
		m.RecordLoginError(ctx, CodeTamperedWith)
		m.RecordTokenExchange(ctx, grantRefreshToken, nil)
		m.RecordTokenExchange(ctx, grantRefreshToken, errors.New("boom"))

		assert.Equal(int64(2), testCounter(t, reader, "wpo365.session.outcomes", attribute.String("outcome", "continue")))
		assert.Equal(int64(1), testCounter(t, reader, "wpo365.session.outcomes", attribute.String("outcome", "redirect_to_idp")))
		assert.Equal(int64(1), testCounter(t, reader, "wpo365.callback.processed", attribute.Bool("success", true)))
		assert.Equal(int64(1), testCounter(t, reader, "wpo365.login.errors", attribute.String("code", "TAMPERED_WITH")))
		assert.Equal(int64(1), testCounter(t, reader, "wpo365.token.exchanges", attribute.String("result", "failure")))
		assert.Equal(int64(2), testCounter(t, reader, "wpo365.token.exchanges", attribute.String("grant", "refresh_token")))
	})
	t.Run("nil-metrics", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.RecordSessionOutcome(ctx, Continue)
			m.RecordAuthorizeStarted(ctx)
			m.RecordCallbackProcessed(ctx, false)
			m.RecordLoginError(ctx, CodeCheckLog)
			m.RecordTokenExchange(ctx, grantAuthorizationCode, nil)
		})
	})
	t.Run("nil-provider", func(t *testing.T) {
		_, err := NewMetrics(nil)
		require.ErrorIs(t, err, ErrNilParameter)
	})
	t.Run("session-validator", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		m, reader := testMetrics(t)
		c, err := NewConfig("contoso", "app-id", testRedirectURL)
		require.NoError(err)
		v, err := NewSessionValidator(c, newTestIdentityStore(), WithMetrics(m))
		require.NoError(err)

		o := v.Validate(ctx, &Request{
			HTTP:      httptest.NewRequest(http.MethodGet, "https://intranet.example.com/news", nil),
			Artifacts: NewMemoryStore(),
			Session:   &testSession{},
		})
		require.Equal(RedirectToIdP, o.Kind)
		o = v.Validate(ctx, &Request{
			HTTP:      httptest.NewRequest(http.MethodGet, "https://intranet.example.com/news", nil),
			Artifacts: &failingStore{ArtifactStore: NewMemoryStore(), name: AuthMarkerArtifact, err: errors.New("boom")},
			Session:   &testSession{},
		})
		require.Equal(RedirectToLocalLogin, o.Kind)

		assert.Equal(int64(1), testCounter(t, reader, "wpo365.session.outcomes", attribute.String("outcome", "redirect_to_idp")))
		assert.Equal(int64(1), testCounter(t, reader, "wpo365.session.outcomes", attribute.String("outcome", "redirect_to_local_login")))
		assert.Equal(int64(1), testCounter(t, reader, "wpo365.login.errors", attribute.String("code", "CHECK_LOG")))
	})
}
