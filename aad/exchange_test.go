// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGraphResource = "https://graph.microsoft.com"

func testExchangeSetup(t *testing.T, opt ...Option) (*TestProvider, *ExchangeClient, time.Time) {
	t.Helper()
	tp := StartTestProvider(t)
	tp.SetAllowedRedirectURIs(testRedirectURL)
	opts := append([]Option{
		WithRefreshDuration(time.Hour),
		WithResources(map[string]string{"graph": testGraphResource}),
	}, opt...)
	now := time.Now()
	e, err := NewExchangeClient(tp.Config(testRedirectURL, opts...), WithNow(func() time.Time { return now }))
	require.NoError(t, err)
	return tp, e, now
}

func testCachedRefreshToken(t *testing.T, artifacts ArtifactStore, resource string) (RefreshToken, bool) {
	t.Helper()
	s, err := NewRefreshTokenStore(artifacts, time.Hour)
	require.NoError(t, err)
	rt, ok, err := s.Get(context.Background(), resource)
	require.NoError(t, err)
	return rt, ok
}

func TestExchangeClient_GetAccessToken(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	tp, e, now := testExchangeSetup(t)

	artifacts := NewMemoryStore()
	require.NoError(artifacts.Set(ctx, CodeArtifact, tp.ExpectedAuthCode(), time.Minute))

	// right after login the authorization code is redeemed
	tk, err := e.GetAccessToken(ctx, artifacts, "graph")
	require.NoError(err)
	assert.Equal(RawAccessToken("access-1"), tk.AccessToken)
	assert.Equal(RefreshToken("refresh-1"), tk.RefreshToken)
	assert.Equal(testGraphResource, tk.Resource)
	assert.Equal(int64(3599), tk.ExpiresIn)
	assert.Equal(now.Add(3599*time.Second), tk.Expiry)

	reqs := tp.TokenRequests()
	require.Len(reqs, 1)
	assert.Equal("authorization_code", reqs[0].Get("grant_type"))
	assert.Equal(tp.ExpectedAuthCode(), reqs[0].Get("code"))
	assert.Equal(testRedirectURL, reqs[0].Get("redirect_uri"))
	assert.Equal(testGraphResource, reqs[0].Get("resource"))
	assert.Equal(TestApplicationID, reqs[0].Get("client_id"))
	assert.Equal(TestClientSecret, reqs[0].Get("client_secret"))

	_, ok, err := artifacts.Get(ctx, CodeArtifact)
	require.NoError(err)
	assert.False(ok, "a redeemed code is deleted")
	rt, ok := testCachedRefreshToken(t, artifacts, testGraphResource)
	require.True(ok)
	assert.Equal(RefreshToken("refresh-1"), rt)

	// afterwards the cached refresh token is used, by name or resource URI
	tk, err = e.GetAccessToken(ctx, artifacts, testGraphResource)
	require.NoError(err)
	assert.Equal(RawAccessToken("access-2"), tk.AccessToken)
	reqs = tp.TokenRequests()
	require.Len(reqs, 2)
	assert.Equal("refresh_token", reqs[1].Get("grant_type"))
	assert.Equal("refresh-1", reqs[1].Get("refresh_token"))
	assert.Empty(reqs[1].Get("code"))

	rt, ok = testCachedRefreshToken(t, artifacts, testGraphResource)
	require.True(ok)
	assert.Equal(RefreshToken("refresh-2"), rt, "the rotated refresh token replaces the old one")

	// other resources have no credential left
	_, err = e.GetAccessToken(ctx, artifacts, "https://contoso.sharepoint.com")
	require.Error(err)
	assert.True(errors.Is(err, ErrNoCredential))
	assert.Len(tp.TokenRequests(), 2)
}

func TestExchangeClient_GetAccessToken_Failures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tests := []struct {
		name      string
		status    int
		body      string
		wantIsErr error
	}{
		{
			name:      "missing-access-token",
			status:    http.StatusOK,
			body:      `{"token_type":"Bearer","expires_in":"3599","refresh_token":"r","resource":"` + testGraphResource + `"}`,
			wantIsErr: ErrInvalidResponseShape,
		},
		{
			name:      "missing-refresh-token",
			status:    http.StatusOK,
			body:      `{"token_type":"Bearer","expires_in":"3599","access_token":"a","resource":"` + testGraphResource + `"}`,
			wantIsErr: ErrInvalidResponseShape,
		},
		{
			name:      "missing-expires-in",
			status:    http.StatusOK,
			body:      `{"token_type":"Bearer","access_token":"a","refresh_token":"r","resource":"` + testGraphResource + `"}`,
			wantIsErr: ErrInvalidResponseShape,
		},
		{
			name:      "invalid-expires-in",
			status:    http.StatusOK,
			body:      `{"token_type":"Bearer","expires_in":"soon","access_token":"a","refresh_token":"r","resource":"` + testGraphResource + `"}`,
			wantIsErr: ErrInvalidResponseShape,
		},
		{
			name:      "not-bearer",
			status:    http.StatusOK,
			body:      `{"token_type":"mac","expires_in":"3599","access_token":"a","refresh_token":"r","resource":"` + testGraphResource + `"}`,
			wantIsErr: ErrInvalidResponseShape,
		},
		{
			name:      "missing-resource",
			status:    http.StatusOK,
			body:      `{"token_type":"Bearer","expires_in":"3599","access_token":"a","refresh_token":"r"}`,
			wantIsErr: ErrInvalidResponseShape,
		},
		{
			name:      "not-json",
			status:    http.StatusOK,
			body:      `<html>maintenance</html>`,
			wantIsErr: ErrInvalidResponseShape,
		},
		{
			name:      "rejected",
			status:    http.StatusBadRequest,
			body:      `{"error":"invalid_grant","error_description":"AADSTS70008: the code has expired"}`,
			wantIsErr: ErrProviderRejected,
		},
		{
			name:      "rejected-with-ok-status",
			status:    http.StatusOK,
			body:      `{"error":"interaction_required","access_token":"a"}`,
			wantIsErr: ErrProviderRejected,
		},
		{
			name:   "numeric-expires-in",
			status: http.StatusOK,
			body:   `{"token_type":"bearer","expires_in":3599,"access_token":"a","refresh_token":"r","resource":"` + testGraphResource + `"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			tp, e, _ := testExchangeSetup(t)
			tp.SetTokenResponse(tt.status, tt.body)
			artifacts := NewMemoryStore()
			require.NoError(artifacts.Set(ctx, CodeArtifact, "the-code", time.Minute))

			tk, err := e.GetAccessToken(ctx, artifacts, "graph")
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.Nil(tk)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)

				code, ok, err := artifacts.Get(ctx, CodeArtifact)
				require.NoError(err)
				assert.True(ok, "a failed exchange leaves the code")
				assert.Equal("the-code", code)
				_, ok = testCachedRefreshToken(t, artifacts, testGraphResource)
				assert.False(ok)
				return
			}
			require.NoError(err)
			assert.Equal(int64(3599), tk.ExpiresIn)
			rt, ok := testCachedRefreshToken(t, artifacts, testGraphResource)
			assert.True(ok)
			assert.Equal(RefreshToken("r"), rt)
		})
	}

	t.Run("transport-failure", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, e, _ := testExchangeSetup(t)
		tp.Stop()
		artifacts := NewMemoryStore()
		require.NoError(artifacts.Set(ctx, CodeArtifact, "the-code", time.Minute))

		_, err := e.GetAccessToken(ctx, artifacts, "graph")
		require.Error(err)
		assert.True(errors.Is(err, ErrExchangeFailed))
		_, ok, err := artifacts.Get(ctx, CodeArtifact)
		require.NoError(err)
		assert.True(ok)
	})
	t.Run("wrong-secret", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, e, _ := testExchangeSetup(t)
		tp.SetClientCreds(TestApplicationID, "another-secret")
		artifacts := NewMemoryStore()
		require.NoError(artifacts.Set(ctx, CodeArtifact, tp.ExpectedAuthCode(), time.Minute))

		_, err := e.GetAccessToken(ctx, artifacts, "graph")
		require.Error(err)
		assert.True(errors.Is(err, ErrProviderRejected))
	})
	t.Run("no-credential", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, e, _ := testExchangeSetup(t)
		_, err := e.GetAccessToken(ctx, NewMemoryStore(), "graph")
		require.Error(err)
		assert.True(errors.Is(err, ErrNoCredential))
		assert.Empty(tp.TokenRequests())
	})
	t.Run("not-configured", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		e, err := NewExchangeClient(&Config{TenantID: "contoso", ApplicationID: "app-id", RedirectURL: testRedirectURL})
		require.NoError(err)
		artifacts := NewMemoryStore()
		require.NoError(artifacts.Set(ctx, CodeArtifact, "code", time.Minute))

		_, err = e.GetAccessToken(ctx, artifacts, "graph")
		require.Error(err)
		assert.True(errors.Is(err, ErrNotConfigured))
		_, ok, err := artifacts.Get(ctx, CodeArtifact)
		require.NoError(err)
		assert.True(ok)
	})
	t.Run("not-configured-no-credential", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		e, err := NewExchangeClient(&Config{TenantID: "contoso", ApplicationID: "app-id", RedirectURL: testRedirectURL})
		require.NoError(err)
		_, err = e.GetAccessToken(ctx, NewMemoryStore(), "graph")
		require.Error(err)
		assert.True(errors.Is(err, ErrNoCredential))
		assert.False(errors.Is(err, ErrNotConfigured))
	})
	t.Run("nil-store", func(t *testing.T) {
		_, e, _ := testExchangeSetup(t)
		_, err := e.GetAccessToken(ctx, nil, "graph")
		require.ErrorIs(t, err, ErrNilParameter)
	})
	t.Run("refresh-cache-disabled", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, e, _ := testExchangeSetup(t, WithRefreshDuration(0))
		artifacts := NewMemoryStore()
		require.NoError(artifacts.Set(ctx, CodeArtifact, tp.ExpectedAuthCode(), time.Minute))

		_, err := e.GetAccessToken(ctx, artifacts, "graph")
		require.NoError(err)
		_, ok, err := artifacts.Get(ctx, RefreshTokensArtifact)
		require.NoError(err)
		assert.False(ok)
	})
	t.Run("refresh-cache-unreadable", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, e, _ := testExchangeSetup(t)
		artifacts := &failingStore{ArtifactStore: NewMemoryStore(), name: RefreshTokensArtifact, err: errors.New("boom")}
		require.NoError(artifacts.Set(ctx, CodeArtifact, tp.ExpectedAuthCode(), time.Minute))

		_, err := e.GetAccessToken(ctx, artifacts, "graph")
		require.Error(err)
		assert.Empty(tp.TokenRequests())
	})
}

func TestNewExchangeClient(t *testing.T) {
	t.Parallel()
	_, err := NewExchangeClient(nil)
	require.ErrorIs(t, err, ErrNilParameter)
	_, err = NewExchangeClient(&Config{ProviderCA: "not a pem"})
	require.ErrorIs(t, err, ErrInvalidCACert)
}
