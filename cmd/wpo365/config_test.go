// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asoet/wpo365-login/aad"
	"github.com/asoet/wpo365-login/jwt"
)

func testWriteFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name            string
		yaml            string
		path            string
		want            *fileConfig
		wantErrContains string
	}{
		{
			name: "defaults",
			yaml: `
tenant_id: contoso
application_id: app-id
redirect_url: https://intranet.example.com/
`,
			want: &fileConfig{
				TenantID:      "contoso",
				ApplicationID: "app-id",
				RedirectURL:   "https://intranet.example.com/",
				Server: serverConfig{
					Listen:          defaultListen,
					AdminPrefix:     defaultAdminPrefix,
					ShutdownTimeout: defaultShutdownTimeout,
				},
			},
		},
		{
			name: "everything",
			yaml: `
tenant_id: contoso
application_id: app-id
application_secret: s3cret
redirect_url: https://intranet.example.com/callback
scenario: internet
signing_algs: [RS256, ES256]
pages_blacklist: [/contact.php]
resources:
  graph: https://graph.microsoft.com
nonce_ttl: 1m
refresh_duration: 8h
server:
  listen: ":9443"
  admin_prefix: /wp-admin/
  allowed_users: [alice@example.com]
  shutdown_timeout: 3s
`,
			want: &fileConfig{
				TenantID:          "contoso",
				ApplicationID:     "app-id",
				ApplicationSecret: "s3cret",
				RedirectURL:       "https://intranet.example.com/callback",
				Scenario:          "internet",
				SigningAlgs:       []string{"RS256", "ES256"},
				PagesBlacklist:    []string{"/contact.php"},
				Resources:         map[string]string{"graph": "https://graph.microsoft.com"},
				NonceTTL:          time.Minute,
				RefreshDuration:   8 * time.Hour,
				Server: serverConfig{
					Listen:          ":9443",
					AdminPrefix:     "/wp-admin/",
					AllowedUsers:    []string{"alice@example.com"},
					ShutdownTimeout: 3 * time.Second,
				},
			},
		},
		{
			name:            "unknown-field",
			yaml:            "tenant: contoso\n",
			wantErrContains: "field tenant not found",
		},
		{
			name:            "not-yaml",
			yaml:            "tenant_id: [",
			wantErrContains: "unable to parse",
		},
		{
			name:            "missing-file",
			path:            filepath.Join(os.TempDir(), "does-not-exist", "wpo365.yaml"),
			wantErrContains: "no such file",
		},
		{
			name:            "no-path",
			path:            "",
			wantErrContains: "no config file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			path := tt.path
			if tt.yaml != "" {
				path = testWriteFile(t, "wpo365.yaml", tt.yaml)
			}
			got, err := loadConfig(path)
			if tt.wantErrContains != "" {
				require.Error(err)
				assert.Contains(err.Error(), tt.wantErrContains)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}

func TestFileConfig_AadConfig(t *testing.T) {
	t.Parallel()
	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		fc := &fileConfig{
			TenantID:        "contoso",
			ApplicationID:   "app-id",
			RedirectURL:     "https://intranet.example.com/",
			Scenario:        "internet",
			SigningAlgs:     []string{"RS256", "ES256"},
			Resources:       map[string]string{"graph": "https://graph.microsoft.com"},
			RefreshDuration: time.Hour,
		}
		c, err := fc.aadConfig()
		require.NoError(err)
		assert.True(c.IsConfigured())
		assert.Equal(aad.ScenarioInternet, c.Scenario)
		assert.Equal([]jwt.Alg{jwt.RS256, jwt.ES256}, c.SupportedSigningAlgs)
		assert.Equal("https://graph.microsoft.com", c.Resource("graph"))
		assert.Equal(time.Hour, c.RefreshDuration)
		assert.Equal(aad.DefaultLoginURL, c.LoginURL)
	})
	t.Run("provider-ca", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := aad.StartTestProvider(t)
		fc := &fileConfig{
			TenantID:       "contoso",
			ApplicationID:  "app-id",
			RedirectURL:    "https://intranet.example.com/",
			ProviderCAFile: testWriteFile(t, "ca.pem", tp.CACert()),
		}
		c, err := fc.aadConfig()
		require.NoError(err)
		assert.Equal(tp.CACert(), c.ProviderCA)
	})
	t.Run("missing-provider-ca", func(t *testing.T) {
		fc := &fileConfig{ProviderCAFile: filepath.Join(t.TempDir(), "missing.pem")}
		_, err := fc.aadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unable to read provider CA")
	})
	t.Run("unknown-scenario", func(t *testing.T) {
		fc := &fileConfig{Scenario: "extranet"}
		_, err := fc.aadConfig()
		require.Error(t, err)
	})
}

func TestServerConfig_SealKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		key     string
		wantLen int
		wantErr bool
	}{
		{name: "empty"},
		{name: "valid", key: strings.Repeat("ab", 32), wantLen: 32},
		{name: "short", key: strings.Repeat("ab", 16), wantErr: true},
		{name: "not-hex", key: strings.Repeat("zz", 32), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := serverConfig{CookieSealKey: tt.key}.sealKey()
			if tt.wantErr {
				require.Error(err)
				return
			}
			require.NoError(err)
			assert.Len(got, tt.wantLen)
		})
	}
}
