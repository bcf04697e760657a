// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asoet/wpo365-login/jwt"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		tenant    string
		app       string
		redirect  string
		opts      []Option
		want      func(*Config)
		wantIsErr error
	}{
		{
			name:     "defaults",
			tenant:   "contoso",
			app:      "app-id",
			redirect: "https://intranet.example.com/",
			want: func(c *Config) {
				c.Scope = DefaultScope
				c.Scenario = ScenarioIntranet
				c.Authority = DefaultAuthority
				c.KeysURL = DefaultAuthority + "/common/discovery/keys"
				c.Issuer = "https://sts.windows.net/contoso/"
				c.SupportedSigningAlgs = []jwt.Alg{jwt.RS256}
				c.LoginURL = DefaultLoginURL
				c.SiteURL = DefaultSiteURL
				c.NonceTTL = DefaultArtifactTTL
				c.CodeTTL = DefaultArtifactTTL
			},
		},
		{
			name:     "all-options",
			tenant:   "contoso",
			app:      "app-id",
			redirect: "https://intranet.example.com/",
			opts: []Option{
				WithApplicationSecret("secret"),
				WithScope("openid profile"),
				WithScenario(ScenarioInternet),
				WithAuthority("https://login.example.com/"),
				WithKeysURL("https://keys.example.com/keys"),
				WithIssuer("https://issuer.example.com/"),
				WithSupportedSigningAlgs(jwt.RS256, jwt.ES256),
				WithPagesBlacklist("contact.php"),
				WithLoginURL("/wp-login.php"),
				WithSiteURL("https://intranet.example.com/home"),
				WithAllowedStateHosts("docs.example.com"),
				WithResources(map[string]string{"graph": "https://graph.microsoft.com"}),
				WithNonceTTL(time.Minute),
				WithCodeTTL(2 * time.Minute),
				WithRefreshDuration(time.Hour),
				WithInsecureSkipVerify(),
			},
			want: func(c *Config) {
				c.ApplicationSecret = "secret"
				c.Scope = "openid profile"
				c.Scenario = ScenarioInternet
				c.Authority = "https://login.example.com"
				c.KeysURL = "https://keys.example.com/keys"
				c.Issuer = "https://issuer.example.com/"
				c.SupportedSigningAlgs = []jwt.Alg{jwt.RS256, jwt.ES256}
				c.PagesBlacklist = []string{"contact.php"}
				c.LoginURL = "/wp-login.php"
				c.SiteURL = "https://intranet.example.com/home"
				c.AllowedStateHosts = []string{"docs.example.com"}
				c.Resources = map[string]string{"graph": "https://graph.microsoft.com"}
				c.NonceTTL = time.Minute
				c.CodeTTL = 2 * time.Minute
				c.RefreshDuration = time.Hour
				c.InsecureSkipVerify = true
			},
		},
		{
			name: "unconfigured-is-valid",
			want: func(c *Config) {
				c.Scope = DefaultScope
				c.Scenario = ScenarioIntranet
				c.Authority = DefaultAuthority
				c.KeysURL = DefaultAuthority + "/common/discovery/keys"
				c.SupportedSigningAlgs = []jwt.Alg{jwt.RS256}
				c.LoginURL = DefaultLoginURL
				c.SiteURL = DefaultSiteURL
				c.NonceTTL = DefaultArtifactTTL
				c.CodeTTL = DefaultArtifactTTL
			},
		},
		{
			name:      "bad-redirect",
			tenant:    "contoso",
			app:       "app-id",
			redirect:  "ftp://intranet.example.com/",
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "bad-alg",
			tenant:    "contoso",
			app:       "app-id",
			redirect:  "https://intranet.example.com/",
			opts:      []Option{WithSupportedSigningAlgs("HS256")},
			wantIsErr: jwt.ErrInvalidParameter,
		},
		{
			name:      "bad-ca",
			tenant:    "contoso",
			app:       "app-id",
			redirect:  "https://intranet.example.com/",
			opts:      []Option{WithProviderCA("not a pem")},
			wantIsErr: ErrInvalidCACert,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewConfig(tt.tenant, tt.app, tt.redirect, tt.opts...)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			want := &Config{TenantID: tt.tenant, ApplicationID: tt.app, RedirectURL: tt.redirect}
			tt.want(want)
			assert.Equal(want, got)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)

	var c *Config
	require.ErrorIs(c.Validate(), ErrNilParameter)

	c = &Config{
		RedirectURL:     "not a url",
		Authority:       "login.example.com",
		Scenario:        Scenario(7),
		NonceTTL:        -time.Second,
		Resources:       map[string]string{"graph": ""},
		RefreshDuration: time.Hour,
	}
	err := c.Validate()
	require.Error(err)
	assert.ErrorIs(err, ErrInvalidParameter)
	var merr *multierror.Error
	require.True(errors.As(err, &merr))
	assert.Len(merr.Errors, 5, "every problem is reported: %s", err)
}

func TestConfig_IsConfigured(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	var nilConfig *Config
	assert.False(nilConfig.IsConfigured())
	assert.False((&Config{TenantID: "t", ApplicationID: "a"}).IsConfigured())
	assert.False((&Config{TenantID: "t", RedirectURL: "https://x/"}).IsConfigured())
	assert.False((&Config{ApplicationID: "a", RedirectURL: "https://x/"}).IsConfigured())
	assert.True((&Config{TenantID: "t", ApplicationID: "a", RedirectURL: "https://x/"}).IsConfigured())
}

func TestConfig_Endpoints(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	c, err := NewConfig("contoso", "app-id", "https://intranet.example.com/",
		WithResources(map[string]string{"graph": "https://graph.microsoft.com"}))
	require.NoError(err)
	assert.Equal("https://login.microsoftonline.com/contoso/oauth2/authorize", c.AuthorizeURL())
	assert.Equal("https://login.microsoftonline.com/contoso/oauth2/token", c.TokenURL())
	assert.Equal("https://graph.microsoft.com", c.Resource("graph"))
	assert.Equal("https://outlook.office365.com", c.Resource("https://outlook.office365.com"))

	// a literal config without an authority still has endpoints
	assert.Equal("https://login.microsoftonline.com/t/oauth2/token", (&Config{TenantID: "t"}).TokenURL())
}

func TestConfig_normalizeCopies(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	c := &Config{
		PagesBlacklist: []string{"a"},
		Resources:      map[string]string{"graph": "https://graph.microsoft.com"},
	}
	n := c.normalize()
	c.PagesBlacklist[0] = "b"
	c.Resources["graph"] = "changed"
	assert.Equal([]string{"a"}, n.PagesBlacklist)
	assert.Equal("https://graph.microsoft.com", n.Resources["graph"])
}

func TestClientSecret_Redacted(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	s := ClientSecret("super-secret")
	assert.Equal(RedactedClientSecret, s.String())
	assert.Equal(RedactedClientSecret, fmt.Sprintf("%v", s))
	b, err := json.Marshal(struct{ S ClientSecret }{S: s})
	require.NoError(err)
	assert.NotContains(string(b), "super-secret")
}

func TestParseScenario(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    Scenario
		wantErr bool
	}{
		{in: "", want: ScenarioIntranet},
		{in: "1", want: ScenarioIntranet},
		{in: "Intranet", want: ScenarioIntranet},
		{in: "2", want: ScenarioInternet},
		{in: " internet ", want: ScenarioInternet},
		{in: "extranet", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := ParseScenario(tt.in)
			if tt.wantErr {
				require.ErrorIs(err, ErrInvalidParameter)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
	assert.Equal(t, "internet", ScenarioInternet.String())
	assert.Equal(t, "Scenario(9)", Scenario(9).String())
}
