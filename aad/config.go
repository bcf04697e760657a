// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-multierror"

	"github.com/asoet/wpo365-login/jwt"
	sdkhttp "github.com/asoet/wpo365-login/sdk/http"
)

const (
	// DefaultAuthority is the Azure AD v1 authority.
	DefaultAuthority = "https://login.microsoftonline.com"

	// DefaultScope is requested when no scope is configured.
	DefaultScope = oidc.ScopeOpenID

	// DefaultArtifactTTL is the lifetime of the nonce and authorization code
	// artifacts.
	DefaultArtifactTTL = 120 * time.Second

	// DefaultLoginURL is the host's local login page.
	DefaultLoginURL = "/login"

	// DefaultSiteURL is where users land after login when the state URL is
	// missing or not acceptable.
	DefaultSiteURL = "/"
)

// Scenario decides which pages require an Azure AD session.
type Scenario int

const (
	// ScenarioIntranet validates the session for every page. It's the
	// default.
	ScenarioIntranet Scenario = 1

	// ScenarioInternet only validates the session for privileged (admin)
	// pages.
	ScenarioInternet Scenario = 2
)

// String returns the name of the scenario.
func (s Scenario) String() string {
	switch s {
	case ScenarioIntranet:
		return "intranet"
	case ScenarioInternet:
		return "internet"
	default:
		return fmt.Sprintf("Scenario(%d)", int(s))
	}
}

// ParseScenario parses "intranet", "internet" or their numeric values.
func ParseScenario(s string) (Scenario, error) {
	const op = "aad.ParseScenario"
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "1", "intranet":
		return ScenarioIntranet, nil
	case "2", "internet":
		return ScenarioInternet, nil
	default:
		return 0, fmt.Errorf("%s: unknown scenario %q: %w", op, s, ErrInvalidParameter)
	}
}

// ClientSecret is the application's secret used for token requests.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// Config is the configuration of an Azure AD application used to log users
// into the host. Components copy it when they are created; changing a Config
// afterwards has no effect on them.
type Config struct {
	// TenantID is the Azure AD directory (tenant) id.
	TenantID string

	// ApplicationID is the application (client) id. It's also requested as
	// the id_token's resource and expected in its "aud" claim.
	ApplicationID string

	// ApplicationSecret is only needed to exchange codes and refresh tokens
	// for access tokens.
	ApplicationSecret ClientSecret

	// RedirectURL is where the provider posts the id_token and code.
	RedirectURL string

	Scope     string
	Scenario  Scenario
	Authority string

	// KeysURL defaults to {Authority}/common/discovery/keys.
	KeysURL string

	// Issuer is the expected "iss" claim, defaulting to
	// https://sts.windows.net/{TenantID}/.
	Issuer string

	// SupportedSigningAlgs is the id_token algorithm allow-list. Defaults to
	// RS256.
	SupportedSigningAlgs []jwt.Alg

	// PagesBlacklist lists path fragments of pages that never require an
	// Azure AD session. Matching is a case-insensitive substring match.
	PagesBlacklist []string

	LoginURL string
	SiteURL  string

	// AllowedStateHosts are hosts, besides the request's own host, users may
	// be sent back to after login.
	AllowedStateHosts []string

	// Resources maps names to resource URIs for access token requests.
	Resources map[string]string

	NonceTTL time.Duration
	CodeTTL  time.Duration

	// RefreshDuration is how long refresh tokens are kept. Zero disables the
	// refresh token cache.
	RefreshDuration time.Duration

	// ProviderCA is an optional CA cert to use when sending requests to the
	// provider.
	ProviderCA string

	// InsecureSkipVerify disables TLS verification of the provider. Never
	// use it in production.
	InsecureSkipVerify bool
}

// NewConfig composes a new config with defaults for everything not set by
// the options.
//
// Supported options: WithApplicationSecret, WithScope, WithScenario,
// WithAuthority, WithKeysURL, WithIssuer, WithSupportedSigningAlgs,
// WithPagesBlacklist, WithLoginURL, WithSiteURL, WithAllowedStateHosts,
// WithResources, WithNonceTTL, WithCodeTTL, WithRefreshDuration,
// WithProviderCA, WithInsecureSkipVerify
func NewConfig(tenantID, applicationID, redirectURL string, opt ...Option) (*Config, error) {
	const op = "aad.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		TenantID:             tenantID,
		ApplicationID:        applicationID,
		ApplicationSecret:    opts.withApplicationSecret,
		RedirectURL:          redirectURL,
		Scope:                opts.withScope,
		Scenario:             opts.withScenario,
		Authority:            opts.withAuthority,
		KeysURL:              opts.withKeysURL,
		Issuer:               opts.withIssuer,
		SupportedSigningAlgs: opts.withSupportedSigningAlgs,
		PagesBlacklist:       opts.withPagesBlacklist,
		LoginURL:             opts.withLoginURL,
		SiteURL:              opts.withSiteURL,
		AllowedStateHosts:    opts.withAllowedStateHosts,
		Resources:            opts.withResources,
		NonceTTL:             opts.withNonceTTL,
		CodeTTL:              opts.withCodeTTL,
		RefreshDuration:      opts.withRefreshDuration,
		ProviderCA:           opts.withProviderCA,
		InsecureSkipVerify:   opts.withInsecureSkipVerify,
	}
	c = c.normalize()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	return c, nil
}

// IsConfigured reports whether the tenant id, application id and redirect
// URL are all set. An unconfigured Config is valid, but no user can log in
// with it.
func (c *Config) IsConfigured() bool {
	return c != nil && c.TenantID != "" && c.ApplicationID != "" && c.RedirectURL != ""
}

// Validate the configuration. An incomplete configuration (see IsConfigured)
// is not an error; malformed values are. All problems found are returned.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	invalid := func(format string, args ...interface{}) {
		result = multierror.Append(result, fmt.Errorf("%s: %s: %w", op, fmt.Sprintf(format, args...), ErrInvalidParameter))
	}

	if c.RedirectURL != "" {
		if err := validateHTTPURL(c.RedirectURL); err != nil {
			invalid("redirect URL %q: %s", c.RedirectURL, err)
		}
	}
	for name, v := range map[string]string{"authority": c.Authority, "keys URL": c.KeysURL, "issuer": c.Issuer} {
		if v == "" {
			continue
		}
		if err := validateHTTPURL(v); err != nil {
			invalid("%s %q: %s", name, v, err)
		}
	}
	switch c.Scenario {
	case 0, ScenarioIntranet, ScenarioInternet:
	default:
		invalid("unknown scenario %d", c.Scenario)
	}
	if err := jwt.SupportedSigningAlgorithm(c.SupportedSigningAlgs...); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: %w", op, err))
	}
	if c.NonceTTL < 0 || c.CodeTTL < 0 || c.RefreshDuration < 0 {
		invalid("durations must not be negative")
	}
	for name, res := range c.Resources {
		if name == "" || res == "" {
			invalid("resource %q has an empty name or URI", name)
		}
	}
	if c.ProviderCA != "" {
		if _, err := sdkhttp.NewClient(c.ProviderCA); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert))
		}
	}
	return result.ErrorOrNil()
}

func validateHTTPURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return errors.New("scheme is not http or https")
	}
	if u.Host == "" {
		return errors.New("host is empty")
	}
	return nil
}

// normalize returns a copy of c with defaults for all unset values.
func (c *Config) normalize() *Config {
	n := *c
	n.SupportedSigningAlgs = append([]jwt.Alg(nil), c.SupportedSigningAlgs...)
	n.PagesBlacklist = append([]string(nil), c.PagesBlacklist...)
	n.AllowedStateHosts = append([]string(nil), c.AllowedStateHosts...)
	if c.Resources != nil {
		n.Resources = make(map[string]string, len(c.Resources))
		for k, v := range c.Resources {
			n.Resources[k] = v
		}
	}
	if n.Scope == "" {
		n.Scope = DefaultScope
	}
	if n.Scenario == 0 {
		n.Scenario = ScenarioIntranet
	}
	n.Authority = strings.TrimSuffix(n.Authority, "/")
	if n.Authority == "" {
		n.Authority = DefaultAuthority
	}
	if n.KeysURL == "" {
		n.KeysURL = n.Authority + "/common/discovery/keys"
	}
	if n.Issuer == "" && n.TenantID != "" {
		n.Issuer = fmt.Sprintf("https://sts.windows.net/%s/", n.TenantID)
	}
	if len(n.SupportedSigningAlgs) == 0 {
		n.SupportedSigningAlgs = append(n.SupportedSigningAlgs, jwt.DefaultSigningAlgorithms...)
	}
	if n.LoginURL == "" {
		n.LoginURL = DefaultLoginURL
	}
	if n.SiteURL == "" {
		n.SiteURL = DefaultSiteURL
	}
	if n.NonceTTL == 0 {
		n.NonceTTL = DefaultArtifactTTL
	}
	if n.CodeTTL == 0 {
		n.CodeTTL = DefaultArtifactTTL
	}
	return &n
}

// AuthorizeURL is the tenant's authorize endpoint.
func (c *Config) AuthorizeURL() string {
	return fmt.Sprintf("%s/%s/oauth2/authorize", c.authority(), c.TenantID)
}

// TokenURL is the tenant's token endpoint.
func (c *Config) TokenURL() string {
	return fmt.Sprintf("%s/%s/oauth2/token", c.authority(), c.TenantID)
}

func (c *Config) authority() string {
	if c.Authority == "" {
		return DefaultAuthority
	}
	return strings.TrimSuffix(c.Authority, "/")
}

// Resource returns the resource URI registered under name, or name itself
// when there is none.
func (c *Config) Resource(name string) string {
	if res, ok := c.Resources[name]; ok {
		return res
	}
	return name
}

// HttpClient is a helper function that creates a new http client for the
// provider configured
func (c *Config) HttpClient() (*http.Client, error) {
	const op = "Config.HttpClient"
	var opts []sdkhttp.Option
	if c.InsecureSkipVerify {
		opts = append(opts, sdkhttp.WithInsecureSkipVerify())
	}
	client, err := sdkhttp.NewClient(c.ProviderCA, opts...)
	if err != nil {
		if errors.Is(err, sdkhttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

// configOptions is the set of available options for NewConfig.
type configOptions struct {
	withApplicationSecret    ClientSecret
	withScope                string
	withScenario             Scenario
	withAuthority            string
	withKeysURL              string
	withIssuer               string
	withSupportedSigningAlgs []jwt.Alg
	withPagesBlacklist       []string
	withLoginURL             string
	withSiteURL              string
	withAllowedStateHosts    []string
	withResources            map[string]string
	withNonceTTL             time.Duration
	withCodeTTL              time.Duration
	withRefreshDuration      time.Duration
	withProviderCA           string
	withInsecureSkipVerify   bool
}

func configDefaults() configOptions {
	return configOptions{}
}

func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithApplicationSecret provides the application's secret.
func WithApplicationSecret(s ClientSecret) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withApplicationSecret = s
		}
	}
}

// WithScope provides the scope requested from the provider. Multiple scopes
// are separated by spaces.
func WithScope(scope string) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withScope = scope
		}
	}
}

// WithScenario provides the scenario.
func WithScenario(s Scenario) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withScenario = s
		}
	}
}

// WithAuthority provides the base URL of the provider.
func WithAuthority(authority string) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withAuthority = authority
		}
	}
}

// WithKeysURL provides the URL of the provider's key discovery document.
func WithKeysURL(u string) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withKeysURL = u
		}
	}
}

// WithIssuer provides the expected "iss" claim.
func WithIssuer(iss string) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withIssuer = iss
		}
	}
}

// WithSupportedSigningAlgs provides the id_token algorithm allow-list.
func WithSupportedSigningAlgs(algs ...jwt.Alg) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withSupportedSigningAlgs = algs
		}
	}
}

// WithPagesBlacklist provides the pages that never require a session.
func WithPagesBlacklist(pages ...string) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withPagesBlacklist = pages
		}
	}
}

// WithLoginURL provides the URL of the host's local login page.
func WithLoginURL(u string) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withLoginURL = u
		}
	}
}

// WithSiteURL provides the URL users land on when the state URL can't be
// used.
func WithSiteURL(u string) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withSiteURL = u
		}
	}
}

// WithAllowedStateHosts provides additional hosts users may be sent back to.
func WithAllowedStateHosts(hosts ...string) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withAllowedStateHosts = hosts
		}
	}
}

// WithResources provides named resource URIs.
func WithResources(r map[string]string) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withResources = r
		}
	}
}

// WithNonceTTL provides the lifetime of the nonce artifact.
func WithNonceTTL(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withNonceTTL = d
		}
	}
}

// WithCodeTTL provides the lifetime of the authorization code artifact.
func WithCodeTTL(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withCodeTTL = d
		}
	}
}

// WithRefreshDuration provides how long refresh tokens are kept.
func WithRefreshDuration(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withRefreshDuration = d
		}
	}
}

// WithProviderCA provides an optional CA cert for the provider's config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withProviderCA = cert
		}
	}
}

// WithInsecureSkipVerify disables TLS verification of the provider.
func WithInsecureSkipVerify() Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withInsecureSkipVerify = true
		}
	}
}
