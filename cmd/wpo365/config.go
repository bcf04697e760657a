// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/asoet/wpo365-login/aad"
	"github.com/asoet/wpo365-login/jwt"
)

// fileConfig is the YAML configuration of the demo application.
type fileConfig struct {
	TenantID           string            `yaml:"tenant_id"`
	ApplicationID      string            `yaml:"application_id"`
	ApplicationSecret  string            `yaml:"application_secret"`
	RedirectURL        string            `yaml:"redirect_url"`
	Scope              string            `yaml:"scope"`
	Scenario           string            `yaml:"scenario"`
	Authority          string            `yaml:"authority"`
	SigningAlgs        []string          `yaml:"signing_algs"`
	PagesBlacklist     []string          `yaml:"pages_blacklist"`
	LoginURL           string            `yaml:"login_url"`
	SiteURL            string            `yaml:"site_url"`
	AllowedStateHosts  []string          `yaml:"allowed_state_hosts"`
	Resources          map[string]string `yaml:"resources"`
	NonceTTL           time.Duration     `yaml:"nonce_ttl"`
	CodeTTL            time.Duration     `yaml:"code_ttl"`
	RefreshDuration    time.Duration     `yaml:"refresh_duration"`
	ProviderCAFile     string            `yaml:"provider_ca_file"`
	InsecureSkipVerify bool              `yaml:"insecure_skip_verify"`

	Server serverConfig `yaml:"server"`
}

type serverConfig struct {
	Listen          string        `yaml:"listen"`
	TLSCertFile     string        `yaml:"tls_cert_file"`
	TLSKeyFile      string        `yaml:"tls_key_file"`
	RedisAddr       string        `yaml:"redis_addr"`
	CookieSealKey   string        `yaml:"cookie_seal_key"`
	AdminPrefix     string        `yaml:"admin_prefix"`
	AllowedUsers    []string      `yaml:"allowed_users"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

const (
	defaultListen          = "localhost:8080"
	defaultAdminPrefix     = "/admin/"
	defaultShutdownTimeout = 10 * time.Second
)

// loadConfig reads the YAML file at path. Unknown fields are rejected.
func loadConfig(path string) (*fileConfig, error) {
	const op = "loadConfig"
	if path == "" {
		return nil, fmt.Errorf("%s: no config file given", op)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	fc := &fileConfig{}
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(fc); err != nil {
		return nil, fmt.Errorf("%s: unable to parse %s: %w", op, path, err)
	}
	if fc.Server.Listen == "" {
		fc.Server.Listen = defaultListen
	}
	if fc.Server.AdminPrefix == "" {
		fc.Server.AdminPrefix = defaultAdminPrefix
	}
	if fc.Server.ShutdownTimeout == 0 {
		fc.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	return fc, nil
}

// aadConfig converts the file's login settings to an aad.Config.
func (fc *fileConfig) aadConfig() (*aad.Config, error) {
	const op = "fileConfig.aadConfig"
	scenario, err := aad.ParseScenario(fc.Scenario)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := []aad.Option{
		aad.WithApplicationSecret(aad.ClientSecret(fc.ApplicationSecret)),
		aad.WithScope(fc.Scope),
		aad.WithScenario(scenario),
		aad.WithAuthority(fc.Authority),
		aad.WithPagesBlacklist(fc.PagesBlacklist...),
		aad.WithLoginURL(fc.LoginURL),
		aad.WithSiteURL(fc.SiteURL),
		aad.WithAllowedStateHosts(fc.AllowedStateHosts...),
		aad.WithResources(fc.Resources),
		aad.WithNonceTTL(fc.NonceTTL),
		aad.WithCodeTTL(fc.CodeTTL),
		aad.WithRefreshDuration(fc.RefreshDuration),
	}
	if len(fc.SigningAlgs) > 0 {
		algs := make([]jwt.Alg, 0, len(fc.SigningAlgs))
		for _, a := range fc.SigningAlgs {
			algs = append(algs, jwt.Alg(a))
		}
		opts = append(opts, aad.WithSupportedSigningAlgs(algs...))
	}
	if fc.ProviderCAFile != "" {
		ca, err := os.ReadFile(fc.ProviderCAFile)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to read provider CA: %w", op, err)
		}
		opts = append(opts, aad.WithProviderCA(string(ca)))
	}
	if fc.InsecureSkipVerify {
		opts = append(opts, aad.WithInsecureSkipVerify())
	}
	c, err := aad.NewConfig(fc.TenantID, fc.ApplicationID, fc.RedirectURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// sealKey decodes the hex encoded cookie seal key. An empty key yields nil
// and the server generates one at startup.
func (s serverConfig) sealKey() ([]byte, error) {
	if s.CookieSealKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s.CookieSealKey)
	if err != nil {
		return nil, fmt.Errorf("cookie seal key is not hex: %w", err)
	}
	if len(key) != 32 {
		return nil, errors.New("cookie seal key must be 32 bytes")
	}
	return key, nil
}

func (s serverConfig) tls() bool {
	return s.TLSCertFile != "" && s.TLSKeyFile != ""
}
