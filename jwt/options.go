// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// DefaultLeeway is the clock skew tolerated when checking time based claims.
const DefaultLeeway = 150 * time.Second

type validatorOptions struct {
	withIssuer     string
	withAudience   string
	withAlgorithms []Alg
	withLeeway     time.Duration
	withNow        func() time.Time
	withLogger     hclog.Logger
}

func validatorDefaults() validatorOptions {
	return validatorOptions{
		withAlgorithms: DefaultSigningAlgorithms,
		withLeeway:     DefaultLeeway,
		withNow:        time.Now,
		withLogger:     hclog.NewNullLogger(),
	}
}

func getValidatorOpts(opt ...Option) validatorOptions {
	opts := validatorDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

type keySourceOptions struct {
	withProviderCA         string
	withInsecureSkipVerify bool
	withHTTPClient         *http.Client
	withMaxAge             time.Duration
	withNow                func() time.Time
	withLogger             hclog.Logger
}

func keySourceDefaults() keySourceOptions {
	return keySourceOptions{
		withNow:    time.Now,
		withLogger: hclog.NewNullLogger(),
	}
}

func getKeySourceOpts(opt ...Option) keySourceOptions {
	opts := keySourceDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithIssuer sets the expected "iss" claim.
func WithIssuer(iss string) Option {
	return func(o interface{}) {
		if v, ok := o.(*validatorOptions); ok {
			v.withIssuer = iss
		}
	}
}

// WithAudience sets the expected "aud" claim. Tokens whose audience does not
// contain it are rejected.
func WithAudience(aud string) Option {
	return func(o interface{}) {
		if v, ok := o.(*validatorOptions); ok {
			v.withAudience = aud
		}
	}
}

// WithSigningAlgorithms replaces the algorithm allow-list. The "alg" header
// of a token must be one of these.
func WithSigningAlgorithms(algs ...Alg) Option {
	return func(o interface{}) {
		if v, ok := o.(*validatorOptions); ok {
			v.withAlgorithms = algs
		}
	}
}

// WithLeeway sets the clock skew tolerated for exp/nbf/iat.
func WithLeeway(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*validatorOptions); ok {
			v.withLeeway = d
		}
	}
}

// WithNow provides an optional func for determining what the current time it
// is, for: Validator, CachingKeySource.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		switch v := o.(type) {
		case *validatorOptions:
			v.withNow = now
		case *keySourceOptions:
			v.withNow = now
		}
	}
}

// WithLogger provides an optional logger for: Validator, RemoteKeySource,
// CachingKeySource.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if l == nil {
			return
		}
		switch v := o.(type) {
		case *validatorOptions:
			v.withLogger = l
		case *keySourceOptions:
			v.withLogger = l
		}
	}
}

// WithProviderCA provides an optional PEM encoded CA used to verify the key
// discovery endpoint's certificate.
func WithProviderCA(caPEM string) Option {
	return func(o interface{}) {
		if v, ok := o.(*keySourceOptions); ok {
			v.withProviderCA = caPEM
		}
	}
}

// WithInsecureSkipVerify turns off TLS verification of the key discovery
// endpoint.
func WithInsecureSkipVerify() Option {
	return func(o interface{}) {
		if v, ok := o.(*keySourceOptions); ok {
			v.withInsecureSkipVerify = true
		}
	}
}

// WithHTTPClient provides the http client used for key discovery. It takes
// precedence over WithProviderCA and WithInsecureSkipVerify.
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		if v, ok := o.(*keySourceOptions); ok {
			v.withHTTPClient = c
		}
	}
}

// WithMaxAge bounds how long a CachingKeySource serves a fetched key set.
// Zero keeps it until an unknown kid forces a refresh.
func WithMaxAge(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*keySourceOptions); ok {
			v.withMaxAge = d
		}
	}
}
