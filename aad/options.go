// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/asoet/wpo365-login/jwt"
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

// componentOptions are the options shared by the flow components:
// SessionValidator, FlowInitiator, TokenProcessor and ExchangeClient.
type componentOptions struct {
	withLogger        hclog.Logger
	withMetrics       *Metrics
	withNow           func() time.Time
	withHTTPClient    *http.Client
	withKeySource     jwt.KeySource
	withMessenger     Messenger
	withEventHandlers []EventHandler
}

func componentDefaults() componentOptions {
	return componentOptions{
		withLogger: hclog.NewNullLogger(),
		withNow:    time.Now,
	}
}

func getComponentOpts(opt ...Option) componentOptions {
	opts := componentDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger for: SessionValidator,
// FlowInitiator, TokenProcessor, ExchangeClient, RefreshTokenStore.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if l == nil {
			return
		}
		switch v := o.(type) {
		case *componentOptions:
			v.withLogger = l
		case *refreshStoreOptions:
			v.withLogger = l
		}
	}
}

// WithNow provides an optional func for determining what the current time it
// is, for: SessionValidator, TokenProcessor, ExchangeClient, MemoryStore,
// CookieStore.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		switch v := o.(type) {
		case *componentOptions:
			v.withNow = now
		case *memoryStoreOptions:
			v.withNow = now
		case *cookieStoreOptions:
			v.withNow = now
		}
	}
}

// WithMetrics provides optional metric instruments for: SessionValidator,
// FlowInitiator, TokenProcessor, ExchangeClient.
func WithMetrics(m *Metrics) Option {
	return func(o interface{}) {
		if v, ok := o.(*componentOptions); ok {
			v.withMetrics = m
		}
	}
}

// WithHTTPClient provides an optional http client used to talk to the
// provider, for: SessionValidator, TokenProcessor, ExchangeClient. By default
// the client is created from the Config's ProviderCA and InsecureSkipVerify.
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		if v, ok := o.(*componentOptions); ok {
			v.withHTTPClient = c
		}
	}
}

// WithKeySource provides an optional source of the provider's signing keys
// for: SessionValidator, TokenProcessor. By default the keys are fetched from
// the Config's KeysURL for every token.
func WithKeySource(ks jwt.KeySource) Option {
	return func(o interface{}) {
		if v, ok := o.(*componentOptions); ok {
			v.withKeySource = ks
		}
	}
}

// WithMessenger provides an optional Messenger that is told about every
// login error code, for: SessionValidator, TokenProcessor.
func WithMessenger(m Messenger) Option {
	return func(o interface{}) {
		if v, ok := o.(*componentOptions); ok {
			v.withMessenger = m
		}
	}
}

// WithEventHandler registers an EventHandler for: SessionValidator. It can be
// used multiple times.
func WithEventHandler(h EventHandler) Option {
	return func(o interface{}) {
		if h == nil {
			return
		}
		if v, ok := o.(*componentOptions); ok {
			v.withEventHandlers = append(v.withEventHandlers, h)
		}
	}
}
