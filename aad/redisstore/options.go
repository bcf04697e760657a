// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package redisstore

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/asoet/wpo365-login/aad"
)

type options struct {
	withKeyPrefix      string
	withSessionTTL     time.Duration
	withClientCookie   string
	withInsecureCookie bool
	withLogger         hclog.Logger
}

func getDefaults() options {
	return options{
		withKeyPrefix:    DefaultKeyPrefix,
		withSessionTTL:   DefaultSessionTTL,
		withClientCookie: DefaultClientCookie,
		withLogger:       hclog.NewNullLogger(),
	}
}

func getOpts(opt ...aad.Option) options {
	opts := getDefaults()
	aad.ApplyOpts(&opts, opt...)
	return opts
}

// WithKeyPrefix provides the first segment of the keys.
func WithKeyPrefix(prefix string) aad.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok {
			v.withKeyPrefix = prefix
		}
	}
}

// WithSessionTTL provides the lifetime of session bound artifacts.
func WithSessionTTL(ttl time.Duration) aad.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok {
			v.withSessionTTL = ttl
		}
	}
}

// WithClientCookie provides the name of the cookie carrying the client id.
func WithClientCookie(name string) aad.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok {
			v.withClientCookie = name
		}
	}
}

// WithInsecureCookie issues the client id cookie without the Secure
// attribute, for local development over plain http.
func WithInsecureCookie() aad.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok {
			v.withInsecureCookie = true
		}
	}
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) aad.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && l != nil {
			v.withLogger = l
		}
	}
}
