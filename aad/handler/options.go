// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"net/http"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/asoet/wpo365-login/aad"
)

// options is the set of available options for the handlers.
type options struct {
	withPrivileged    func(*http.Request) bool
	withErrorResponse ErrorResponseFunc
	withLogger        hclog.Logger
}

func getDefaults() options {
	return options{
		withPrivileged:    func(*http.Request) bool { return false },
		withErrorResponse: DefaultErrorResponse,
		withLogger:        hclog.NewNullLogger(),
	}
}

func getOpts(opt ...aad.Option) options {
	opts := getDefaults()
	aad.ApplyOpts(&opts, opt...)
	return opts
}

// WithPrivileged provides a func reporting whether a request is for an admin
// page. Requests are not privileged by default.
func WithPrivileged(fn func(*http.Request) bool) aad.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && fn != nil {
			v.withPrivileged = fn
		}
	}
}

// WithPrivilegedPrefix marks requests whose path starts with prefix as
// privileged.
func WithPrivilegedPrefix(prefix string) aad.Option {
	return WithPrivileged(func(req *http.Request) bool {
		return prefix != "" && strings.HasPrefix(req.URL.Path, prefix)
	})
}

// WithErrorResponse provides the func creating the response when a request
// can't be validated at all, because its artifact store or session could not
// be created.
func WithErrorResponse(fn ErrorResponseFunc) aad.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && fn != nil {
			v.withErrorResponse = fn
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
