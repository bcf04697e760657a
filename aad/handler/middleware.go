// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"fmt"
	"net/http"

	"github.com/hashicorp/go-hclog"

	"github.com/asoet/wpo365-login/aad"
)

// Middleware creates middleware validating the Azure AD session of every
// request before it reaches next. Requests the validator lets continue are
// passed on, all other outcomes are sent as a 302 redirect.
//
// Supported options: WithPrivileged, WithPrivilegedPrefix, WithErrorResponse,
// WithLogger
func Middleware(v *aad.SessionValidator, stores StoreFunc, sessions SessionFunc, opt ...aad.Option) (func(http.Handler) http.Handler, error) {
	const op = "handler.Middleware"
	if err := checkParams(v, stores, sessions); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getOpts(opt...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			r, ok := newRequest(w, req, stores, sessions, opts)
			if !ok {
				return
			}
			o := v.Validate(req.Context(), r)
			if !o.IsRedirect() {
				next.ServeHTTP(w, req)
				return
			}
			redirect(w, req, o, opts.withLogger)
		})
	}, nil
}

// Callback creates a handler for the application's redirect URL, which the
// provider posts its response to. Requests without a provider response are
// rejected with a 400.
//
// Supported options: WithErrorResponse, WithLogger
func Callback(v *aad.SessionValidator, stores StoreFunc, sessions SessionFunc, opt ...aad.Option) (http.HandlerFunc, error) {
	const op = "handler.Callback"
	if err := checkParams(v, stores, sessions); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getOpts(opt...)
	return func(w http.ResponseWriter, req *http.Request) {
		// FormValue prioritizes body values, if found
		if req.FormValue("error") == "" && (req.FormValue("state") == "" || req.FormValue("id_token") == "") {
			http.Error(w, "not an azure ad response", http.StatusBadRequest)
			return
		}
		r, ok := newRequest(w, req, stores, sessions, opts)
		if !ok {
			return
		}
		redirect(w, req, v.Validate(req.Context(), r), opts.withLogger)
	}, nil
}

// Logout creates a handler ending the client's Azure AD and host session,
// sending it to the local login page.
//
// Supported options: WithErrorResponse, WithLogger
func Logout(v *aad.SessionValidator, stores StoreFunc, sessions SessionFunc, opt ...aad.Option) (http.HandlerFunc, error) {
	const op = "handler.Logout"
	if err := checkParams(v, stores, sessions); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getOpts(opt...)
	return func(w http.ResponseWriter, req *http.Request) {
		r, ok := newRequest(w, req, stores, sessions, opts)
		if !ok {
			return
		}
		redirect(w, req, v.Goodbye(req.Context(), r, ""), opts.withLogger)
	}, nil
}

func checkParams(v *aad.SessionValidator, stores StoreFunc, sessions SessionFunc) error {
	switch {
	case v == nil:
		return fmt.Errorf("session validator is nil: %w", aad.ErrNilParameter)
	case stores == nil:
		return fmt.Errorf("store func is nil: %w", aad.ErrNilParameter)
	case sessions == nil:
		return fmt.Errorf("session func is nil: %w", aad.ErrNilParameter)
	}
	return nil
}

func newRequest(w http.ResponseWriter, req *http.Request, stores StoreFunc, sessions SessionFunc, opts options) (*aad.Request, bool) {
	artifacts, err := stores(w, req)
	if err != nil {
		opts.withLogger.Error("unable to get artifact store", "path", req.URL.Path, "error", err)
		opts.withErrorResponse(err, w, req)
		return nil, false
	}
	sess, err := sessions(w, req)
	if err != nil {
		opts.withLogger.Error("unable to get local session", "path", req.URL.Path, "error", err)
		opts.withErrorResponse(err, w, req)
		return nil, false
	}
	return &aad.Request{
		HTTP:       req,
		Artifacts:  artifacts,
		Session:    sess,
		Privileged: opts.withPrivileged(req),
	}, true
}

func redirect(w http.ResponseWriter, req *http.Request, o aad.Outcome, logger hclog.Logger) {
	if o.Err != nil {
		logger.Debug("redirecting after failed login", "kind", o.Kind, "code", o.Code, "error", o.Err)
	}
	location := o.Location
	if location == "" {
		location = "/"
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, req, location, http.StatusFound)
}
