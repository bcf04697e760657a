// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package http builds the http clients used to talk to the identity
// provider's key discovery and token endpoints.
package http

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"

	"github.com/hashicorp/go-cleanhttp"
)

var ErrInvalidCertificatePem = errors.New("invalid certificate PEM")

// Option defines a functional option for NewClient.
type Option func(*clientOptions)

type clientOptions struct {
	withInsecureSkipVerify bool
}

func getClientOpts(opt ...Option) clientOptions {
	opts := clientOptions{}
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(&opts)
	}
	return opts
}

// WithInsecureSkipVerify disables verification of the provider's TLS
// certificate chain and host name. Only meant for test labs; it must be
// requested explicitly.
func WithInsecureSkipVerify() Option {
	return func(o *clientOptions) {
		o.withInsecureSkipVerify = true
	}
}

// NewClient creates a new http client which will use the optional CA
// certificate PEM if provided, otherwise it will use the installed system CA
// chain. The client has no timeout of its own: callers bound every request
// with their context.
func NewClient(caPEM string, opt ...Option) (*http.Client, error) {
	opts := getClientOpts(opt...)
	tr := cleanhttp.DefaultPooledTransport()

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	if caPEM != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(caPEM)); !ok {
			return nil, ErrInvalidCertificatePem
		}
		tlsConfig.RootCAs = certPool
	}
	if opts.withInsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true //nolint:gosec // explicit opt-in only
	}
	tr.TLSClientConfig = tlsConfig

	return &http.Client{
		Transport: tr,
	}, nil
}
