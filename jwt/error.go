// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import "errors"

var (
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrNilParameter         = errors.New("nil parameter")
	ErrMalformedHeader      = errors.New("malformed token header")
	ErrKeyDiscoveryFailed   = errors.New("key discovery failed")
	ErrDiscoveryUnavailable = errors.New("key discovery unavailable")
	ErrUnknownKey           = errors.New("unknown signing key")
	ErrSignatureInvalid     = errors.New("invalid signature")
)
