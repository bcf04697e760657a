// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-hclog"
)

// Claims are the verified claims of an Azure AD id_token.
type Claims struct {
	gojwt.RegisteredClaims

	Nonce      string `json:"nonce,omitempty"`
	ObjectID   string `json:"oid,omitempty"`
	TenantID   string `json:"tid,omitempty"`
	UPN        string `json:"upn,omitempty"`
	UniqueName string `json:"unique_name,omitempty"`
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
}

// Header holds the JOSE header fields used to pick the verification key.
type Header struct {
	KeyID     string
	Algorithm Alg
	Type      string
}

// DecodeHeader reads the token's header without verifying anything. A token
// that can't be decoded, or whose header lacks "kid" or "alg", is reported
// as ErrMalformedHeader.
func DecodeHeader(raw string) (*Header, error) {
	const op = "jwt.DecodeHeader"
	if raw == "" {
		return nil, fmt.Errorf("%s: token is empty: %w", op, ErrMalformedHeader)
	}
	tk, _, err := gojwt.NewParser().ParseUnverified(raw, gojwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%s: unable to decode token: %w: %s", op, ErrMalformedHeader, err)
	}
	kid, _ := tk.Header["kid"].(string)
	alg, _ := tk.Header["alg"].(string)
	if kid == "" || alg == "" {
		return nil, fmt.Errorf("%s: header is missing kid or alg: %w", op, ErrMalformedHeader)
	}
	typ, _ := tk.Header["typ"].(string)
	return &Header{
		KeyID:     kid,
		Algorithm: Alg(alg),
		Type:      typ,
	}, nil
}

// Validator decodes id_tokens and verifies their signature against the key
// named by the token's kid, and their expiry/issuer/audience claims.
type Validator struct {
	keys     KeySource
	issuer   string
	audience string
	algs     []Alg
	leeway   time.Duration
	now      func() time.Time
	logger   hclog.Logger
}

// NewValidator creates a Validator using keys to locate verification keys.
//
// Supported options: WithIssuer, WithAudience, WithSigningAlgorithms,
// WithLeeway, WithNow, WithLogger
func NewValidator(keys KeySource, opt ...Option) (*Validator, error) {
	const op = "jwt.NewValidator"
	if keys == nil {
		return nil, fmt.Errorf("%s: key source is nil: %w", op, ErrNilParameter)
	}
	opts := getValidatorOpts(opt...)
	if len(opts.withAlgorithms) == 0 {
		return nil, fmt.Errorf("%s: signing algorithm allow-list is empty: %w", op, ErrInvalidParameter)
	}
	if err := SupportedSigningAlgorithm(opts.withAlgorithms...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Validator{
		keys:     keys,
		issuer:   opts.withIssuer,
		audience: opts.withAudience,
		algs:     opts.withAlgorithms,
		leeway:   opts.withLeeway,
		now:      opts.withNow,
		logger:   opts.withLogger,
	}, nil
}

// DecodeAndValidate verifies raw and returns its claims.
//
// The header's alg must be in the validator's allow-list; the token never
// gets to choose an algorithm outside of it. Errors wrap one of:
// ErrMalformedHeader, ErrKeyDiscoveryFailed, ErrUnknownKey,
// ErrSignatureInvalid.
func (v *Validator) DecodeAndValidate(ctx context.Context, raw string) (*Claims, error) {
	const op = "Validator.DecodeAndValidate"
	hdr, err := DecodeHeader(raw)
	if err != nil {
		v.logger.Error("token header could not be decoded", "op", op, "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	v.logger.Debug("processing id token", "kid", hdr.KeyID, "alg", hdr.Algorithm)

	if !v.allowed(hdr.Algorithm) {
		v.logger.Error("token signed with an algorithm outside the allow-list", "kid", hdr.KeyID, "alg", hdr.Algorithm, "allowed", v.algs)
		return nil, fmt.Errorf("%s: algorithm %q is not allowed: %w", op, hdr.Algorithm, ErrSignatureInvalid)
	}

	ks, err := v.keys.Keys(ctx)
	if err != nil {
		v.logger.Error("could not retrieve public keys", "kid", hdr.KeyID, "error", err)
		return nil, fmt.Errorf("%s: %w: %w", op, ErrKeyDiscoveryFailed, err)
	}
	certB64, err := ks.Find(hdr.KeyID)
	if errors.Is(err, ErrUnknownKey) {
		if r, ok := v.keys.(Refresher); ok {
			v.logger.Debug("kid not in cached key set, refreshing", "kid", hdr.KeyID)
			if ks, rerr := r.Refresh(ctx); rerr == nil {
				certB64, err = ks.Find(hdr.KeyID)
			}
		}
	}
	if err != nil {
		v.logger.Error("could not find expected key in published keys", "kid", hdr.KeyID, "keys", len(ks.Keys))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pemString := FormatCertificatePEM(certB64)
	pub, err := ParsePublicKeyPEM([]byte(pemString))
	if err != nil {
		v.logger.Error("published key is not a usable certificate", "kid", hdr.KeyID, "error", err)
		return nil, fmt.Errorf("%s: unable to load key %q: %w: %s", op, hdr.KeyID, ErrSignatureInvalid, err)
	}

	parser := gojwt.NewParser(v.parserOptions()...)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*gojwt.Token) (interface{}, error) {
		return pub, nil
	}); err != nil {
		v.logger.Error("failed to verify token", "kid", hdr.KeyID, "alg", hdr.Algorithm, "error", err)
		return nil, fmt.Errorf("%s: %w: %s", op, ErrSignatureInvalid, err)
	}
	return claims, nil
}

func (v *Validator) allowed(a Alg) bool {
	for _, allowed := range v.algs {
		if a == allowed {
			return true
		}
	}
	return false
}

func (v *Validator) parserOptions() []gojwt.ParserOption {
	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods(algStrings(v.algs)),
		gojwt.WithExpirationRequired(),
		gojwt.WithLeeway(v.leeway),
		gojwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, gojwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, gojwt.WithAudience(v.audience))
	}
	return opts
}
