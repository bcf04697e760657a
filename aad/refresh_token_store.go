// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/text/cases"
)

const (
	refreshEntrySeparator = ";"
	refreshFieldSeparator = ","
)

type refreshEntry struct {
	resource string
	token    string
}

// RefreshTokenCache holds at most one refresh token per resource, in the
// order they were last set. Resources are compared case-insensitively.
//
// The zero value is an empty cache.
type RefreshTokenCache struct {
	entries []refreshEntry
}

// ParseRefreshTokenCache decodes the "resource,token;resource,token" form
// written by Encode. Malformed entries are skipped, and for duplicate
// resources the last entry wins.
func ParseRefreshTokenCache(s string) *RefreshTokenCache {
	c := &RefreshTokenCache{}
	for _, e := range strings.Split(s, refreshEntrySeparator) {
		resource, token, ok := strings.Cut(e, refreshFieldSeparator)
		if !ok || resource == "" || token == "" {
			continue
		}
		_ = c.Set(resource, token)
	}
	return c
}

// Encode returns the cache as "resource,token;resource,token".
func (c *RefreshTokenCache) Encode() string {
	parts := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		parts = append(parts, e.resource+refreshFieldSeparator+e.token)
	}
	return strings.Join(parts, refreshEntrySeparator)
}

// Len returns the number of cached tokens.
func (c *RefreshTokenCache) Len() int {
	return len(c.entries)
}

// Get returns the token cached for resource.
func (c *RefreshTokenCache) Get(resource string) (string, bool) {
	if i := c.index(resource); i >= 0 {
		return c.entries[i].token, true
	}
	return "", false
}

// Set replaces any token cached for resource with token, moving the entry
// to the end. Neither may be empty or contain "," or ";".
func (c *RefreshTokenCache) Set(resource, token string) error {
	const op = "RefreshTokenCache.Set"
	for _, v := range []string{resource, token} {
		if v == "" || strings.ContainsAny(v, refreshEntrySeparator+refreshFieldSeparator) {
			return fmt.Errorf("%s: resource and token must be non-empty and not contain %q or %q: %w", op, refreshFieldSeparator, refreshEntrySeparator, ErrInvalidParameter)
		}
	}
	c.Remove(resource)
	c.entries = append(c.entries, refreshEntry{resource: resource, token: token})
	return nil
}

// Remove drops the token cached for resource and reports whether there was
// one.
func (c *RefreshTokenCache) Remove(resource string) bool {
	i := c.index(resource)
	if i < 0 {
		return false
	}
	c.entries = append(c.entries[:i], c.entries[i+1:]...)
	return true
}

func (c *RefreshTokenCache) index(resource string) int {
	key := cases.Fold().String(resource)
	for i, e := range c.entries {
		if cases.Fold().String(e.resource) == key {
			return i
		}
	}
	return -1
}

// RefreshTokenStore keeps a client's RefreshTokenCache in its ArtifactStore.
// Every change writes the whole cache with the full refresh duration, so
// the cache lives until the client has been idle for that long.
type RefreshTokenStore struct {
	artifacts ArtifactStore
	ttl       time.Duration
	logger    hclog.Logger
}

// NewRefreshTokenStore creates a RefreshTokenStore. A zero ttl disables it:
// changes are ignored.
//
// Supported options: WithLogger
func NewRefreshTokenStore(artifacts ArtifactStore, ttl time.Duration, opt ...Option) (*RefreshTokenStore, error) {
	const op = "aad.NewRefreshTokenStore"
	if artifacts == nil {
		return nil, fmt.Errorf("%s: artifact store is nil: %w", op, ErrNilParameter)
	}
	if ttl < 0 {
		return nil, fmt.Errorf("%s: refresh duration is negative: %w", op, ErrInvalidParameter)
	}
	opts := getRefreshStoreOpts(opt...)
	return &RefreshTokenStore{
		artifacts: artifacts,
		ttl:       ttl,
		logger:    opts.withLogger,
	}, nil
}

// Get returns the refresh token cached for resource.
func (s *RefreshTokenStore) Get(ctx context.Context, resource string) (RefreshToken, bool, error) {
	const op = "RefreshTokenStore.Get"
	c, err := s.load(ctx)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	t, ok := c.Get(resource)
	return RefreshToken(t), ok, nil
}

// Set caches token for resource, replacing any previous one.
func (s *RefreshTokenStore) Set(ctx context.Context, resource string, token RefreshToken) error {
	const op = "RefreshTokenStore.Set"
	if s.ttl == 0 {
		s.logger.Debug("refresh token cache is disabled, not caching token", "resource", resource)
		return nil
	}
	c, err := s.load(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.Set(resource, string(token)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.save(ctx, c); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Debug("cached refresh token", "resource", resource, "tokens", c.Len())
	return nil
}

// Remove drops the refresh token cached for resource.
func (s *RefreshTokenStore) Remove(ctx context.Context, resource string) error {
	const op = "RefreshTokenStore.Remove"
	if s.ttl == 0 {
		return nil
	}
	c, err := s.load(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !c.Remove(resource) {
		return nil
	}
	if err := s.save(ctx, c); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Debug("removed refresh token", "resource", resource, "tokens", c.Len())
	return nil
}

func (s *RefreshTokenStore) load(ctx context.Context) (*RefreshTokenCache, error) {
	v, ok, err := s.artifacts.Get(ctx, RefreshTokensArtifact)
	if err != nil {
		return nil, fmt.Errorf("unable to read refresh tokens: %w", err)
	}
	if !ok {
		return &RefreshTokenCache{}, nil
	}
	return ParseRefreshTokenCache(v), nil
}

func (s *RefreshTokenStore) save(ctx context.Context, c *RefreshTokenCache) error {
	if c.Len() == 0 {
		if err := s.artifacts.Delete(ctx, RefreshTokensArtifact); err != nil {
			return fmt.Errorf("unable to delete refresh tokens: %w", err)
		}
		return nil
	}
	if err := s.artifacts.Set(ctx, RefreshTokensArtifact, c.Encode(), s.ttl); err != nil {
		return fmt.Errorf("unable to write refresh tokens: %w", err)
	}
	return nil
}

type refreshStoreOptions struct {
	withLogger hclog.Logger
}

func getRefreshStoreOpts(opt ...Option) refreshStoreOptions {
	opts := refreshStoreOptions{withLogger: hclog.NewNullLogger()}
	ApplyOpts(&opts, opt...)
	return opts
}
