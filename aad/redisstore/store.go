// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package redisstore keeps the artifacts of Azure AD logins in Redis, keyed
// by a client id. Only the client id travels in a cookie.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"

	"github.com/asoet/wpo365-login/aad"
	"github.com/asoet/wpo365-login/sdk/id"
)

const (
	// DefaultKeyPrefix is the first segment of every key.
	DefaultKeyPrefix = "wpo365"

	// DefaultClientCookie is the name of the cookie carrying the client id.
	DefaultClientCookie = "WPO365_CLIENT"

	// DefaultSessionTTL bounds the lifetime of session bound artifacts,
	// those set with a zero ttl.
	DefaultSessionTTL = 8 * time.Hour
)

// ErrUnavailable is returned when Redis can't be reached or fails a command.
var ErrUnavailable = errors.New("artifact store unavailable")

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Store keeps artifacts of many clients in Redis.
type Store struct {
	client     redis.UniversalClient
	prefix     string
	sessionTTL time.Duration
	cookie     string
	insecure   bool
	logger     hclog.Logger
}

// New creates a Store using client.
//
// Supported options: WithKeyPrefix, WithSessionTTL, WithClientCookie,
// WithInsecureCookie, WithLogger
func New(client redis.UniversalClient, opt ...aad.Option) (*Store, error) {
	const op = "redisstore.New"
	if client == nil {
		return nil, fmt.Errorf("%s: redis client is nil: %w", op, aad.ErrNilParameter)
	}
	opts := getOpts(opt...)
	switch {
	case opts.withKeyPrefix == "":
		return nil, fmt.Errorf("%s: key prefix is empty: %w", op, aad.ErrInvalidParameter)
	case opts.withSessionTTL <= 0:
		return nil, fmt.Errorf("%s: session ttl must be positive: %w", op, aad.ErrInvalidParameter)
	case opts.withClientCookie == "":
		return nil, fmt.Errorf("%s: client cookie name is empty: %w", op, aad.ErrInvalidParameter)
	}
	return &Store{
		client:     client,
		prefix:     opts.withKeyPrefix,
		sessionTTL: opts.withSessionTTL,
		cookie:     opts.withClientCookie,
		insecure:   opts.withInsecureCookie,
		logger:     opts.withLogger,
	}, nil
}

// Ping checks Redis can be reached.
func (s *Store) Ping(ctx context.Context) error {
	const op = "Store.Ping"
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%s: %w: %s", op, ErrUnavailable, err)
	}
	return nil
}

// ForClient returns the ArtifactStore of the client identified by clientID.
func (s *Store) ForClient(clientID string) (*ClientStore, error) {
	const op = "Store.ForClient"
	if !clientIDPattern.MatchString(clientID) {
		return nil, fmt.Errorf("%s: malformed client id: %w", op, aad.ErrInvalidParameter)
	}
	return &ClientStore{store: s, clientID: clientID}, nil
}

// Stores returns a func for net/http handlers which finds the client's id in
// its cookie, or issues a new one, and returns the client's ArtifactStore.
// It can be used as a handler.StoreFunc.
func (s *Store) Stores() func(w http.ResponseWriter, req *http.Request) (aad.ArtifactStore, error) {
	return func(w http.ResponseWriter, req *http.Request) (aad.ArtifactStore, error) {
		const op = "Store.Stores"
		if c, err := req.Cookie(s.cookie); err == nil && clientIDPattern.MatchString(c.Value) {
			return s.ForClient(c.Value)
		}
		clientID, err := id.New("c")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		c := &http.Cookie{
			Name:     s.cookie,
			Value:    clientID,
			Path:     "/",
			HttpOnly: true,
			Secure:   !s.insecure,
			SameSite: http.SameSiteLaxMode,
		}
		// the provider's form post is cross-site
		if c.Secure {
			c.SameSite = http.SameSiteNoneMode
		}
		http.SetCookie(w, c)
		// the new id must be visible to anyone reading the cookie later in
		// this request
		req.AddCookie(&http.Cookie{Name: s.cookie, Value: clientID})
		s.logger.Debug("issued new client id", "path", req.URL.Path)
		return s.ForClient(clientID)
	}
}

func (s *Store) key(clientID, name string) string {
	return s.prefix + ":" + clientID + ":" + name
}

// ClientStore implements the aad.ArtifactStore interface for one client. It
// is concurrently safe.
type ClientStore struct {
	store    *Store
	clientID string
}

var _ aad.ArtifactStore = (*ClientStore)(nil)

// ClientID returns the id of the store's client.
func (c *ClientStore) ClientID() string { return c.clientID }

// Get returns the artifact's value and whether it exists. Expiry is left to
// Redis.
func (c *ClientStore) Get(ctx context.Context, name string) (string, bool, error) {
	const op = "ClientStore.Get"
	v, err := c.store.client.Get(ctx, c.store.key(c.clientID, name)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", false, nil
	case err != nil:
		c.store.logger.Error("unable to get artifact", "op", op, "name", name, "error", err)
		return "", false, fmt.Errorf("%s: %w: %s", op, ErrUnavailable, err)
	}
	return v, true, nil
}

// Set creates or replaces the artifact. A zero ttl keeps it for the store's
// session ttl.
func (c *ClientStore) Set(ctx context.Context, name, value string, ttl time.Duration) error {
	const op = "ClientStore.Set"
	switch {
	case name == "":
		return fmt.Errorf("%s: artifact name is empty: %w", op, aad.ErrInvalidParameter)
	case ttl < 0:
		return fmt.Errorf("%s: ttl is negative: %w", op, aad.ErrInvalidParameter)
	case ttl == 0:
		ttl = c.store.sessionTTL
	}
	if err := c.store.client.Set(ctx, c.store.key(c.clientID, name), value, ttl).Err(); err != nil {
		c.store.logger.Error("unable to set artifact", "op", op, "name", name, "error", err)
		return fmt.Errorf("%s: %w: %s", op, ErrUnavailable, err)
	}
	return nil
}

// Delete removes the artifact. Deleting a missing artifact is not an error.
func (c *ClientStore) Delete(ctx context.Context, name string) error {
	const op = "ClientStore.Delete"
	if err := c.store.client.Del(ctx, c.store.key(c.clientID, name)).Err(); err != nil {
		c.store.logger.Error("unable to delete artifact", "op", op, "name", name, "error", err)
		return fmt.Errorf("%s: %w: %s", op, ErrUnavailable, err)
	}
	return nil
}

// Clear removes all of the client's artifacts.
func (c *ClientStore) Clear(ctx context.Context) error {
	const op = "ClientStore.Clear"
	var keys []string
	iter := c.store.client.Scan(ctx, 0, c.store.key(c.clientID, "*"), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%s: %w: %s", op, ErrUnavailable, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.store.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%s: %w: %s", op, ErrUnavailable, err)
	}
	return nil
}
