package tokencache

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Cache is what a cached token source needs from a cache
type Cache interface {
	Lookup(ctx context.Context, key string) (*oauth2.Token, error)
	Store(ctx context.Context, key string, token *oauth2.Token) error
}

type cachedTokenSource struct {
	ctx   context.Context
	cache Cache
	key   string
	base  oauth2.TokenSource
}

// TokenSource returns tokens from the cache when possible and from base
// otherwise. New tokens from base are written back to the cache. Cache
// failures are logged and otherwise ignored, the token from base is still
// returned
func TokenSource(ctx context.Context, cache Cache, key string, base oauth2.TokenSource) oauth2.TokenSource {
	return &cachedTokenSource{
		ctx:   ctx,
		cache: cache,
		key:   key,
		base:  base,
	}
}

func (s *cachedTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.cache.Lookup(s.ctx, s.key)
	if err == nil {
		log.WithContext(s.ctx).WithField("flight.cache.expiry", token.Expiry).Debug("Using cached access token")
		return token, nil
	}

	if !errors.Is(err, ErrCacheNotFound) {
		log.WithContext(s.ctx).WithError(err).Warn("Could not read token cache")
	}

	token, err = s.base.Token()
	if err != nil {
		return nil, err
	}

	if err := s.cache.Store(s.ctx, s.key, token); err != nil {
		log.WithContext(s.ctx).WithError(err).Warn("Could not write token cache")
	}

	return token, nil
}
