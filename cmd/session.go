package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/overmindtech/flightctl/auth"
	"github.com/overmindtech/flightctl/config"
	"github.com/overmindtech/flightctl/discovery"
	"github.com/overmindtech/flightctl/tokencache"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"
)

// newClient is replaced in tests
var newClient = newHTTPClient

// loadConfig reads the configuration from viper, checking that the given keys
// are set
func loadConfig(required ...string) (*config.Config, error) {
	return config.Load(viper.GetViper(), required...)
}

// fetchToken exchanges the configured API key for an access token. When a
// token cache is configured it is used first and updated afterwards
func fetchToken(ctx context.Context, cfg *config.Config, client *http.Client) (*oauth2.Token, error) {
	authenticator, err := auth.NewAuthenticator(client, cfg.AuthEndpoint)
	if err != nil {
		return nil, err
	}

	var source oauth2.TokenSource = auth.NewAPIKeyTokenSource(ctx, authenticator, cfg.AuthKey)

	if cfg.TokenCache != "" {
		cache, err := tokencache.NewBoltCache(cfg.TokenCache)
		if err != nil {
			log.WithContext(ctx).WithError(err).WithField("flight.cache.path", cfg.TokenCache).Warn("Token cache unavailable, continuing without it")
		} else {
			defer cache.Close()

			if purged, err := cache.Purge(ctx); err != nil {
				log.WithContext(ctx).WithError(err).Warn("Could not purge expired tokens")
			} else if purged > 0 {
				log.WithContext(ctx).WithField("flight.cache.purged", purged).Debug("Purged expired tokens")
			}

			source = tokencache.TokenSource(ctx, cache, tokencache.Key(authenticator.Endpoint(), cfg.AuthKey), source)
		}
	}

	return source.Token()
}

// session is an authenticated connection to the discovery API
type session struct {
	cfg       *config.Config
	token     *oauth2.Token
	discovery *discovery.Discovery
}

// newSession authenticates and prepares discovery. The configuration must
// have the auth endpoint, API key and API host set
func newSession(ctx context.Context, cfg *config.Config) (*session, error) {
	client := newClient(cfg.HTTPTimeout, cfg.Retries)

	token, err := fetchToken(ctx, cfg, client)
	if err != nil {
		return nil, fmt.Errorf("could not authenticate: %w", err)
	}

	d, err := discovery.New(client, cfg.APIHost)
	if err != nil {
		return nil, err
	}
	d.SetAccessToken(token.AccessToken)

	log.WithContext(ctx).WithFields(log.Fields{
		"flight.apiHost":     cfg.APIHost,
		"flight.tokenExpiry": token.Expiry,
	}).Debug("Authenticated")

	return &session{
		cfg:       cfg,
		token:     token,
		discovery: d,
	}, nil
}

// sessionKeys are needed by every command that talks to the discovery API
var sessionKeys = []string{config.KeyAuthEndpoint, config.KeyAPIHost, config.KeyProject, config.KeyAuthKey}
