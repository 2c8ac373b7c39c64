package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// APIKeyTokenSource is an oauth2.TokenSource that exchanges an API key for
// tokens. The last token is kept and returned until it expires
type APIKeyTokenSource struct {
	// Used for all exchanges. This outlives any single request so should not
	// be a request context
	ctx           context.Context
	authenticator *Authenticator
	apiKey        string

	mu    sync.Mutex
	token *oauth2.Token
}

var _ oauth2.TokenSource = (*APIKeyTokenSource)(nil)

// NewAPIKeyTokenSource creates a token source for the given API key
func NewAPIKeyTokenSource(ctx context.Context, authenticator *Authenticator, apiKey string) *APIKeyTokenSource {
	return &APIKeyTokenSource{
		ctx:           ctx,
		authenticator: authenticator,
		apiKey:        apiKey,
	}
}

// Token returns the cached token if it is still valid, otherwise exchanges the
// API key for a new one
func (ats *APIKeyTokenSource) Token() (*oauth2.Token, error) {
	ats.mu.Lock()
	defer ats.mu.Unlock()

	if ats.token != nil && ats.token.Valid() {
		return ats.token, nil
	}

	if ats.authenticator == nil {
		return nil, errors.New("no authenticator configured")
	}

	token, err := ats.authenticator.Token(ats.ctx, ats.apiKey)
	if err != nil {
		return nil, fmt.Errorf("error exchanging API key: %w", err)
	}

	ats.token = token

	return ats.token, nil
}
