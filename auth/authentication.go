// Package auth exchanges API keys for short lived bearer tokens
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/overmindtech/flightctl/flight"
	"github.com/overmindtech/flightctl/responses"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

// GrantType is sent with every API key exchange
const GrantType = "urn:ibm:params:oauth:grant-type:apikey"

// Signing algorithms accepted when reading the expiry out of an access token.
// The signature itself is never verified, the token is only inspected
var tokenAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256,
	jose.RS384,
	jose.RS512,
	jose.ES256,
	jose.PS256,
	jose.HS256,
}

// Authenticator exchanges API keys for bearer tokens against a single token
// endpoint. It keeps no state between calls and is safe for concurrent use
type Authenticator struct {
	client   *http.Client
	endpoint string
}

// NewAuthenticator creates an Authenticator that sends requests to endpoint
// using client
func NewAuthenticator(client *http.Client, endpoint string) (*Authenticator, error) {
	if client == nil {
		return nil, &flight.ConfigError{Key: "http_client", Reason: "must not be nil"}
	}

	if endpoint == "" {
		return nil, &flight.ConfigError{Key: "auth_endpoint", Reason: "must not be empty"}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, &flight.ConfigError{Key: "auth_endpoint", Reason: err.Error()}
	}

	if !u.IsAbs() || u.Host == "" {
		return nil, &flight.ConfigError{Key: "auth_endpoint", Reason: fmt.Sprintf("%q is not an absolute URL", endpoint)}
	}

	return &Authenticator{
		client:   client,
		endpoint: u.String(),
	}, nil
}

// Endpoint returns the URL that tokens are requested from
func (a *Authenticator) Endpoint() string {
	return a.endpoint
}

// AccessToken exchanges the API key for an access token
func (a *Authenticator) AccessToken(ctx context.Context, apiKey string) (string, error) {
	token, err := a.Token(ctx, apiKey)
	if err != nil {
		return "", err
	}

	return token.AccessToken, nil
}

// Token exchanges the API key for a token, including its type and expiry. If
// the server doesn't say when the token expires the expiry is read from the
// token itself, where possible. A token with a zero expiry is treated as
// never expiring
func (a *Authenticator) Token(ctx context.Context, apiKey string) (*oauth2.Token, error) {
	ctx, span := tracer.Start(ctx, "Authenticator.Token", trace.WithAttributes(
		attribute.String("flight.auth.endpoint", a.endpoint),
	))
	defer span.End()

	token, err := a.exchange(ctx, apiKey)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("flight.auth.tokenType", token.TokenType),
		attribute.String("flight.auth.expiry", token.Expiry.String()),
	)
	span.SetStatus(codes.Ok, "Completed")

	return token, nil
}

func (a *Authenticator) exchange(ctx context.Context, apiKey string) (*oauth2.Token, error) {
	if apiKey == "" {
		return nil, &flight.ConfigError{Key: "AUTH_KEY", Reason: "must not be empty"}
	}

	form := url.Values{
		"apikey":     []string{apiKey},
		"grant_type": []string{GrantType},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error creating token request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	log.WithContext(ctx).WithFields(log.Fields{
		"flight.auth.endpoint": a.endpoint,
	}).Debug("Exchanging API key for access token")

	resp, err := responses.Do(a.client, req)
	if err != nil {
		return nil, fmt.Errorf("error exchanging API key: %w", err)
	}

	if err = responses.AssertSuccess(resp); err != nil {
		return nil, fmt.Errorf("error exchanging API key: %w", err)
	}

	obj, err := responses.ParseJSONObject(resp)
	if err != nil {
		return nil, fmt.Errorf("error reading token response: %w", err)
	}

	accessToken, err := responses.StringField(obj, "access_token")
	if err != nil {
		return nil, fmt.Errorf("error reading token response: %w", err)
	}

	tokenType := "Bearer"
	if t := gjson.GetBytes(obj, "token_type"); t.Type == gjson.String && t.String() != "" {
		tokenType = t.String()
	}

	return &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   tokenType,
		Expiry:      expiry(ctx, obj, accessToken),
	}, nil
}

// expiry works out when a token expires, preferring what the server told us
// over what is in the token
func expiry(ctx context.Context, obj json.RawMessage, accessToken string) time.Time {
	if exp := gjson.GetBytes(obj, "expiration"); exp.Type == gjson.Number && exp.Int() > 0 {
		return time.Unix(exp.Int(), 0)
	}

	if in := gjson.GetBytes(obj, "expires_in"); in.Type == gjson.Number && in.Int() > 0 {
		return time.Now().Add(time.Duration(in.Int()) * time.Second)
	}

	exp, err := jwtExpiry(accessToken)
	if err != nil {
		log.WithContext(ctx).WithError(err).Debug("Access token expiry unknown")
		return time.Time{}
	}

	return exp
}

func jwtExpiry(accessToken string) (time.Time, error) {
	token, err := josejwt.ParseSigned(accessToken, tokenAlgorithms)
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing JWT: %w", err)
	}

	claims := josejwt.Claims{}

	err = token.UnsafeClaimsWithoutVerification(&claims)
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing JWT claims: %w", err)
	}

	if claims.Expiry == nil {
		return time.Time{}, nil
	}

	return claims.Expiry.Time(), nil
}
