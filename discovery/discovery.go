package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/overmindtech/flightctl/flight"
	"github.com/overmindtech/flightctl/internal"
	"github.com/overmindtech/flightctl/responses"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrNilClient is returned by New when no HTTP client is given
var ErrNilClient = errors.New("discovery requires an HTTP client")

// Discovery queries the discovery API of a single host. The access token can
// be changed between requests. A Discovery must not be modified while
// requests are in flight
type Discovery struct {
	client  *http.Client
	apiHost string
	apiRoot *url.URL

	accessToken string
}

// New creates a Discovery that sends requests to https://{apiHost}/v2/ using
// client
func New(client *http.Client, apiHost string) (*Discovery, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	if apiHost == "" {
		return nil, &flight.ConfigError{Key: "api_host", Reason: "must not be empty"}
	}

	apiRoot, err := url.Parse(internal.APIRoot(apiHost))
	if err != nil {
		return nil, &flight.ConfigError{Key: "api_host", Reason: err.Error()}
	}

	return &Discovery{
		client:  client,
		apiHost: apiHost,
		apiRoot: apiRoot,
	}, nil
}

// APIHost returns the host that requests are sent to
func (d *Discovery) APIHost() string {
	return d.apiHost
}

// SetAccessToken sets the bearer token sent with subsequent requests. An empty
// token means requests are sent without an Authorization header
func (d *Discovery) SetAccessToken(token string) {
	d.accessToken = token
}

// DiscoverAsset looks up the metadata of a data asset
func (d *Discovery) DiscoverAsset(ctx context.Context, asset flight.AssetRef) (*flight.DiscoveryResult, error) {
	if !asset.IsDataAsset() {
		return nil, &flight.ConfigError{Key: asset.Key(), Reason: "not a data asset"}
	}

	project := asset.Container()
	ref := "connections/assets/" + enc(asset.ID()) +
		"?" + project.Key() + "=" + enc(project.ID()) +
		"&fetch=metadata&context=" + flight.ContextSource.String()

	ctx, span := tracer.Start(ctx, "Discovery.DiscoverAsset", trace.WithAttributes(
		attribute.String("flight.discovery.assetID", asset.ID()),
		attribute.String("flight.discovery.projectID", project.ID()),
	))
	defer span.End()

	raw, err := d.get(ctx, ref)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error discovering asset %v: %w", asset.ID(), err)
	}

	span.SetStatus(codes.Ok, "Completed")

	return flight.NewSourceResult(raw, asset), nil
}

// DiscoverPath looks up the metadata of the data at a path relative to a
// connection. The path does not need to exist yet, which allows discovering
// targets that are about to be written
func (d *Discovery) DiscoverPath(ctx context.Context, connection flight.AssetRef, path string) (*flight.DiscoveryResult, error) {
	if !connection.IsConnection() {
		return nil, &flight.ConfigError{Key: connection.Key(), Reason: "not a connection"}
	}

	project := connection.Container()
	ref := "connections/" + enc(connection.ID()) + "/assets" +
		"?" + project.Key() + "=" + enc(project.ID()) +
		"&path=" + enc(path) +
		"&fetch=datasource_type,connection,interaction&context=" + flight.ContextTarget.String()

	ctx, span := tracer.Start(ctx, "Discovery.DiscoverPath", trace.WithAttributes(
		attribute.String("flight.discovery.connectionID", connection.ID()),
		attribute.String("flight.discovery.projectID", project.ID()),
		attribute.String("flight.discovery.path", path),
	))
	defer span.End()

	raw, err := d.get(ctx, ref)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error discovering path %v: %w", path, err)
	}

	span.SetStatus(codes.Ok, "Completed")

	return flight.NewTargetResult(raw), nil
}

// Options creates an options builder from a discovery result, using this
// Discovery's host as the flight location
func (d *Discovery) Options(result *flight.DiscoveryResult) *flight.OptionsBuilder {
	return flight.DeriveOptions(result, d.apiHost)
}

func (d *Discovery) get(ctx context.Context, ref string) ([]byte, error) {
	rel, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("error building discovery URL: %w", err)
	}

	target := d.apiRoot.ResolveReference(rel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating discovery request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if d.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.accessToken)
	}

	log.WithContext(ctx).WithFields(log.Fields{
		"flight.discovery.url":           target.String(),
		"flight.discovery.authenticated": d.accessToken != "",
	}).Debug("Sending discovery request")

	resp, err := responses.Do(d.client, req)
	if err != nil {
		return nil, err
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("flight.discovery.statusCode", resp.StatusCode))

	if err = responses.AssertSuccess(resp); err != nil {
		return nil, err
	}

	return responses.ParseJSONObject(resp)
}

// enc form encodes a single path segment or query value
func enc(s string) string {
	return url.QueryEscape(s)
}
