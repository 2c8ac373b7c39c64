package flight

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/pretty"
)

// DiscoveryResult is the outcome of a single discovery request. The payload is
// copied on the way in and on the way out, so a result can be shared freely
type DiscoveryResult struct {
	raw   json.RawMessage
	kind  Context
	asset *AssetRef
}

// NewSourceResult wraps the results of discovering a data asset
func NewSourceResult(raw json.RawMessage, asset AssetRef) *DiscoveryResult {
	return &DiscoveryResult{
		raw:   bytes.Clone(raw),
		kind:  ContextSource,
		asset: &asset,
	}
}

// NewTargetResult wraps the results of discovering a path relative to a
// connection
func NewTargetResult(raw json.RawMessage) *DiscoveryResult {
	return &DiscoveryResult{
		raw:  bytes.Clone(raw),
		kind: ContextTarget,
	}
}

// Raw returns the JSON object returned by the discovery API
func (r *DiscoveryResult) Raw() json.RawMessage {
	return bytes.Clone(r.raw)
}

// Kind returns whether this was a source (asset) or target (path) discovery
func (r *DiscoveryResult) Kind() Context {
	return r.kind
}

// Asset returns the data asset that was discovered. Only source results have
// an asset
func (r *DiscoveryResult) Asset() (AssetRef, bool) {
	if r.asset == nil {
		return AssetRef{}, false
	}
	return *r.asset, true
}

// Pretty returns the discovered JSON indented for humans
func (r *DiscoveryResult) Pretty() string {
	return string(pretty.Pretty(r.raw))
}

// DeriveOptions creates an options builder seeded from a discovery result.
// This does not modify the result and each call returns a new builder
func DeriveOptions(r *DiscoveryResult, apiHost string) *OptionsBuilder {
	if asset, ok := r.Asset(); ok && r.kind == ContextSource {
		return ForAsset(apiHost, r.raw, asset)
	}

	return ForConnection(apiHost, r.raw)
}
