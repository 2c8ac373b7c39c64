package flight

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/overmindtech/flightctl/internal"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Option keys understood by the flight data source connector
const (
	OptionLocation = "flight.location"
	OptionCommand  = "flight.command"
	OptionUseTLS   = "flight.useTls"
	OptionTimeout  = "flight.timeout.default"
	OptionToken    = "flight.authToken"
)

// OptionsBuilder builds the options used when reading or writing data with
// the flight data source connector. The options are seeded from discovery
// results, see ForAsset, ForConnection and DeriveOptions.
//
// Setters overwrite any previous value and return the builder so that calls can
// be chained. Build does not change the builder and can be called any number of
// times. A builder is not safe for concurrent use.
type OptionsBuilder struct {
	apiHost string

	// The flight command as a JSON object. Kept as raw bytes so that nested
	// values from discovery are passed through untouched
	command []byte

	timeout     *string
	accessToken *string
}

func newOptionsBuilder(apiHost string) *OptionsBuilder {
	return &OptionsBuilder{
		apiHost: apiHost,
		command: []byte("{}"),
	}
}

// ForAsset seeds a builder from the results of discovering a data asset. The
// discovered fields are always copied, a missing value becomes null
func ForAsset(apiHost string, discovery json.RawMessage, asset AssetRef) *OptionsBuilder {
	b := newOptionsBuilder(apiHost)

	if fields, ok := lookup(discovery, "fields"); ok {
		b.setRaw("fields", fields)
	} else {
		b.setRaw("fields", "null")
	}

	b.set(asset.Key(), asset.ID())
	b.set(asset.Container().Key(), asset.Container().ID())
	b.set("context", ContextSource.String())

	return b
}

// ForConnection seeds a builder from the results of discovering a path
// relative to a connection. Only values that were discovered are copied
func ForConnection(apiHost string, discovery json.RawMessage) *OptionsBuilder {
	b := newOptionsBuilder(apiHost)

	if name, ok := lookup(discovery, "datasource_type.entity.name"); ok {
		b.setRaw("datasource_type", name)
	}
	if props, ok := lookup(discovery, "connection_properties"); ok {
		b.setRaw("connection_properties", props)
	}
	if props, ok := lookup(discovery, "interaction_properties"); ok {
		b.setRaw("interaction_properties", props)
	}
	if fields, ok := lookup(discovery, "fields"); ok {
		b.setRaw("fields", fields)
	}

	b.set("context", ContextTarget.String())

	return b
}

// NumPartitions sets the maximum number of partitions that can be used for
// parallelism when reading and writing
func (b *OptionsBuilder) NumPartitions(value int) *OptionsBuilder {
	b.set("num_partitions", value)
	return b
}

// BatchSize sets how many rows are transferred per round trip
func (b *OptionsBuilder) BatchSize(value int) *OptionsBuilder {
	b.set("batch_size", value)
	return b
}

// Timeout sets the default flight timeout, of the form "60s"
func (b *OptionsBuilder) Timeout(value string) *OptionsBuilder {
	b.timeout = &value
	return b
}

// AccessToken sets the token used to authenticate with the flight service
func (b *OptionsBuilder) AccessToken(value string) *OptionsBuilder {
	b.accessToken = &value
	return b
}

// Command returns a copy of the flight command as it currently stands
func (b *OptionsBuilder) Command() json.RawMessage {
	return bytes.Clone(b.command)
}

// Build renders the options
func (b *OptionsBuilder) Build() map[string]string {
	options := map[string]string{
		OptionLocation: internal.FlightLocation(b.apiHost),
		OptionCommand:  string(b.command),
		OptionUseTLS:   "true",
	}

	if b.timeout != nil {
		options[OptionTimeout] = *b.timeout
	}

	if b.accessToken != nil {
		options[OptionToken] = *b.accessToken
	}

	return options
}

func (b *OptionsBuilder) set(key string, value any) {
	command, err := sjson.SetBytes(b.command, escapeKey(key), value)
	if err != nil {
		// keys are fixed or come from validated entities, so this can only
		// be a programming error
		panic(fmt.Sprintf("setting flight command field %q: %v", key, err))
	}
	b.command = command
}

func (b *OptionsBuilder) setRaw(key string, raw string) {
	command, err := sjson.SetRawBytes(b.command, escapeKey(key), []byte(raw))
	if err != nil {
		panic(fmt.Sprintf("setting flight command field %q: %v", key, err))
	}
	b.command = command
}

// lookup returns the raw JSON found at path, if it exists and is valid
func lookup(discovery json.RawMessage, path string) (string, bool) {
	result := gjson.GetBytes(discovery, path)
	if !result.Exists() || !gjson.Valid(result.Raw) {
		return "", false
	}

	return result.Raw, true
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, `.`, `\.`, `*`, `\*`, `?`, `\?`)

// escapeKey makes a single object key safe to use as an sjson path
func escapeKey(key string) string {
	return keyEscaper.Replace(key)
}
