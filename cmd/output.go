package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"

	"github.com/overmindtech/flightctl/flight"
	"github.com/tidwall/pretty"
	"go.yaml.in/yaml/v3"
)

const redacted = "REDACTED"

// printOutput writes v to w as json or yaml. Field names come from the json
// tags in both cases
func printOutput(w io.Writer, format string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}

	return printRaw(w, format, buf.Bytes())
}

// printRaw writes a JSON document to w without decoding numbers into floats
func printRaw(w io.Writer, format string, raw []byte) error {
	switch format {
	case "json":
		_, err := w.Write(pretty.Pretty(raw))
		return err
	case "yaml":
		return writeYAML(w, raw)
	}

	return fmt.Errorf("unsupported output format %q, use json or yaml", format)
}

func writeYAML(w io.Writer, raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(plainNumbers(doc)); err != nil {
		return err
	}

	return enc.Close()
}

// plainNumbers swaps json.Number values for plain yaml scalars. yaml would
// otherwise quote them as strings
func plainNumbers(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for key, value := range v {
			v[key] = plainNumbers(value)
		}
	case []any:
		for i, value := range v {
			v[i] = plainNumbers(value)
		}
	case json.Number:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: v.String()}
	}
	return v
}

// redactOptions hides the access token in a copy of options
func redactOptions(options map[string]string) map[string]string {
	out := maps.Clone(options)
	if _, ok := out[flight.OptionToken]; ok {
		out[flight.OptionToken] = redacted
	}
	return out
}

// redactToken hides all but the end of a token
func redactToken(token string) string {
	if len(token) <= 8 {
		return redacted
	}
	return redacted + "..." + token[len(token)-4:]
}
