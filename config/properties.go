package config

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/magiconair/properties"
	"github.com/spf13/viper"
)

// PropertiesCodec reads and writes Java properties files for viper
type PropertiesCodec struct{}

var _ viper.Codec = PropertiesCodec{}

func (PropertiesCodec) Decode(b []byte, v map[string]any) error {
	p, err := properties.Load(b, properties.UTF8)
	if err != nil {
		return err
	}

	for _, key := range p.Keys() {
		v[key] = p.MustGet(key)
	}

	return nil
}

func (PropertiesCodec) Encode(v map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(v))
	for key := range v {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	p := properties.NewProperties()
	for _, key := range keys {
		if _, _, err := p.Set(key, fmt.Sprint(v[key])); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := p.Write(&buf, properties.UTF8); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Codecs returns a registry that adds the properties format to viper's
// built-in formats
func Codecs() *viper.DefaultCodecRegistry {
	r := viper.NewCodecRegistry()
	for _, format := range []string{"properties", "props", "prop"} {
		_ = r.RegisterCodec(format, PropertiesCodec{})
	}
	return r
}

// NewViper returns a viper instance that can read properties files
func NewViper() *viper.Viper {
	return viper.NewWithOptions(viper.WithCodecRegistry(Codecs()))
}
