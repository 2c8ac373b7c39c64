// Package config loads the job configuration. Values come from a Java
// properties file, flags and environment variables, all merged by viper.
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/overmindtech/flightctl/flight"
	"github.com/spf13/viper"
)

// Properties read from the configuration file
const (
	KeyProject        = "project"
	KeyNameAsset      = "name_asset"
	KeyNumeralAsset   = "numeral_asset"
	KeyConnection     = "connection"
	KeyJoinColumnName = "join_column_name"
	KeyResultPath     = "result_path"
	KeyAuthEndpoint   = "auth_endpoint"
	KeyAPIHost        = "api_host"
)

// Tunables, with defaults
const (
	KeyAuthKey       = "auth_key"
	KeyBatchSize     = "batch_size"
	KeyNumPartitions = "num_partitions"
	KeyFlightTimeout = "flight_timeout"
	KeyFormat        = "format"
	KeyHTTPTimeout   = "http_timeout"
	KeyRetries       = "retries"
	KeyTokenCache    = "token_cache"
)

// AuthKeyEnv is the environment variable holding the API key
const AuthKeyEnv = "AUTH_KEY"

// Reasons given by Load for missing values
const (
	ReasonUndefined = "configuration property is not defined"
	ReasonUnset     = "required environment variable is not set"
)

// Properties lists every property the job needs, in the order they are
// checked
var Properties = []string{
	KeyProject,
	KeyNameAsset,
	KeyNumeralAsset,
	KeyConnection,
	KeyJoinColumnName,
	KeyResultPath,
	KeyAuthEndpoint,
	KeyAPIHost,
}

// Defaults for the tunables
const (
	DefaultBatchSize     = 10000
	DefaultNumPartitions = 2
	DefaultFlightTimeout = "60s"
	DefaultFormat        = "com.ibm.connect.spark.flight"
	DefaultHTTPTimeout   = 30 * time.Second
)

// Config is everything needed to authenticate, discover and run the job
type Config struct {
	Project        string
	NameAsset      string
	NumeralAsset   string
	Connection     string
	JoinColumnName string
	ResultPath     string
	AuthEndpoint   string
	APIHost        string

	// Not part of the file, see AuthKeyEnv
	AuthKey string

	BatchSize     int
	NumPartitions int
	FlightTimeout string
	Format        string
	HTTPTimeout   time.Duration
	Retries       int
	TokenCache    string
}

// SetDefaults registers the default tunables with v
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyBatchSize, DefaultBatchSize)
	v.SetDefault(KeyNumPartitions, DefaultNumPartitions)
	v.SetDefault(KeyFlightTimeout, DefaultFlightTimeout)
	v.SetDefault(KeyFormat, DefaultFormat)
	v.SetDefault(KeyHTTPTimeout, DefaultHTTPTimeout)
	v.SetDefault(KeyRetries, 0)
}

// BindEnv reads the API key from AuthKeyEnv
func BindEnv(v *viper.Viper) error {
	return v.BindEnv(KeyAuthKey, AuthKeyEnv)
}

// ReadFile reads a properties file into v. v must know the properties format,
// see NewViper and Codecs
func ReadFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	v.SetConfigType("properties")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("could not read config file %v: %w", path, err)
	}

	return nil
}

// Load reads the configuration out of v. Each of the required keys must be
// set, this includes KeyAuthKey when the API key is needed. Tunables are
// always validated
func Load(v *viper.Viper, required ...string) (*Config, error) {
	c := &Config{
		Project:        v.GetString(KeyProject),
		NameAsset:      v.GetString(KeyNameAsset),
		NumeralAsset:   v.GetString(KeyNumeralAsset),
		Connection:     v.GetString(KeyConnection),
		JoinColumnName: v.GetString(KeyJoinColumnName),
		ResultPath:     v.GetString(KeyResultPath),
		AuthEndpoint:   v.GetString(KeyAuthEndpoint),
		APIHost:        v.GetString(KeyAPIHost),
		AuthKey:        v.GetString(KeyAuthKey),
		BatchSize:      v.GetInt(KeyBatchSize),
		NumPartitions:  v.GetInt(KeyNumPartitions),
		FlightTimeout:  v.GetString(KeyFlightTimeout),
		Format:         v.GetString(KeyFormat),
		HTTPTimeout:    v.GetDuration(KeyHTTPTimeout),
		Retries:        v.GetInt(KeyRetries),
		TokenCache:     v.GetString(KeyTokenCache),
	}

	for _, key := range required {
		if v.GetString(key) != "" {
			continue
		}

		if key == KeyAuthKey {
			return nil, &flight.ConfigError{Key: AuthKeyEnv, Reason: ReasonUnset}
		}

		return nil, &flight.ConfigError{Key: key, Reason: ReasonUndefined}
	}

	if err := c.validateTunables(); err != nil {
		return nil, err
	}

	if c.TokenCache != "" {
		path, err := homedir.Expand(c.TokenCache)
		if err != nil {
			return nil, &flight.ConfigError{Key: KeyTokenCache, Reason: err.Error()}
		}
		c.TokenCache = path
	}

	return c, nil
}

func (c *Config) validateTunables() error {
	if c.BatchSize <= 0 {
		return &flight.ConfigError{Key: KeyBatchSize, Reason: fmt.Sprintf("must be positive, got %v", c.BatchSize)}
	}

	if c.NumPartitions <= 0 {
		return &flight.ConfigError{Key: KeyNumPartitions, Reason: fmt.Sprintf("must be positive, got %v", c.NumPartitions)}
	}

	if _, err := time.ParseDuration(c.FlightTimeout); err != nil {
		return &flight.ConfigError{Key: KeyFlightTimeout, Reason: err.Error()}
	}

	if c.Format == "" {
		return &flight.ConfigError{Key: KeyFormat, Reason: "must not be empty"}
	}

	if c.HTTPTimeout < 0 {
		return &flight.ConfigError{Key: KeyHTTPTimeout, Reason: "must not be negative"}
	}

	if c.Retries < 0 {
		return &flight.ConfigError{Key: KeyRetries, Reason: "must not be negative"}
	}

	return nil
}

// ProjectRef returns a reference to the configured project
func (c *Config) ProjectRef() (flight.Project, error) {
	return flight.NewProject(c.Project)
}

// Asset returns a reference to a data asset in the configured project
func (c *Config) Asset(id string) (flight.AssetRef, error) {
	project, err := c.ProjectRef()
	if err != nil {
		return flight.AssetRef{}, err
	}

	return flight.NewDataAsset(id, project)
}

// ConnectionRef returns a reference to a connection in the configured project
func (c *Config) ConnectionRef(id string) (flight.AssetRef, error) {
	project, err := c.ProjectRef()
	if err != nil {
		return flight.AssetRef{}, err
	}

	return flight.NewConnection(id, project)
}
