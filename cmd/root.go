package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/overmindtech/flightctl/config"
	"github.com/overmindtech/flightctl/flight"
	"github.com/overmindtech/flightctl/logging"
	"github.com/overmindtech/flightctl/responses"
	"github.com/overmindtech/flightctl/tracing"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/uptrace/opentelemetry-go-extra/otellogrus"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flightctl",
	Short: "Discover data assets and build flight data source options",
	Long: `flightctl exchanges an API key for an access token, discovers data assets
and connection paths, and turns the results into the options used by the
flight data source connector.

Configuration is read from a Java properties file (--config), flags and
FLIGHTCTL_* environment variables. The API key is read from AUTH_KEY.`,
	Version:       tracing.Version(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer tracing.LogRecoverToExit(ctx, "flightctl")

	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		log.WithContext(ctx).WithError(err).WithFields(errorFields(err)).Error("flightctl failed")
		os.Exit(1)
	}
}

// errorFields pulls the interesting parts out of the errors returned by the
// core packages
func errorFields(err error) log.Fields {
	fields := log.Fields{}

	var apiErr *responses.APIError
	var parseErr *responses.ParseError
	var configErr *flight.ConfigError

	switch {
	case errors.As(err, &apiErr):
		fields["flight.error.kind"] = "api"
		fields["flight.error.statusCode"] = apiErr.StatusCode
	case errors.As(err, &parseErr):
		fields["flight.error.kind"] = "parse"
		fields["flight.error.field"] = parseErr.Field
	case errors.As(err, &configErr):
		fields["flight.error.kind"] = "config"
		fields["flight.error.key"] = configErr.Key
	case errors.Is(err, responses.ErrInterrupted):
		fields["flight.error.kind"] = "interrupted"
	default:
		var transportErr *responses.TransportError
		if errors.As(err, &transportErr) {
			fields["flight.error.kind"] = "transport"
		}
	}

	return fields
}

func init() {
	viper.SetOptions(viper.WithCodecRegistry(config.Codecs()))
	cobra.OnInitialize(initConfig)
	rootCmd.SetVersionTemplate("flightctl {{.Version}} (commit " + tracing.Commit() + ")\n")

	// General config
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a Java properties file holding the job configuration")
	rootCmd.PersistentFlags().String("log", "info", "Set the log level. Valid values: panic, fatal, error, warn, info, debug, trace")
	rootCmd.PersistentFlags().Bool("json-log", false, "Set to true to emit logs as json for easier parsing.")
	rootCmd.PersistentFlags().String("output", "json", "Output format, one of: json, yaml")
	rootCmd.PersistentFlags().Bool("show-secrets", false, "Print access tokens instead of redacting them")

	// Endpoints and identity. These override the properties file
	rootCmd.PersistentFlags().String("api-host", "", "Host name of the discovery and flight APIs, e.g. api.dataplatform.cloud.ibm.com")
	rootCmd.PersistentFlags().String("auth-endpoint", "", "URL of the token endpoint that API keys are exchanged at")
	rootCmd.PersistentFlags().String("project", "", "ID of the project that defines the assets and connections")
	rootCmd.PersistentFlags().String("auth-key", "", "The API key to authenticate with, also read from the AUTH_KEY environment variable")

	// HTTP
	rootCmd.PersistentFlags().Duration("http-timeout", config.DefaultHTTPTimeout, "Timeout for each HTTP request to the auth and discovery APIs")
	rootCmd.PersistentFlags().Int("retries", 0, "How many times to retry failed HTTP requests. Nothing is retried by default")
	rootCmd.PersistentFlags().String("token-cache", "", "Path to a file used to keep access tokens between runs, ~ is expanded. Disabled when empty")

	// Flight tunables
	rootCmd.PersistentFlags().Int("batch-size", config.DefaultBatchSize, "Number of rows transferred per batch")
	rootCmd.PersistentFlags().Int("num-partitions", config.DefaultNumPartitions, "Maximum number of partitions used when reading")
	rootCmd.PersistentFlags().String("flight-timeout", config.DefaultFlightTimeout, "Default flight timeout, e.g. 60s")
	rootCmd.PersistentFlags().String("format", config.DefaultFormat, "Data source format handed to the engine")

	// tracing
	rootCmd.PersistentFlags().Bool("otel", false, "If specified, configures opentelemetry and - optionally, see --sentry-dsn - sentry using their default environment configs.")
	rootCmd.PersistentFlags().String("honeycomb-api-key", "", "If specified, configures opentelemetry libraries to submit traces to honeycomb. This requires --otel to be set.")
	rootCmd.PersistentFlags().String("sentry-dsn", "", "If specified, configures sentry libraries to capture errors. This requires --otel to be set.")
	rootCmd.PersistentFlags().String("run-mode", "release", "Set the run mode for this service, 'release', 'debug' or 'test'. Defaults to 'release'.")
	rootCmd.PersistentFlags().Bool("stdout-trace-dump", false, "Dump all otel traces to stdout for debugging. This requires --otel to be set.")

	cobra.CheckErr(viper.BindPFlags(rootCmd.PersistentFlags()))

	// flags that override configuration properties are bound under the
	// property names
	for key, flag := range configFlags {
		cobra.CheckErr(viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)))
	}
	cobra.CheckErr(viper.BindEnv("honeycomb-api-key", "FLIGHTCTL_HONEYCOMB_API_KEY", "HONEYCOMB_API_KEY"))
	cobra.CheckErr(viper.BindEnv("sentry-dsn", "FLIGHTCTL_SENTRY_DSN", "SENTRY_DSN"))

	// Run this before we do anything to set up the loglevel
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := logging.Configure(log.StandardLogger(), viper.GetString("log"), viper.GetBool("json-log")); err != nil {
			return err
		}

		if viper.GetBool("otel") {
			if err := tracing.InitTracerWithUpstreams("flightctl", viper.GetString("honeycomb-api-key"), viper.GetString("sentry-dsn")); err != nil {
				return err
			}

			log.AddHook(otellogrus.NewHook(otellogrus.WithLevels(
				log.AllLevels[:log.GetLevel()+1]...,
			)))
		}

		return nil
	}

	// shut down tracing at the end of the process
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		defer tracing.LogRecoverToReturn(cmd.Context(), "ShutdownTracer")
		tracing.ShutdownTracer(cmd.Context())
	}
}

// configFlags maps configuration keys to the flags that set them
var configFlags = map[string]string{
	config.KeyAPIHost:       "api-host",
	config.KeyAuthEndpoint:  "auth-endpoint",
	config.KeyProject:       "project",
	config.KeyAuthKey:       "auth-key",
	config.KeyHTTPTimeout:   "http-timeout",
	config.KeyRetries:       "retries",
	config.KeyTokenCache:    "token-cache",
	config.KeyBatchSize:     "batch-size",
	config.KeyNumPartitions: "num-partitions",
	config.KeyFlightTimeout: "flight-timeout",
	config.KeyFormat:        "format",
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	v := viper.GetViper()

	replacer := strings.NewReplacer("-", "_")
	v.SetEnvKeyReplacer(replacer)
	v.SetEnvPrefix("FLIGHTCTL")
	v.AutomaticEnv()

	config.SetDefaults(v)
	cobra.CheckErr(config.BindEnv(v))

	if cfgFile != "" {
		if err := config.ReadFile(v, cfgFile); err != nil {
			log.WithError(err).Fatal("Could not read config file")
		}
		log.Debugf("Using config file: %v", v.ConfigFileUsed())
	}
}
