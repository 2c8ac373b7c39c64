package cmd

import (
	"github.com/overmindtech/flightctl/job"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// optionsCmd represents the options command
var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Prints the flight data source options for a read or a write",
	Long: `Discovers an asset or a connection path and prints the options the flight
data source needs to read from or write to it. These are the same options
the run command hands to the engine.`,
}

var optionsReadCmd = &cobra.Command{
	Use:   "read",
	Short: "Prints the options for reading a data asset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig(sessionKeys...)
		if err != nil {
			return err
		}

		asset, err := cfg.Asset(assetID(cmd, cfg))
		if err != nil {
			return err
		}

		s, err := newSession(ctx, cfg)
		if err != nil {
			return err
		}

		result, err := s.discovery.DiscoverAsset(ctx, asset)
		if err != nil {
			return err
		}

		settings := job.SettingsFromConfig(cfg)
		options := s.discovery.Options(result).
			AccessToken(s.token.AccessToken).
			BatchSize(settings.BatchSize).
			Timeout(settings.Timeout).
			NumPartitions(settings.NumPartitions).
			Build()

		return printOptions(cmd, settings.Format, options)
	},
}

var optionsWriteCmd = &cobra.Command{
	Use:   "write",
	Short: "Prints the options for writing to a path below a connection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig(sessionKeys...)
		if err != nil {
			return err
		}

		connection, path, err := connectionPath(cmd, cfg)
		if err != nil {
			return err
		}

		s, err := newSession(ctx, cfg)
		if err != nil {
			return err
		}

		result, err := s.discovery.DiscoverPath(ctx, connection, path)
		if err != nil {
			return err
		}

		settings := job.SettingsFromConfig(cfg)
		options := s.discovery.Options(result).
			AccessToken(s.token.AccessToken).
			BatchSize(settings.BatchSize).
			Timeout(settings.Timeout).
			Build()

		return printOptions(cmd, settings.Format, options)
	},
}

type optionsOutput struct {
	Format  string            `json:"format"`
	Options map[string]string `json:"options"`
}

func printOptions(cmd *cobra.Command, format string, options map[string]string) error {
	if !viper.GetBool("show-secrets") {
		options = redactOptions(options)
	}

	return printOutput(cmd.OutOrStdout(), viper.GetString("output"), optionsOutput{
		Format:  format,
		Options: options,
	})
}

func init() {
	rootCmd.AddCommand(optionsCmd)
	optionsCmd.AddCommand(optionsReadCmd)
	optionsCmd.AddCommand(optionsWriteCmd)

	optionsReadCmd.Flags().String("asset", "", "ID of the data asset, defaults to the name_asset property")
	optionsWriteCmd.Flags().String("connection", "", "ID of the connection, defaults to the connection property")
	optionsWriteCmd.Flags().String("path", "", "Path below the connection, defaults to the result_path property")
}
