package cmd

import (
	"github.com/overmindtech/flightctl/config"
	"github.com/overmindtech/flightctl/flight"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Queries the discovery API",
	Long: `Queries the discovery API for a data asset or for a path below a
connection and prints the raw response.`,
}

var discoverAssetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Discovers a data asset, as a source",
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

		return printResult(cmd, result)
	},
}

var discoverPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Discovers a path below a connection, as a target",
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

		return printResult(cmd, result)
	},
}

// assetID returns the --asset flag, falling back to the name asset
func assetID(cmd *cobra.Command, cfg *config.Config) string {
	if id, _ := cmd.Flags().GetString("asset"); id != "" {
		return id
	}
	return cfg.NameAsset
}

// connectionPath returns the connection and path from the flags, falling back
// to the configured connection and result path
func connectionPath(cmd *cobra.Command, cfg *config.Config) (flight.AssetRef, string, error) {
	id, _ := cmd.Flags().GetString("connection")
	if id == "" {
		id = cfg.Connection
	}

	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		path = cfg.ResultPath
	}

	connection, err := cfg.ConnectionRef(id)
	if err != nil {
		return flight.AssetRef{}, "", err
	}

	return connection, path, nil
}

func printResult(cmd *cobra.Command, result *flight.DiscoveryResult) error {
	return printRaw(cmd.OutOrStdout(), viper.GetString("output"), result.Raw())
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.AddCommand(discoverAssetCmd)
	discoverCmd.AddCommand(discoverPathCmd)

	discoverAssetCmd.Flags().String("asset", "", "ID of the data asset, defaults to the name_asset property")
	discoverPathCmd.Flags().String("connection", "", "ID of the connection, defaults to the connection property")
	discoverPathCmd.Flags().String("path", "", "Path below the connection, defaults to the result_path property")
}
