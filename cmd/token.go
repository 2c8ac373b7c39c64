package cmd

import (
	"time"

	"github.com/overmindtech/flightctl/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// tokenCmd represents the token command
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Exchanges the API key for an access token",
	Long: `Exchanges the API key in AUTH_KEY for an access token at the configured
auth endpoint and prints it. The token is redacted unless --show-secrets is
set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig(config.KeyAuthEndpoint, config.KeyAuthKey)
		if err != nil {
			return err
		}

		token, err := fetchToken(ctx, cfg, newClient(cfg.HTTPTimeout, cfg.Retries))
		if err != nil {
			return err
		}

		out := tokenOutput{
			AccessToken: token.AccessToken,
			TokenType:   token.Type(),
		}
		if !token.Expiry.IsZero() {
			expiry := token.Expiry.UTC()
			out.Expiry = &expiry
		}
		if !viper.GetBool("show-secrets") {
			out.AccessToken = redactToken(out.AccessToken)
		}

		return printOutput(cmd.OutOrStdout(), viper.GetString("output"), out)
	},
}

type tokenOutput struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	Expiry      *time.Time `json:"expiry,omitempty"`
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
