package cmd

import (
	"slices"

	"github.com/overmindtech/flightctl/config"
	"github.com/overmindtech/flightctl/job"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs the join job and prints the resulting plan",
	Long: `Discovers the name and numeral assets, reads both, joins them on the
configured column and writes the result below the configured connection.

No data is moved by flightctl itself. Every engine operation is recorded and
the plan is printed so that it can be handed to a flight capable engine.
Access tokens in the plan are redacted unless --show-secrets is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig(runKeys()...)
		if err != nil {
			return err
		}

		j, err := job.FromConfig(cfg)
		if err != nil {
			return err
		}

		s, err := newSession(ctx, cfg)
		if err != nil {
			return err
		}

		runner := job.NewRunner(s.discovery, nil, job.SettingsFromConfig(cfg), s.token.AccessToken)
		engine := job.NewPlanEngine(runner.RunID)
		runner.Engine = engine

		if err := runner.Run(ctx, j); err != nil {
			log.WithContext(ctx).WithFields(log.Fields{
				"flight.job.runID": runner.RunID.String(),
				"flight.job.steps": len(engine.Plan().Steps),
			}).Warn("Job did not complete")
			return err
		}

		plan := engine.Plan()
		if !viper.GetBool("show-secrets") {
			plan = plan.Redacted()
		}

		return printOutput(cmd.OutOrStdout(), viper.GetString("output"), plan)
	},
}

// runKeys are every configuration property plus the API key
func runKeys() []string {
	keys := slices.Clone(config.Properties)
	return append(keys, config.KeyAuthKey)
}

func init() {
	rootCmd.AddCommand(runCmd)
}
