// File: cmd/run.go
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tablewise/tablepilot/internal/agent"
	"github.com/tablewise/tablepilot/internal/artifacts"
	"github.com/tablewise/tablepilot/internal/browser"
	"github.com/tablewise/tablepilot/internal/config"
	"github.com/tablewise/tablepilot/internal/llmclient"
	"github.com/tablewise/tablepilot/internal/observability"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [goal...]",
		Short: "Runs one reservation session toward the given goal",
		Long: `Runs the observe-plan-execute-verify loop against the reservation site
until the booking is ready to confirm, the goal needs more information,
or the iteration budget runs out. The final confirmation is never clicked.`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their Viper keys so command-line values override
			// the config file and environment variables.
			if err := viper.BindPFlag("agent.max_iterations", cmd.Flags().Lookup("max-iterations")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			if err := viper.BindPFlag("output.dir", cmd.Flags().Lookup("output")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()
			defer observability.Sync()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			goal := strings.Join(args, " ")
			startURL, _ := cmd.Flags().GetString("url")

			oracle, err := llmclient.NewClient(ctx, cfg.Agent.LLM, logger)
			if err != nil {
				return err
			}

			session, err := browser.NewSession(ctx, cfg.Browser, logger)
			if err != nil {
				return err
			}
			defer session.Close()

			if startURL != "" {
				if err := session.Navigate(ctx, startURL); err != nil {
					return fmt.Errorf("failed to open start page: %w", err)
				}
			}

			recorder, err := artifacts.NewFileRecorder(cfg.Output, logger)
			if err != nil {
				return err
			}

			planner, err := agent.NewCandidatePlanner(logger, oracle, cfg.Agent)
			if err != nil {
				return err
			}
			controller := agent.NewLoopController(
				logger,
				cfg.Agent,
				browser.NewPageObserver(session, logger),
				planner,
				agent.NewActionResolver(logger, session),
				agent.NewOutcomeVerifier(cfg.Agent),
				recorder,
			)

			result, err := controller.Run(ctx, goal)
			if err != nil {
				return err
			}
			if summaryErr := recorder.WriteSummary(result); summaryErr != nil {
				logger.Warn("Failed to write session summary", zap.Error(summaryErr))
			}

			printResult(cmd, result, recorder.Dir())
			return nil
		},
	}

	runCmd.Flags().String("url", "https://www.opentable.com", "URL to open before the first iteration")
	runCmd.Flags().Int("max-iterations", 15, "iteration budget for the session")
	runCmd.Flags().Bool("headless", true, "run the browser headless")
	runCmd.Flags().StringP("output", "o", "output", "directory for per-iteration artifacts")
	return runCmd
}

func printResult(cmd *cobra.Command, result *agent.SessionResult, artifactDir string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nSession ended: %s\n", result.Cause)
	fmt.Fprintf(out, "Reason: %s\n", result.Reason)
	fmt.Fprintf(out, "Iterations: %d\n", result.Iterations)
	if result.FinalURL != "" {
		fmt.Fprintf(out, "Final URL: %s\n", result.FinalURL)
	}
	if result.Question != nil {
		fmt.Fprintf(out, "Needs input: %s\n", result.Question.Text)
	}
	if result.Stop != nil && result.Stop.Status == "ready_to_book" {
		fmt.Fprintln(out, "The reservation is ready; complete the final confirmation manually.")
	}
	fmt.Fprintf(out, "Artifacts: %s\n", artifactDir)
}
