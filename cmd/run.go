// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"droidpilot/internal/agent"
	"droidpilot/internal/config"
	"droidpilot/internal/device"
	"droidpilot/internal/observability"
	"droidpilot/internal/planner"
)

// exitInterrupted is the conventional exit code for a SIGINT-terminated run.
const exitInterrupted = 130

// errInterrupted marks a run cut short by a signal. It propagates through
// RunE so deferred cleanup still runs; Execute maps it to exitInterrupted.
var errInterrupted = errors.New("run interrupted by signal")

// defaultInstructions are standing rules every episode starts with. CLI
// instructions are merged on top; a default is dropped when a CLI
// instruction already covers it.
var defaultInstructions = []string{
	"Never change device system settings unless the goal requires it.",
	"Prefer tapping visible UI elements over typing raw coordinates.",
	"If a login or permission dialog blocks progress, declare failure instead of guessing credentials.",
}

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [goal...]",
		Short: "Runs one episode that drives the connected device toward the goal",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their corresponding Viper keys so command-line
			// flags correctly override config file and environment values.
			if err := viper.BindPFlag("agent.max_steps", cmd.Flags().Lookup("max-steps")); err != nil {
				return err
			}
			if err := viper.BindPFlag("agent.pause", cmd.Flags().Lookup("pause")); err != nil {
				return err
			}
			if err := viper.BindPFlag("agent.screenshots.dir", cmd.Flags().Lookup("screenshots")); err != nil {
				return err
			}
			if err := viper.BindPFlag("agent.keyboard_check", cmd.Flags().Lookup("keyboard-check")); err != nil {
				return err
			}
			if err := viper.BindPFlag("agent.step_confirm", cmd.Flags().Lookup("confirm")); err != nil {
				return err
			}
			if err := viper.BindPFlag("device.adb_path", cmd.Flags().Lookup("adb")); err != nil {
				return err
			}
			return viper.BindPFlag("planner.model", cmd.Flags().Lookup("model"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			keep, _ := cmd.Flags().GetBool("keep-screenshots")
			if keep {
				cfg.AgentCfg.Screenshots.Retention = "keep"
			}

			contextText, _ := cmd.Flags().GetString("context")
			extra, _ := cmd.Flags().GetStringArray("instruction")
			cfg.SetRunConfig(config.RunConfig{
				Goal:         strings.Join(args, " "),
				Context:      contextText,
				Instructions: mergeInstructions(defaultInstructions, extra),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := runEpisode(ctx, cfg, logger)
			if err != nil {
				return err
			}

			if path, _ := cmd.Flags().GetString("report"); path != "" {
				writeReport(path, report, logger)
			}

			if ctx.Err() != nil {
				logger.Warn("Run interrupted by signal")
				return errInterrupted
			}
			if report.Status != agent.StatusSucceeded {
				return fmt.Errorf("episode %s: %s", strings.ToLower(string(report.Status)), report.Reason)
			}
			return nil
		},
	}

	runCmd.Flags().String("context", "", "background information for the goal")
	runCmd.Flags().StringArray("instruction", nil, "standing instruction for the planner (repeatable)")
	runCmd.Flags().Int("max-steps", 30, "maximum number of steps before giving up")
	runCmd.Flags().Duration("pause", 0, "pause between steps (0 uses the configured default)")
	runCmd.Flags().String("screenshots", "screenshots", "directory for retained screenshots")
	runCmd.Flags().Bool("keep-screenshots", false, "retain per-step screenshots on disk")
	runCmd.Flags().String("adb", "adb", "path to the adb executable")
	runCmd.Flags().String("model", "gemini-2.5-flash", "planner model name")
	runCmd.Flags().Bool("keyboard-check", true, "probe soft keyboard visibility each step")
	runCmd.Flags().Bool("confirm", false, "wait for an enter keypress after each step")
	runCmd.Flags().String("report", "", "write the episode report to this JSON file")

	return runCmd
}

// writeReport persists the episode report. A write failure is logged, not
// fatal; the episode outcome is already known.
func writeReport(path string, report *agent.Report, logger *zap.Logger) {
	data, err := jsoniter.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Error("Cannot marshal episode report", zap.Error(err))
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Error("Cannot write episode report", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Info("Episode report written", zap.String("path", path))
}

// runEpisode wires the transport, planner, and loop, then runs one episode.
func runEpisode(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*agent.Report, error) {
	dev := device.NewADB(cfg.Device().ADBPath, logger,
		device.WithCallTimeout(cfg.Device().CallTimeout),
		device.WithSettleDelay(cfg.Device().SettleDelay),
	)
	if err := dev.Check(ctx); err != nil {
		return nil, fmt.Errorf("device check failed: %w", err)
	}

	oracle, err := planner.NewGeminiPlanner(ctx, cfg.Planner(), logger)
	if err != nil {
		return nil, fmt.Errorf("planner setup failed: %w", err)
	}

	a := agent.New(dev, oracle, cfg.Agent(), logger)
	return a.Run(ctx, cfg.Run())
}

// mergeInstructions layers extra instructions over the defaults, dropping a
// default when an extra instruction already subsumes it and deduplicating
// repeats case-insensitively.
func mergeInstructions(defaults, extra []string) []string {
	merged := make([]string, 0, len(defaults)+len(extra))

	covered := func(def string) bool {
		for _, e := range extra {
			if strings.Contains(strings.ToLower(e), strings.ToLower(def)) {
				return true
			}
		}
		return false
	}
	for _, def := range defaults {
		if !covered(def) {
			merged = append(merged, def)
		}
	}

	seen := make(map[string]bool, len(merged))
	for _, m := range merged {
		seen[strings.ToLower(m)] = true
	}
	for _, e := range extra {
		e = strings.TrimSpace(e)
		if e == "" || seen[strings.ToLower(e)] {
			continue
		}
		seen[strings.ToLower(e)] = true
		merged = append(merged, e)
	}
	return merged
}
