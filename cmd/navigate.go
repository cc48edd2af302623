package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/waypointlabs/waypoint/api/schemas"
	"github.com/waypointlabs/waypoint/internal/agent"
	"github.com/waypointlabs/waypoint/internal/browser"
	"github.com/waypointlabs/waypoint/internal/llmclient"
	"github.com/waypointlabs/waypoint/internal/observability"
	"github.com/waypointlabs/waypoint/internal/pathmemory"
)

// newNavigateCmd creates and configures the `navigate` command.
func newNavigateCmd() *cobra.Command {
	navCmd := &cobra.Command{
		Use:   "navigate [goal...]",
		Short: "Drives the configured UI toward a natural-language goal",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so command-line values override the config file and
			// environment with the right precedence.
			if err := viper.BindPFlag("browser.start_url", cmd.Flags().Lookup("start-url")); err != nil {
				return err
			}
			if err := viper.BindPFlag("memory.file", cmd.Flags().Lookup("memory-file")); err != nil {
				return err
			}
			if err := viper.BindPFlag("gateway.provider", cmd.Flags().Lookup("provider")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			if err := viper.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("failed to re-unmarshal config with flag overrides: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.Browser.StartURL == "" {
				return fmt.Errorf("a start URL is required (--start-url or browser.start_url)")
			}

			goal := strings.Join(args, " ")
			artifactsDir, _ := cmd.Flags().GetString("artifacts-dir")
			format, _ := cmd.Flags().GetString("format")
			asJSON := format == "json"

			memPath, err := cfg.MemoryFilePath()
			if err != nil {
				return err
			}
			memory, err := pathmemory.New(pathmemory.NewFileStore(memPath), logger)
			if err != nil {
				return err
			}

			client, err := llmclient.NewClient(cfg.Gateway, logger)
			if err != nil {
				return err
			}
			gateway := llmclient.NewGateway(client, logger)

			driver, err := browser.NewChromeDriver(ctx, cfg.Browser, logger)
			if err != nil {
				return fmt.Errorf("failed to start browser session: %w", err)
			}
			defer driver.Close()

			controller := agent.NewController(gateway, driver, memory, cfg.Agent, logger)

			logger.Info("Navigating", zap.String("goal", goal), zap.String("start_url", cfg.Browser.StartURL))
			result, err := controller.Navigate(ctx, goal)
			if err != nil {
				return err
			}

			// ask_user suspends the session; answer interactively and resume
			// until the session reaches a terminal state.
			stdin := bufio.NewReader(cmd.InOrStdin())
			for result.NeedsUserInput {
				fmt.Fprintln(cmd.OutOrStdout(), result.Question)
				for i, opt := range result.Options {
					fmt.Fprintf(cmd.OutOrStdout(), "  %d) %s\n", i+1, opt)
				}
				fmt.Fprint(cmd.OutOrStdout(), "> ")
				answer, readErr := stdin.ReadString('\n')
				if readErr != nil {
					return fmt.Errorf("failed to read answer: %w", readErr)
				}
				result, err = controller.Resume(ctx, strings.TrimSpace(answer))
				if err != nil {
					return err
				}
			}

			if artifactsDir != "" && len(result.Images) > 0 {
				if err := writeArtifacts(artifactsDir, result.Images); err != nil {
					return err
				}
				logger.Info("Artifacts written",
					zap.String("dir", artifactsDir), zap.Int("count", len(result.Images)))
			}

			return printResult(cmd, result, asJSON)
		},
	}

	navCmd.Flags().String("start-url", "", "URL the browser session opens on")
	navCmd.Flags().String("memory-file", "", "path of the persisted path-memory document")
	navCmd.Flags().String("provider", "", "model provider (gemini or mock)")
	navCmd.Flags().String("artifacts-dir", "", "directory to write captured diagrams into")
	navCmd.Flags().String("format", "text", "output format: text or json")
	return navCmd
}

func printResult(cmd *cobra.Command, result schemas.SessionResult, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		// Artifact bytes are written to disk, not dumped to the terminal.
		trimmed := result
		trimmed.Images = nil
		enc, err := json.ConfigCompatibleWithStandardLibrary.MarshalIndent(trimmed, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(enc))
		return nil
	}

	if result.Success {
		fmt.Fprintf(out, "SUCCESS in %d steps\n", result.Steps)
		if result.Data != "" {
			fmt.Fprintln(out, result.Data)
		}
	} else {
		fmt.Fprintf(out, "FAILED after %d steps: %s\n", result.Steps, result.Reason)
	}
	if result.TokensUsed != nil && result.TokensUsed.Total > 0 {
		fmt.Fprintf(out, "tokens: %d prompt / %d completion\n",
			result.TokensUsed.Prompt, result.TokensUsed.Completion)
	}
	return nil
}

func writeArtifacts(dir string, artifacts []schemas.Artifact) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifacts dir: %w", err)
	}
	for i, a := range artifacts {
		ext := ".png"
		if a.MIME == "text/plain" {
			ext = ".txt"
		}
		name := sanitizeFilename(a.Label)
		if name == "" {
			name = fmt.Sprintf("artifact-%d", i+1)
		}
		path := filepath.Join(dir, fmt.Sprintf("%02d-%s%s", i+1, name, ext))
		if err := os.WriteFile(path, a.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write artifact %q: %w", path, err)
		}
	}
	return nil
}

func sanitizeFilename(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
