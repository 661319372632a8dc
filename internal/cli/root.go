// Package cli implements the sfbulk command line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/timmy/sfbulk/internal/app"
	"github.com/timmy/sfbulk/internal/config"
	"github.com/timmy/sfbulk/internal/domain"
	"github.com/timmy/sfbulk/internal/logger"
	"golang.org/x/term"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		if getOutputFormat(rootCmd) == outputJSON {
			errObj := map[string]any{"error": err.Error()}
			var terr *domain.TransportError
			if errors.As(err, &terr) {
				errObj["http_status"] = terr.StatusCode
				errObj["code"] = terr.ErrorCode
			}
			_ = printJSON(os.Stdout, errObj)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// session is the state shared by every subcommand of one invocation.
type session struct {
	configPath string
	logLevel   string
	app        *app.App
}

func newRootCmd() *cobra.Command {
	s := &session{}
	var output string

	rootCmd := &cobra.Command{
		Use:           "sfbulk",
		Short:         "Salesforce Bulk API 2.0 client",
		Long:          "Run and inspect Salesforce Bulk API 2.0 query and ingest jobs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("output") {
				output = defaultOutputFormat(cmd.OutOrStdout())
				_ = cmd.Root().PersistentFlags().Set("output", output)
			}
			if err := validateOutputFormat(output); err != nil {
				return err
			}

			// Logs go to stderr so stdout stays parseable.
			logger.SetDefaultLogger(logger.New(&logger.Config{
				Level:       s.logLevel,
				Format:      "text",
				Output:      cmd.ErrOrStderr(),
				ServiceName: "sfbulk-cli",
			}))

			cfg, err := config.Load(s.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			s.app, err = app.New(cmd.Context(), cfg)
			return err
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if s.app != nil {
				s.app.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&s.configPath, "config", os.Getenv("CONFIG_PATH"), "Path to config file")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "Output format: text or json (default text on a terminal, json otherwise)")
	rootCmd.PersistentFlags().StringVar(&s.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(newQueryCmd(s))
	rootCmd.AddCommand(newIngestCmd(s))
	rootCmd.AddCommand(newIngestStagedCmd(s))
	rootCmd.AddCommand(newStatusCmd(s))
	rootCmd.AddCommand(newResultsCmd(s))
	rootCmd.AddCommand(newJobsCmd(s))

	return rootCmd
}

func defaultOutputFormat(w io.Writer) string {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return outputText
	}
	return outputJSON
}
