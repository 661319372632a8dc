package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/timmy/sfbulk/internal/domain"
	"github.com/timmy/sfbulk/internal/service"
)

func newQueryCmd(s *session) *cobra.Command {
	var (
		includeAll bool
		format     string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "query <soql>",
		Short: "Run a query job and print its results",
		Example: `  sfbulk query "SELECT Id, Name FROM Account"
  sfbulk query --all --format raw "SELECT Id FROM Contact" > contacts.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, timeout)
			defer cancel()

			out, err := s.app.Runner.RunQuery(ctx, &service.QueryRequest{
				SOQL:       args[0],
				IncludeAll: includeAll,
				Format:     domain.ResultFormat(format),
			})
			if err != nil {
				return err
			}

			if out.Results == nil {
				if err := printStatus(cmd, out.Job, out.Status); err != nil {
					return err
				}
				return jobError(out.Job, out.Status)
			}
			if getOutputFormat(cmd) == outputJSON && out.Results.Format() != domain.FormatRaw {
				return printJSON(cmd.OutOrStdout(), out)
			}
			return printResults(cmd, out.Results)
		},
	}

	cmd.Flags().BoolVar(&includeAll, "all", false, "Include deleted and archived records (queryAll)")
	cmd.Flags().StringVar(&format, "format", string(domain.FormatRecords), "Result format: records, rows or raw")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this long, 0 waits indefinitely")
	return cmd
}

// commandContext bounds the command's context by timeout when it is positive.
func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}
