package cli

import (
	"github.com/spf13/cobra"
	"github.com/timmy/sfbulk/internal/domain"
)

func newResultsCmd(s *session) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "results <query|ingest> <job-id> <category>",
		Short: "Print one result category of a job",
		Long: `Print one result category of a job. Query jobs have the category
"results"; ingest jobs have successfulResults, failedResults and
unprocessedrecords.`,
		Example: `  sfbulk results ingest 7508c00000Kz1QAAAZ failedResults --format raw > failed.csv`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseJobKind(args[0])
			if err != nil {
				return err
			}
			category, err := domain.ParseResultCategory(args[2])
			if err != nil {
				return err
			}

			desc := domain.JobDescriptor{ID: args[1], Kind: kind}
			set, err := s.app.Runner.Results(cmd.Context(), desc, category, domain.ResultFormat(format))
			if err != nil {
				return err
			}
			return printResults(cmd, set)
		},
	}

	cmd.Flags().StringVar(&format, "format", string(domain.FormatRecords), "Result format: records, rows or raw")
	return cmd
}
