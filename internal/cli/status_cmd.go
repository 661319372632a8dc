package cli

import (
	"github.com/spf13/cobra"
	"github.com/timmy/sfbulk/internal/domain"
)

func newStatusCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:     "status <query|ingest> <job-id>",
		Short:   "Refresh and print the status of a job",
		Example: `  sfbulk status ingest 7508c00000Kz1QAAAZ`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseJobKind(args[0])
			if err != nil {
				return err
			}
			desc, status, err := s.app.Runner.Track(cmd.Context(), kind, args[1])
			if err != nil {
				return err
			}
			return printStatus(cmd, desc, status)
		},
	}
}
