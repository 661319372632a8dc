package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/timmy/sfbulk/internal/domain"
	"github.com/timmy/sfbulk/internal/repository"
)

func newJobsCmd(s *session) *cobra.Command {
	var (
		kind   string
		state  string
		object string
		active bool
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs recorded in the local ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if s.app.Ledger == nil {
				return errors.New("job ledger is disabled (database.enabled=false)")
			}

			filter := repository.JobFilter{
				State:  domain.JobState(state),
				Object: object,
				Active: active,
			}
			if kind != "" {
				k, err := domain.ParseJobKind(kind)
				if err != nil {
					return err
				}
				filter.Kind = k
			}

			jobs, err := s.app.Ledger.List(cmd.Context(), filter, limit, offset)
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == outputJSON {
				return printJSON(cmd.OutOrStdout(), jobs)
			}

			rows := make([][]string, 0, len(jobs))
			for _, j := range jobs {
				rows = append(rows, []string{
					j.ID,
					string(j.Kind),
					string(j.Operation),
					j.Object,
					string(j.State),
					fmt.Sprint(j.RecordsProcessed),
					fmt.Sprint(j.RecordsFailed),
					j.UpdatedAt.Format(time.RFC3339),
				})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "KIND", "OPERATION", "OBJECT", "STATE", "PROCESSED", "FAILED", "UPDATED"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Filter by job kind: query or ingest")
	cmd.Flags().StringVar(&state, "state", "", "Filter by job state")
	cmd.Flags().StringVar(&object, "object", "", "Filter by object")
	cmd.Flags().BoolVar(&active, "active", false, "Only jobs that have not reached a terminal state")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of jobs")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of jobs to skip")
	return cmd
}
