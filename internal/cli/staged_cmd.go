package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/timmy/sfbulk/internal/domain"
	"github.com/timmy/sfbulk/internal/service"
	"github.com/timmy/sfbulk/internal/staging"
)

func newIngestStagedCmd(s *session) *cobra.Command {
	var (
		format  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ingest-staged <dir>",
		Short: "Run one ingest job per entry of a staging manifest",
		Long: `Run one ingest job per entry of <dir>/manifest.jsonl. Each line names a
CSV file under <dir>/data and the object, operation and external id field it
loads into, for example:

  {"id":"accounts","filename":"accounts.csv","object":"Account","operation":"insert"}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := staging.Load(args[0])
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return fmt.Errorf("no staged files in %s", args[0])
			}

			ids := make([]string, 0, len(items))
			reqs := make([]*service.IngestRequest, 0, len(items))
			for _, item := range items {
				data, err := item.ReadCSV()
				if err != nil {
					return err
				}
				ids = append(ids, item.ID)
				reqs = append(reqs, &service.IngestRequest{
					Object:          item.Object,
					Operation:       item.Operation,
					ExternalIDField: item.ExternalIDField,
					CSV:             data,
					Format:          domain.ResultFormat(format),
				})
			}

			ctx, cancel := commandContext(cmd, timeout)
			defer cancel()

			outcomes, _ := s.app.Runner.RunIngestBatch(ctx, reqs)
			if err := printIngestOutcomes(cmd, ids, outcomes); err != nil {
				return err
			}

			return outcomeErrors(ids, outcomes)
		},
	}

	cmd.Flags().StringVar(&format, "format", string(domain.FormatRecords), "Result format: records, rows or raw")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this long, 0 waits indefinitely")
	return cmd
}
