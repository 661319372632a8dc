package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/timmy/sfbulk/internal/domain"
	"github.com/timmy/sfbulk/internal/service"
)

func newIngestCmd(s *session) *cobra.Command {
	var (
		operation  string
		files      []string
		externalID string
		format     string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ingest <object>",
		Short: "Load CSV data into an object with an ingest job",
		Long: `Load CSV data into an object. Each --file becomes its own ingest job;
several files run in parallel, bounded by bulk.workers. Use --file - for stdin.`,
		Example: `  sfbulk ingest Account --file accounts.csv
  sfbulk ingest Contact --operation upsert --external-id Ext_Id__c --file a.csv --file b.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(files) == 0 {
				return errors.New("at least one --file is required")
			}

			reqs := make([]*service.IngestRequest, 0, len(files))
			for _, f := range files {
				data, err := readInput(cmd, f)
				if err != nil {
					return err
				}
				reqs = append(reqs, &service.IngestRequest{
					Object:          args[0],
					Operation:       domain.Operation(operation),
					ExternalIDField: externalID,
					CSV:             data,
					Format:          domain.ResultFormat(format),
				})
			}

			ctx, cancel := commandContext(cmd, timeout)
			defer cancel()

			var outcomes []*service.IngestOutcome
			if len(reqs) == 1 {
				out, err := s.app.Runner.RunIngest(ctx, reqs[0])
				if err != nil {
					return err
				}
				outcomes = append(outcomes, out)
			} else {
				// Per-job errors are carried on each outcome.
				outcomes, _ = s.app.Runner.RunIngestBatch(ctx, reqs)
			}

			if err := printIngestOutcomes(cmd, files, outcomes); err != nil {
				return err
			}
			return outcomeErrors(files, outcomes)
		},
	}

	cmd.Flags().StringVar(&operation, "operation", string(domain.OperationInsert), "Operation: insert, update, upsert, delete or hardDelete")
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "CSV file to load, - for stdin (repeatable)")
	cmd.Flags().StringVar(&externalID, "external-id", "", "External id field, required for upsert")
	cmd.Flags().StringVar(&format, "format", string(domain.FormatRecords), "Result format: records, rows or raw")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this long, 0 waits indefinitely")
	return cmd
}

func readInput(cmd *cobra.Command, name string) (string, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}

func printIngestOutcomes(cmd *cobra.Command, labels []string, outcomes []*service.IngestOutcome) error {
	w := cmd.OutOrStdout()
	if getOutputFormat(cmd) == outputJSON {
		if len(outcomes) == 1 {
			return printJSON(w, outcomes[0])
		}
		return printJSON(w, outcomes)
	}

	rows := make([][]string, 0, len(outcomes))
	for i, out := range outcomes {
		row := []string{labels[i], out.Job.ID, string(out.Status.State()),
			fmt.Sprint(out.Status.NumberRecordsProcessed()),
			fmt.Sprint(out.Status.NumberRecordsFailed()),
		}
		if out.Err != nil {
			row[2] = "error: " + out.Err.Error()
		}
		rows = append(rows, row)
	}
	printTable(w, []string{"INPUT", "JOB", "STATE", "PROCESSED", "FAILED"}, rows)
	return nil
}

// outcomeErrors joins the failures of a batch, labelled per input.
func outcomeErrors(labels []string, outcomes []*service.IngestOutcome) error {
	var errs []error
	for i, out := range outcomes {
		switch {
		case out.Err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", labels[i], out.Err))
		case !out.Succeeded():
			errs = append(errs, fmt.Errorf("%s: %w", labels[i], jobError(out.Job, out.Status)))
		}
	}
	return errors.Join(errs...)
}

// jobError describes a job that did not finish cleanly.
func jobError(desc domain.JobDescriptor, status domain.JobStatus) error {
	msg := fmt.Sprintf("job %s finished in state %s", desc.ID, status.State())
	if n := status.NumberRecordsFailed(); n > 0 {
		msg += fmt.Sprintf(" with %d failed records", n)
	}
	if e := status.ErrorMessage(); e != "" {
		msg += ": " + e
	}
	return errors.New(msg)
}
