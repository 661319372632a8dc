package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/timmy/sfbulk/internal/domain"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// getOutputFormat returns the effective output format from the root command's persistent flags.
func getOutputFormat(cmd *cobra.Command) string {
	v, _ := cmd.Root().PersistentFlags().GetString("output")
	return v
}

func validateOutputFormat(output string) error {
	if output != outputText && output != outputJSON {
		return fmt.Errorf("unsupported output format %q: use 'text' or 'json'", output)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(w io.Writer, columns []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if len(columns) > 0 {
		_, _ = fmt.Fprintln(tw, strings.Join(columns, "\t"))
	}
	for _, row := range rows {
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

// printStatus writes a one-job summary.
func printStatus(cmd *cobra.Command, desc domain.JobDescriptor, status domain.JobStatus) error {
	w := cmd.OutOrStdout()
	if getOutputFormat(cmd) == outputJSON {
		return printJSON(w, map[string]any{
			"job":      desc,
			"status":   status,
			"terminal": status.State().IsTerminal(),
		})
	}

	rows := [][]string{
		{"ID", desc.ID},
		{"Kind", string(desc.Kind)},
		{"State", string(status.State())},
	}
	if desc.Object != "" {
		rows = append(rows, []string{"Object", desc.Object})
	}
	if desc.Kind == domain.JobKindIngest {
		rows = append(rows,
			[]string{"Processed", fmt.Sprint(status.NumberRecordsProcessed())},
			[]string{"Failed", fmt.Sprint(status.NumberRecordsFailed())},
		)
	}
	if msg := status.ErrorMessage(); msg != "" {
		rows = append(rows, []string{"Error", msg})
	}
	printTable(w, nil, rows)
	return nil
}

// printResults writes a result set. Raw payloads are written unchanged in
// both output modes.
func printResults(cmd *cobra.Command, set domain.ResultSet) error {
	w := cmd.OutOrStdout()
	if set == nil {
		return nil
	}

	switch rs := set.(type) {
	case domain.Raw:
		_, err := io.WriteString(w, string(rs))
		return err
	case domain.Records:
		if getOutputFormat(cmd) == outputJSON {
			return printJSON(w, rs)
		}
		rows := make([][]string, 0, len(rs.Items))
		for _, item := range rs.Items {
			row := make([]string, len(rs.Fields))
			for i, f := range rs.Fields {
				row[i] = item[f]
			}
			rows = append(rows, row)
		}
		printTable(w, rs.Fields, rows)
	case domain.Rows:
		if getOutputFormat(cmd) == outputJSON {
			return printJSON(w, rs)
		}
		printTable(w, nil, rs)
	}
	return nil
}
