package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/sfbulk/internal/bulk"
	"github.com/timmy/sfbulk/internal/bulk/bulktest"
)

type cliFixture struct {
	srv     *bulktest.Server
	cfgPath string
	dir     string
}

// newCLIFixture starts an emulator and writes a config file pointing at it.
// Jobs complete on the first poll so no test waits for the polling interval.
func newCLIFixture(t *testing.T, withLedger bool) *cliFixture {
	t.Helper()

	srv := bulktest.NewServer("tok")
	t.Cleanup(srv.Close)
	srv.SetQueryStates("JobComplete")
	srv.SetIngestStates("JobComplete")

	dir := t.TempDir()
	cfg := fmt.Sprintf(`salesforce:
  instance_url: %s
  access_token: tok
database:
  enabled: %t
  path: %s
  max_open_conns: 1
`, srv.URL, withLedger, filepath.Join(dir, "cli.db"))

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	return &cliFixture{srv: srv, cfgPath: cfgPath, dir: dir}
}

func (f *cliFixture) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", f.cfgPath}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (f *cliFixture) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestQueryCmd(t *testing.T) {
	f := newCLIFixture(t, true)
	f.srv.SetQueryResults("Id,Name\n001A,Acme\n")

	t.Run("text", func(t *testing.T) {
		out, err := f.run(t, "", "-o", "text", "query", "SELECT Id, Name FROM Account")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, []string{"Id", "Name"}, strings.Fields(lines[0]))
		assert.Equal(t, []string{"001A", "Acme"}, strings.Fields(lines[1]))
	})

	t.Run("json", func(t *testing.T) {
		out, err := f.run(t, "", "-o", "json", "query", "SELECT Id, Name FROM Account")
		require.NoError(t, err)

		var body struct {
			Job struct {
				ID   string `json:"id"`
				Kind string `json:"kind"`
			} `json:"job"`
			Results struct {
				Fields []string            `json:"fields"`
				Items  []map[string]string `json:"items"`
			} `json:"results"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &body), out)
		assert.NotEmpty(t, body.Job.ID)
		assert.Equal(t, "query", body.Job.Kind)
		assert.Equal(t, []string{"Id", "Name"}, body.Results.Fields)
		assert.Equal(t, []map[string]string{{"Id": "001A", "Name": "Acme"}}, body.Results.Items)
	})

	t.Run("raw", func(t *testing.T) {
		out, err := f.run(t, "", "-o", "json", "query", "--format", "raw", "SELECT Id, Name FROM Account")
		require.NoError(t, err)
		assert.Equal(t, "Id,Name\n001A,Acme\n", out)
	})
}

func TestQueryCmd_FailedJob(t *testing.T) {
	f := newCLIFixture(t, false)
	f.srv.SetQueryStates("Failed")

	out, err := f.run(t, "", "-o", "text", "query", "SELECT Id FROM Account")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finished in state Failed")
	assert.Contains(t, out, "Failed")
}

func TestIngestCmd_Stdin(t *testing.T) {
	f := newCLIFixture(t, true)

	out, err := f.run(t, "Name\nAcme\n", "-o", "json", "ingest", "Account", "--file", "-")
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &body), out)
	status := body["status"].(map[string]any)
	assert.Equal(t, "JobComplete", status["state"])
	job := body["job"].(map[string]any)
	id := job["id"].(string)

	out, err = f.run(t, "", "-o", "json", "jobs", "--kind", "ingest")
	require.NoError(t, err)
	var jobs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &jobs), out)
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0]["id"])

	out, err = f.run(t, "", "results", "ingest", id, "successfulResults", "--format", "raw")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "sf__Id,sf__Created,Name\n"), out)
	assert.Contains(t, out, "Acme")
}

func TestIngestCmd_FailedRecords(t *testing.T) {
	f := newCLIFixture(t, false)
	f.srv.FailRecords(func(rec map[string]string) (string, bool) {
		return "REQUIRED_FIELD_MISSING:Required fields are missing", rec["Name"] == ""
	})
	path := f.writeFile(t, "accounts.csv", "Name,Phone\nAcme,1\n,2\n")

	out, err := f.run(t, "", "-o", "text", "ingest", "Account", "--file", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "with 1 failed records")
	assert.Contains(t, out, "accounts.csv")
}

func TestIngestCmd_MultipleFiles(t *testing.T) {
	f := newCLIFixture(t, true)
	a := f.writeFile(t, "a.csv", "Name\nA\n")
	b := f.writeFile(t, "b.csv", "Name\nB\n")

	out, err := f.run(t, "", "-o", "text", "ingest", "Account", "-f", a, "-f", b)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "INPUT", strings.Fields(lines[0])[0])
	assert.Contains(t, lines[1], "a.csv")
	assert.Contains(t, lines[2], "b.csv")
	assert.Contains(t, lines[1], "JobComplete")
	assert.Contains(t, lines[2], "JobComplete")

	puts := 0
	for _, r := range f.srv.Requests() {
		if r.Method == "PUT" {
			puts++
		}
	}
	assert.Equal(t, 2, puts)
}

func TestStatusCmd(t *testing.T) {
	f := newCLIFixture(t, true)
	client := bulk.New(&bulk.Config{BaseURL: f.srv.BaseURL(), AccessToken: "tok"})
	job, err := client.Ingest.CreateUpsert(context.Background(), "Contact", "Ext__c")
	require.NoError(t, err)

	out, err := f.run(t, "", "-o", "json", "status", "ingest", job.ID())
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &body), out)
	assert.Equal(t, false, body["terminal"])
	assert.Equal(t, "Open", body["status"].(map[string]any)["state"])

	out, err = f.run(t, "", "-o", "text", "status", "ingest", job.ID())
	require.NoError(t, err)
	assert.Contains(t, out, job.ID())
	assert.Contains(t, out, "Contact")
}

func TestCommandErrors(t *testing.T) {
	f := newCLIFixture(t, false)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad output", []string{"-o", "yaml", "jobs"}, "unsupported output format"},
		{"ingest without file", []string{"ingest", "Account"}, "--file is required"},
		{"unknown kind", []string{"status", "batch", "750A"}, "batch"},
		{"unknown category", []string{"results", "ingest", "750A", "everything"}, "everything"},
		{"ledger disabled", []string{"jobs"}, "ledger is disabled"},
		{"unknown job", []string{"status", "query", "750MISSING"}, "404"},
		{"missing args", []string{"query"}, "accepts 1 arg"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.run(t, "", tc.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestMissingCredentials(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("salesforce:\n  instance_url: https://example.my.salesforce.com\n"), 0o644))

	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--config", cfgPath, "jobs"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_token")
}

func TestIngestStagedCmd(t *testing.T) {
	f := newCLIFixture(t, true)

	stage := filepath.Join(f.dir, "stage")
	require.NoError(t, os.MkdirAll(filepath.Join(stage, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stage, "data", "accounts.csv"), []byte("Name\nAcme\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(stage, "data", "contacts.csv"), []byte("LastName\nDoe\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(stage, "manifest.jsonl"), []byte(
		`{"id":"accounts","filename":"accounts.csv","object":"Account"}
{"id":"contacts","filename":"contacts.csv","object":"Contact","operation":"upsert"}
`), 0o644))

	out, err := f.run(t, "", "-o", "text", "ingest-staged", stage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contacts")
	assert.Contains(t, err.Error(), "external id field")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "accounts")
	assert.Contains(t, lines[1], "JobComplete")
	assert.Contains(t, lines[2], "contacts")
	assert.Contains(t, lines[2], "error:")
}
