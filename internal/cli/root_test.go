package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "nutools", cmd.Use)
	assert.Contains(t, cmd.Long, "Exit status is 0")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	paths := [][]string{
		{"conddb", "get"},
		{"conddb", "load-csv"},
		{"conddb", "write"},
		{"conddb", "tag"},
		{"seeds", "run"},
		{"seeds", "check"},
	}
	for _, path := range paths {
		t.Run(path[0]+"_"+path[1], func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			require.NotNil(t, sub)
			assert.Equal(t, path[1], sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	metricsFlag := cmd.PersistentFlags().Lookup("metrics-file")
	require.NotNil(t, metricsFlag)
	assert.Equal(t, "", metricsFlag.DefValue)
}

func TestConddbFlags(t *testing.T) {
	cmd := NewRootCommand()

	tagCmd, _, err := cmd.Find([]string{"conddb", "tag"})
	require.NoError(t, err)
	override := tagCmd.Flags().Lookup("override")
	require.NotNil(t, override)
	assert.Equal(t, "bool", override.Value.Type())
	assert.Equal(t, "false", override.DefValue)

	configFlag := tagCmd.InheritedFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	writeCmd, _, err := cmd.Find([]string{"conddb", "write"})
	require.NoError(t, err)
	require.NotNil(t, writeCmd.Flags().Lookup("dry-run"))
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "--format", "xml", "seeds", "check", "seeds.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestVerboseLogsToStderr(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "seeds.yaml", "policy: autoIncrement\nbaseSeed: 1\n")

	out, errOut, err := execute(t, "--verbose", "seeds", "check", path)
	require.NoError(t, err)
	assert.Contains(t, out, "autoIncrement baseSeed=1")
	assert.Contains(t, errOut, "level=INFO")
	assert.Contains(t, errOut, "seed service configured")
}

func TestMetricsFile(t *testing.T) {
	t.Run("seeds run", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "two_modules.yaml", passingScenario)
		out := filepath.Join(t.TempDir(), "seeds.prom")

		_, _, err := execute(t, "--metrics-file", out, "seeds", "run", dir)
		require.NoError(t, err)

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Contains(t, string(data), `nutools_seed_assigned_total{frozen="false",policy="autoIncrement"} 2`)
	})

	t.Run("conddb load-csv", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "pedestals.csv", pedestalsCSV)
		out := filepath.Join(t.TempDir(), "conddb.prom")

		_, _, err := execute(t, "--metrics-file", out, "conddb", "load-csv", "--table", "pedestals", "--type", "conditions", path)
		require.NoError(t, err)

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Contains(t, string(data), `nutools_conddb_rows_loaded_total{source="csv",table="pedestals"} 1`)
	})

	t.Run("written when the command fails", func(t *testing.T) {
		srv := newWebServer(t, 500, "boom")
		cfg := conditionsConfig(t, srv.URL)
		out := filepath.Join(t.TempDir(), "failed.prom")

		_, _, err := execute(t, "--metrics-file", out, "conddb", "get", "-c", cfg)
		require.Error(t, err)
		assert.Equal(t, ExitConnection, GetExitCode(err))

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Contains(t, string(data), `nutools_conddb_web_requests_total{method="GET",status="500"} 1`)
	})

	t.Run("not written without the flag", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "two_modules.yaml", passingScenario)
		_, _, err := execute(t, "seeds", "run", dir)
		require.NoError(t, err)
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}
