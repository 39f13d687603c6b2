package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const passingScenario = `
name: two_modules
description: "autoIncrement across two modules"
config:
  policy: autoIncrement
  baseSeed: 100
modules:
  - label: gen
    engines:
      - instance: main
  - label: sim
    engines:
      - instance: main
assertions:
  - type: seed_equals
    engine: "sim:main"
    seed: 101
`

const failingScenario = `
name: wrong_seed
description: "assertion that cannot hold"
config:
  policy: autoIncrement
  baseSeed: 100
modules:
  - label: gen
    engines:
      - instance: main
assertions:
  - type: seed_equals
    engine: "gen:main"
    seed: 5
`

func TestSeedsRun_AllPass(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "two_modules.yaml", passingScenario)

	out, _, err := execute(t, "seeds", "run", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ two_modules")
	assert.Contains(t, out, "Summary: 1 passed, 0 failed, 1 total")
}

func TestSeedsRun_FailureExitCode(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "two_modules.yaml", passingScenario)
	writeFile(t, dir, "wrong_seed.yaml", failingScenario)

	out, _, err := execute(t, "seeds", "run", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_seed")
	assert.Contains(t, out, "Expected: gen:main seeded with 5")
	assert.Contains(t, out, "Summary: 1 passed, 1 failed, 2 total")
}

func TestSeedsRun_Filter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "two_modules.yaml", passingScenario)
	writeFile(t, dir, "wrong_seed.yaml", failingScenario)

	out, _, err := execute(t, "seeds", "run", dir, "--filter", "two_*")
	require.NoError(t, err)
	assert.NotContains(t, out, "wrong_seed")
}

func TestSeedsRun_GoldenUpdateAndCompare(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "two_modules.yaml", passingScenario)

	out, _, err := execute(t, "seeds", "run", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "golden updated")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "two_modules.golden"))
	require.NoError(t, err)
	want := "scenario: two_modules\n" +
		"policy: autoIncrement baseSeed=100 increment=1 checkRange=false maxUniqueEngines=0\n" +
		"trace:\n" +
		"  0001 apply gen:main 100\n" +
		"  0002 register gen:main 100\n" +
		"  0003 apply sim:main 101\n" +
		"  0004 register sim:main 101\n" +
		"seeds:\n" +
		"  gen:main 100\n" +
		"  sim:main 101\n"
	assert.Equal(t, want, string(golden))

	_, _, err = execute(t, "seeds", "run", dir)
	require.NoError(t, err)

	writeFile(t, dir, "golden/two_modules.golden", "scenario: two_modules\n")
	out, _, err = execute(t, "seeds", "run", dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestSeedsRun_JSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wrong_seed.yaml", failingScenario)

	out, _, err := execute(t, "--format", "json", "seeds", "run", dir)
	require.Error(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
		Error  *CLIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "wrong_seed", resp.Data.Scenarios[0].Name)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_SCENARIO_FAILED", resp.Error.Code)
}

func TestSeedsRun_MissingDir(t *testing.T) {
	_, _, err := execute(t, "seeds", "run", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestSeedsRun_LoadError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "name: broken\n")

	out, _, err := execute(t, "seeds", "run", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "description is required")
}

func TestSeedsCheck(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", "policy: linearMapping\nbaseSeed: 1000\nstride: 10\nendOfJobSummary: true\n")
	bad := writeFile(t, dir, "bad.yaml", "policy: linearMapping\n")

	out, _, err := execute(t, "seeds", "check", good)
	require.NoError(t, err)
	assert.Contains(t, out, "linearMapping baseSeed=1000 stride=10")

	out, _, err = execute(t, "--format", "json", "seeds", "check", good)
	require.NoError(t, err)
	var ok struct {
		Data CheckResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &ok))
	assert.True(t, ok.Data.EndOfJobSummary)

	out, _, err = execute(t, "--format", "json", "seeds", "check", bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "BAD_POLICY_CONFIG", resp.Error.Code)
}
