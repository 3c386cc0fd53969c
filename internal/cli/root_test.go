package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gmsas95/medtwin/internal/catalog"
	"github.com/gmsas95/medtwin/internal/config"
	apperrors "github.com/gmsas95/medtwin/internal/errors"
	"github.com/gmsas95/medtwin/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const importYAML = `
metrics:
  glucose: {name: Blood Glucose, unit: mg/dL, baseline: 150, target: 110}
treatments:
  - {id: 21, name: Insulin Titration, type: Medication Adjustment, priority: high, confidence: 88, expected_impact: {glucose: -12}}
`

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MEDTWIN_LLM_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY",
		"MEDTWIN_LLM_MODEL", "GEMINI_MODEL", "MEDTWIN_LLM_BASE_URL",
		"MEDTWIN_SERVER_PORT", "PORT", "MEDTWIN_CATALOG_PATH",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand("1.2.3")
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "medtwin version 1.2.3\n", out)
}

func TestSimulate_Table(t *testing.T) {
	isolateEnv(t)

	out, _, err := execute(t, "simulate", "--data", t.TempDir(), "--apply", "2", "--apply", "3")
	require.NoError(t, err)

	assert.Contains(t, out, "METRIC")
	assert.Contains(t, out, "Blood Glucose")
	assert.Contains(t, out, "Increase Physical Activity")
	assert.Contains(t, out, "Overall Health Score:")
}

func TestSimulate_JSON(t *testing.T) {
	isolateEnv(t)

	out, _, err := execute(t, "simulate", "--data", t.TempDir(), "--apply", "3", "--json")
	require.NoError(t, err)

	var snap model.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, -2, snap.OverallHealth)
	assert.Equal(t, -10.0, snap.Metrics["glucose"].ImpactScore)
	require.Len(t, snap.Applied, 1)
}

func TestSimulate_ApplyThenRevert(t *testing.T) {
	isolateEnv(t)

	out, _, err := execute(t, "simulate", "--data", t.TempDir(), "--apply", "1,2", "--revert", "1", "--json")
	require.NoError(t, err)

	var snap model.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	require.Len(t, snap.Applied, 1)
	assert.Equal(t, 2, snap.Applied[0].ID)
}

func TestSimulate_Errors(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	_, _, err := execute(t, "simulate", "--data", dir, "--apply", "404")
	assert.True(t, errors.Is(err, apperrors.ErrTreatmentNotFound))

	_, _, err = execute(t, "simulate", "--data", dir, "--revert", "1")
	assert.True(t, errors.Is(err, apperrors.ErrTreatmentNotFound))
}

func TestReport_ToFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	_, stderr, err := execute(t, "report", "--data", dir, "--apply", "3", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Report written to")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Health Trajectory Model\nOverall Health Score: -2\n"))
}

func TestAdvise(t *testing.T) {
	isolateEnv(t)

	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Continue the plan."}]}}]}`))
	}))
	defer srv.Close()
	t.Setenv("MEDTWIN_LLM_BASE_URL", srv.URL)

	out, _, err := execute(t, "advise", "--data", t.TempDir(), "--apply", "2", "--api-key", "k-1", "--raw")
	require.NoError(t, err)
	assert.Equal(t, "Continue the plan.\n", out)
	assert.Equal(t, "k-1", gotKey)
}

func TestAdvise_MissingKey(t *testing.T) {
	isolateEnv(t)

	_, _, err := execute(t, "advise", "--data", t.TempDir(), "--raw")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCredentialMissing.Message, err.Error())
}

func TestCatalog_ImportListExport(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "import.yaml")
	require.NoError(t, os.WriteFile(src, []byte(importYAML), 0644))

	out, _, err := execute(t, "catalog", "list", "--data", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Increase Physical Activity")

	out, _, err = execute(t, "catalog", "import", src, "--data", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 treatments and 1 metrics")

	out, _, err = execute(t, "catalog", "list", "--data", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Insulin Titration")
	assert.NotContains(t, out, "Increase Physical Activity")

	out, _, err = execute(t, "catalog", "export", "--data", dir)
	require.NoError(t, err)
	exported, err := catalog.Parse([]byte(out))
	require.NoError(t, err)
	require.Len(t, exported.Treatments, 1)
	assert.Equal(t, 21, exported.Treatments[0].ID)

	out, _, err = execute(t, "simulate", "--data", dir, "--apply", "21", "--json")
	require.NoError(t, err)
	var snap model.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, -12.0, snap.Metrics["glucose"].ImpactScore)
}

func TestCatalog_ImportInvalid(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(src, []byte("metrics: {}\n"), 0644))

	_, _, err := execute(t, "catalog", "import", src, "--data", dir)
	assert.True(t, errors.Is(err, apperrors.ErrCatalogInvalid))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger(config.LoggingConfig{Level: "loud"})
	assert.True(t, errors.Is(err, apperrors.ErrConfigInvalid))
}
