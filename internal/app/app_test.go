package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gmsas95/medtwin/internal/catalog"
	"github.com/gmsas95/medtwin/internal/config"
	apperrors "github.com/gmsas95/medtwin/internal/errors"
	"github.com/gmsas95/medtwin/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const customCatalog = `
metrics:
  glucose: {name: Blood Glucose, unit: mg/dL, baseline: 150, target: 110}
treatments:
  - {id: 11, name: Insulin Titration, type: Medication Adjustment, expected_impact: {glucose: -10, ldl: -5}}
`

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		version string
	}{
		{name: "create app with version", version: "1.0.0"},
		{name: "create app with dev version", version: "dev"},
		{name: "create app with empty version", version: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := New(config.Default(), nil, tt.version)
			require.NotNil(t, app)
			assert.Equal(t, tt.version, app.Version)
			assert.NotNil(t, app.Logger)
		})
	}
}

func TestInit_Defaults(t *testing.T) {
	app := New(config.Default(), zap.NewNop(), "test")
	require.NoError(t, app.Init())

	assert.Len(t, app.Catalog.Treatments, 4)
	assert.NotNil(t, app.Session)
	assert.NotNil(t, app.Advisor)
	assert.NotNil(t, app.Analyzer)

	_, err := app.Session.ApplyByID(1)
	require.NoError(t, err)
	_, err = app.Session.ApplyByID(1)
	assert.NoError(t, err, "stack policy allows repeats")
}

func TestInit_RejectPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Model.DuplicatePolicy = "reject"

	app := New(cfg, nil, "test")
	require.NoError(t, app.Init())

	_, err := app.Session.ApplyByID(1)
	require.NoError(t, err)
	_, err = app.Session.ApplyByID(1)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyApplied))
}

func TestLoadCatalog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(customCatalog), 0644))

	cfg := config.Default()
	cfg.Catalog.Path = path

	cat, err := LoadCatalog(cfg, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, cat.Treatments, 1)
	assert.Equal(t, 11, cat.Treatments[0].ID)
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	cfg := config.Default()
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := LoadCatalog(cfg, zap.NewNop())
	assert.True(t, errors.Is(err, apperrors.ErrCatalogNotFound))
}

func TestLoadCatalog_Store(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	store, err := catalog.OpenStore(dbPath)
	require.NoError(t, err)
	custom, err := catalog.Parse([]byte(customCatalog))
	require.NoError(t, err)
	require.NoError(t, store.Save(custom))
	require.NoError(t, store.Close())

	cfg := config.Default()
	cfg.Catalog.SQLitePath = dbPath

	cat, err := LoadCatalog(cfg, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, cat.Treatments, 1)
	assert.Equal(t, model.Metric{Name: "Blood Glucose", Unit: "mg/dL", Baseline: 150, Target: 110}, cat.Metrics["glucose"])
}

func TestLoadCatalog_FallsBackToDefault(t *testing.T) {
	cfg := config.Default()
	cfg.Catalog.SQLitePath = filepath.Join(t.TempDir(), "absent.db")

	cat, err := LoadCatalog(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, catalog.Default(), cat)

	_, statErr := os.Stat(cfg.Catalog.SQLitePath)
	assert.True(t, os.IsNotExist(statErr), "absent store is not created")
}
