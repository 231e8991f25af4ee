package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mockgen "usage-projection/cmd/mockgen/engine"
	"usage-projection/internal/calibration"
	"usage-projection/internal/config"
	"usage-projection/internal/engine"
)

func setupDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	rows := mockgen.Generate(mockgen.GeneratorConfig{Scenario: "mild", Players: 80, Seasons: 2, Seed: 5})
	require.NoError(t, mockgen.Save(dir, rows, mockgen.DemoModel()))

	t.Setenv("DATA_PATH", dir)
	t.Setenv("LOGS_FOLDER", filepath.Join(dir, "logs"))
	t.Setenv("POLICY_PATH", filepath.Join(dir, mockgen.PolicyFile))
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	predictEntity, predictSeason, predictFeatures = "", "", ""
	predictUsage, predictSweep = 0.25, nil
	calibrateOut, importDB = "", ""

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestCalibrateCommand(t *testing.T) {
	dir := setupDataDir(t)

	out, err := run(t, "calibrate")
	require.NoError(t, err)
	assert.Contains(t, out, calibration.InefficiencyFloor)
	assert.Contains(t, out, "population")

	tbl, err := calibration.Load(filepath.Join(dir, "cache", "thresholds.json"))
	require.NoError(t, err)
	assert.Equal(t, 160, tbl.PopulationSize())
	assert.False(t, tbl.Degraded())
}

func TestPredictCommand(t *testing.T) {
	setupDataDir(t)

	out, err := run(t, "predict", "--entity", "MOCK-0001", "--season", "2019-20", "--usage", "0.3")
	require.NoError(t, err)

	var res struct {
		TargetUsage  float64            `json:"target_usage"`
		ModelVersion  string             `json:"model_version"`
		MissingPolicy string             `json:"missing_policy"`
		Features      map[string]float64 `json:"features"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.InDelta(t, 0.3, res.TargetUsage, 1e-12)
	assert.Equal(t, "demo-1", res.ModelVersion)
	assert.Equal(t, "median_imputation", res.MissingPolicy)
	// The 2018-19 row was picked up as the prior season.
	assert.Contains(t, res.Features, "ts_yoy_delta")
}

func TestPredictCommand_Sweep(t *testing.T) {
	setupDataDir(t)

	out, err := run(t, "predict", "--entity", "MOCK-0002", "--season", "2018-19", "--sweep", "0.15,0.25,0.35")
	require.NoError(t, err)

	var points []engine.SweepPoint
	require.NoError(t, json.Unmarshal([]byte(out), &points))
	require.Len(t, points, 3)
	assert.InDelta(t, 0.35, points[2].Usage, 1e-12)
}

func TestPredictCommand_RequiresSubject(t *testing.T) {
	setupDataDir(t)
	_, err := run(t, "predict")
	assert.Error(t, err)
}

func TestImportCommand(t *testing.T) {
	dir := setupDataDir(t)
	db := filepath.Join(dir, "features.db")

	out, err := run(t, "import", "--db", db, filepath.Join(dir, mockgen.PopulationFile))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "imported 160 rows"), out)

	_, err = os.Stat(db)
	require.NoError(t, err)

	_, err = run(t, "import", "--db", db, filepath.Join(dir, "missing.jsonl"))
	assert.Error(t, err)
}

func TestInstallThresholds_DegradedOnlyWhenAllowed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, mockgen.Save(dir, nil, mockgen.DemoModel()))

	c := &config.AppConfig{
		ModelPath:      filepath.Join(dir, mockgen.ModelFile),
		PopulationPath: filepath.Join(dir, mockgen.PopulationFile),
		ThresholdsPath: filepath.Join(dir, "thresholds.json"),
		Workers:        2,
	}
	ctx := context.Background()

	a, err := bootstrap(ctx, c)
	require.NoError(t, err)
	defer a.Close()
	assert.Error(t, a.installThresholds(ctx))
	assert.Nil(t, a.engine.Thresholds())

	c.AllowDegradedThresholds = true
	require.NoError(t, a.installThresholds(ctx))
	require.NotNil(t, a.engine.Thresholds())
	assert.True(t, a.engine.Thresholds().Degraded())
}

func TestInstallThresholds_RecalibratesRejectedCache(t *testing.T) {
	dir := setupDataDir(t)
	c := &config.AppConfig{
		ModelPath:      filepath.Join(dir, mockgen.ModelFile),
		PopulationPath: filepath.Join(dir, mockgen.PopulationFile),
		PolicyPath:     filepath.Join(dir, mockgen.PolicyFile),
		ThresholdsPath: filepath.Join(dir, "thresholds.json"),
		Workers:        2,
	}
	ctx := context.Background()

	complete := calibration.FallbackTable()
	values := map[string]float64{}
	for _, name := range complete.Names() {
		if name == calibration.ClutchCollapse {
			continue
		}
		v, _ := complete.Get(name)
		values[name] = v
	}
	incomplete, err := calibration.NewTable(values)
	require.NoError(t, err)

	tests := []struct {
		name   string
		cached *calibration.Table
	}{
		{"Incomplete", incomplete},
		{"OtherModel", complete.ForModel("demo-0")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, calibration.Save(c.ThresholdsPath, tt.cached))

			a, err := bootstrap(ctx, c)
			require.NoError(t, err)
			defer a.Close()
			require.NoError(t, a.installThresholds(ctx))

			installed := a.engine.Thresholds()
			require.NotNil(t, installed)
			assert.False(t, installed.Degraded())
			assert.Equal(t, "demo-1", installed.ModelVersion())
			_, ok := installed.Get(calibration.ClutchCollapse)
			assert.True(t, ok)

			// The recalibrated table replaced the rejected cache on disk.
			cached, err := calibration.Load(c.ThresholdsPath)
			require.NoError(t, err)
			assert.Equal(t, installed.Version(), cached.Version())
			assert.Equal(t, "demo-1", cached.ModelVersion())
		})
	}
}
