package reconcile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bill-advisor/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reconcile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
reconcile:
  defaults:
    template: 0.85
  electricity_share: 0.55
  fields:
    total_annual_cost_eur:
      ai: 0.95
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0.85, cfg.Defaults.Template)
	assert.Equal(t, DefaultThreshold, cfg.Defaults.AI)
	assert.Equal(t, 0.55, cfg.ElectricityShare)

	th := cfg.For(model.FieldTotalAnnualCostEUR)
	assert.Equal(t, 0.85, th.Template)
	assert.Equal(t, 0.95, th.AI)
	assert.Equal(t, cfg.Defaults, cfg.For(model.FieldSupplierName))
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "reconcile: ["))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "reconcile:\n  fields:\n    iban: {ai: 0.5}\n"))
	assert.ErrorContains(t, err, "unknown field")

	_, err = LoadConfig(writeConfig(t, "reconcile:\n  electricity_share: 1.5\n"))
	assert.ErrorContains(t, err, "electricity_share")
}

func TestDefaultConfig_Valid(t *testing.T) {
	t.Parallel()
	assert.NoError(t, DefaultConfig().Validate())
}
