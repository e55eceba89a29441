package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "INV", cfg.Invoice.NumberPrefix)
	assert.Equal(t, 30, cfg.Invoice.DefaultPaymentTermDays)
	assert.Equal(t, "03-31", cfg.Periods.CompanyYearEnd)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
invoice:
  number_prefix: ACME
  default_payment_term_days: 14
periods:
  vat_quarter_end_month: 2
`), 0644))

	t.Setenv("TIMESHEET_PAYMENT_TERM_DAYS", "45")
	t.Setenv("TIMESHEET_DB_PATH", "/tmp/billing.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ACME", cfg.Invoice.NumberPrefix)
	assert.Equal(t, 45, cfg.Invoice.DefaultPaymentTermDays)
	assert.Equal(t, "/tmp/billing.db", cfg.Database.Path)
	assert.Equal(t, 2, cfg.Periods.VATQuarterEndMonth)
	// untouched sections keep defaults
	assert.Equal(t, "03-31", cfg.Periods.CompanyYearEnd)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Business.Name = "Jane Contractor Ltd"

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Jane Contractor Ltd", loaded.Business.Name)
}
