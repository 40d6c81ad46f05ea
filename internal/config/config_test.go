package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadValidConfigAndResolveOutputDir(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	cfgYAML := `
appliance:
  ip: "192.168.0.176"
  identity: "171136176174"
  timeout_seconds: 5
scan:
  output_dir: "scans"
  color: "auto"
  quality: "auto"
  duplex: true
runtime:
  verbose: true
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	require.Equal(t, filepath.Join(tmp, "scans"), cfg.Scan.OutputDir)
	require.Equal(t, "192.168.0.176", cfg.Appliance.IP)
	require.NotNil(t, cfg.Scan.Duplex)
	require.True(t, *cfg.Scan.Duplex)
}

func TestLoadAbsoluteOutputDirIsNotRewritten(t *testing.T) {
	cfgPath := writeConfig(t, `
scan:
  output_dir: "/var/scans"
`)
	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, "/var/scans", cfg.Scan.OutputDir)
}

func TestLoadFailsOnInvalidApplianceIP(t *testing.T) {
	cfgPath := writeConfig(t, `
appliance:
  ip: "not-an-ip"
`)
	_, err := Load(cfgPath)
	require.ErrorContains(t, err, "not a valid IP address")
}

func TestLoadFailsOnOutOfRangeBWDensity(t *testing.T) {
	cfgPath := writeConfig(t, `
scan:
  bw_density: 11
`)
	_, err := Load(cfgPath)
	require.ErrorContains(t, err, "bw_density must be 0..10")
}

func TestLoadFailsOnUnknownField(t *testing.T) {
	cfgPath := writeConfig(t, `
appliance:
  hostname: "scanner.local"
`)
	_, err := Load(cfgPath)
	require.Error(t, err)
}

func TestLoadEmptyConfigIsValid(t *testing.T) {
	cfgPath := writeConfig(t, "")
	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Empty(t, cfg.Appliance.IP)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))
	return cfgPath
}
