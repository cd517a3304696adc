package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "flowchem.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
devices:
  - name: pump-chain
    vendor: hamilton
    syringe_volume_ml: 5
    chain_index: 0
    connection:
      serial_port: /dev/ttyUSB0
  - name: column-valve
    vendor: knauer-valve
    connection:
      host: 192.168.1.10
  - name: chiller
    vendor: huber-chiller
    connection:
      serial_port: /dev/ttyUSB1
      exchange_timeout_ms: 500
store:
  path: /var/lib/flowchem/calibration.db
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Devices, 3)

	hamilton := cfg.Devices[0]
	assert.Equal(t, VendorHamilton, hamilton.Vendor)
	assert.Equal(t, uint(9600), hamilton.Connection.BaudRate)
	assert.Equal(t, uint(8), hamilton.Connection.DataBits)
	assert.Equal(t, "none", hamilton.Connection.Parity)
	assert.Equal(t, 2*time.Second, hamilton.Connection.ExchangeTimeout())

	valve := cfg.Devices[1]
	assert.Equal(t, 10001, valve.Connection.Port, "line protocol port defaults per vendor")

	chiller := cfg.Devices[2]
	assert.Equal(t, 500*time.Millisecond, chiller.Connection.ExchangeTimeout())

	assert.Equal(t, "/var/lib/flowchem/calibration.db", cfg.Store.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format, "format keeps its default")
}

func TestLoadDefaultsWithoutDevices(t *testing.T) {
	cfg, err := Load(writeConfig(t, "devices: []\n"))
	require.NoError(t, err)

	assert.Empty(t, cfg.Devices)
	assert.Equal(t, "./data/calibration.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "devices: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "unknown vendor",
			content: `
devices:
  - name: mystery
    vendor: acme
    connection:
      serial_port: /dev/ttyUSB0
`,
			wantErr: "unknown vendor",
		},
		{
			name: "duplicate names",
			content: `
devices:
  - name: twin
    vendor: huber-chiller
    connection:
      serial_port: /dev/ttyUSB0
  - name: twin
    vendor: huber-chiller
    connection:
      serial_port: /dev/ttyUSB1
`,
			wantErr: "duplicate name",
		},
		{
			name: "missing name",
			content: `
devices:
  - vendor: huber-chiller
    connection:
      serial_port: /dev/ttyUSB0
`,
			wantErr: "name must not be empty",
		},
		{
			name: "hamilton without syringe volume",
			content: `
devices:
  - name: pump
    vendor: hamilton
    connection:
      serial_port: /dev/ttyUSB0
`,
			wantErr: "syringe_volume_ml",
		},
		{
			name: "no channel",
			content: `
devices:
  - name: pump
    vendor: knauer-pump
    connection: {}
`,
			wantErr: "serial_port or a host",
		},
		{
			name: "both channels",
			content: `
devices:
  - name: pump
    vendor: knauer-pump
    connection:
      serial_port: /dev/ttyUSB0
      host: 192.168.1.10
      port: 10001
`,
			wantErr: "both serial_port and host",
		},
		{
			name: "bad parity",
			content: `
devices:
  - name: chiller
    vendor: huber-chiller
    connection:
      serial_port: /dev/ttyUSB0
      parity: mark
`,
			wantErr: "parity",
		},
		{
			name: "bad port",
			content: `
devices:
  - name: valve
    vendor: knauer-valve
    connection:
      host: 192.168.1.10
      port: 70000
`,
			wantErr: "out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
