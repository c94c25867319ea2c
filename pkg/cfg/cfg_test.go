package cfg

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Server struct {
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

type Data struct {
	Verbose bool   `yaml:"verbose"`
	Server  Server `yaml:"server"`
	Name    string `yaml:"name"`
}

func (d *Data) RegisterFlags(f *flag.FlagSet) {
	f.BoolVar(&d.Verbose, "verbose", false, "")
	f.IntVar(&d.Server.Port, "server.port", 80, "")
	f.DurationVar(&d.Server.Timeout, "server.timeout", 60*time.Second, "")
	f.StringVar(&d.Name, "name", "cqlflow", "")
}

func (d *Data) Validate() error {
	if d.Server.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func TestDefaults(t *testing.T) {
	var d Data
	require.NoError(t, Unmarshal(&d, Defaults()))
	assert.Equal(t, Data{
		Server: Server{Port: 80, Timeout: 60 * time.Second},
		Name:   "cqlflow",
	}, d)
}

func TestParse(t *testing.T) {
	var d Data
	err := Unmarshal(&d, Defaults(), YAMLBytes([]byte(`
server:
  port: 2000
verbose: true
`), false))
	require.NoError(t, err)
	assert.Equal(t, Data{
		Verbose: true,
		Server:  Server{Port: 2000, Timeout: 60 * time.Second},
		Name:    "cqlflow",
	}, d)
}

func TestParse_ExpandEnv(t *testing.T) {
	t.Setenv("CQLFLOW_PORT", "9000")
	yaml := []byte(`
server:
  port: ${CQLFLOW_PORT}
name: ${CQLFLOW_NAME:-fallback}
`)

	var d Data
	require.NoError(t, Unmarshal(&d, Defaults(), YAMLBytes(yaml, true)))
	assert.Equal(t, 9000, d.Server.Port)
	assert.Equal(t, "fallback", d.Name)

	// Without expansion the reference is not a valid port.
	var raw Data
	assert.Error(t, Unmarshal(&raw, Defaults(), YAMLBytes(yaml, false)))
}

func TestParse_Strict(t *testing.T) {
	var d Data
	err := Unmarshal(&d, Defaults(), YAMLBytes([]byte("unknown: 1\n"), false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field unknown not found")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 0\n"), 0o600))

	var d Data
	err := Load(&d, path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port must be positive")

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o600))
	d = Data{}
	require.NoError(t, Load(&d, path, false))
	assert.Equal(t, 8080, d.Server.Port)

	d = Data{}
	require.NoError(t, Load(&d, "", false))
	assert.Equal(t, 80, d.Server.Port)

	assert.Error(t, Load(&Data{}, filepath.Join(t.TempDir(), "missing.yaml"), false))
}
