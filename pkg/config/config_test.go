package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(env map[string]string) *Config {
	c := New()
	c.lookupEnv = func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
	return c
}

func TestLookupPrefersExplicitValues(t *testing.T) {
	c := newTestConfig(map[string]string{"Parameters__pw": "from-env"})
	c.Set(ParameterKey("pw"), "explicit")

	v, ok := c.Lookup("Parameters:pw")
	assert.True(t, ok)
	assert.Equal(t, "explicit", v)
}

func TestLookupEnvironmentForms(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		key  string
		want string
		ok   bool
	}{
		{"verbatim", map[string]string{"Parameters__gauss-password": "a"}, "Parameters:gauss-password", "a", true},
		{"upper snake", map[string]string{"PARAMETERS__GAUSS_PASSWORD": "b"}, "Parameters:gauss-password", "b", true},
		{"verbatim wins", map[string]string{"Parameters__x": "c", "PARAMETERS__X": "d"}, "Parameters:x", "c", true},
		{"missing", map[string]string{}, "Parameters:nope", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestConfig(tt.env)
			v, ok := c.Lookup(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestGetAllReturnsCopy(t *testing.T) {
	c := newTestConfig(nil)
	c.Update(map[string]string{"a": "1"})

	all := c.GetAll()
	all["a"] = "changed"
	assert.Equal(t, "1", c.Get("a"))
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("Parameters__mongo-password=s3cret\nLOG_LEVEL=debug\n"), 0o600))

	c := newTestConfig(nil)
	require.NoError(t, c.LoadEnvFile(path))

	assert.Equal(t, "s3cret", c.Get(ParameterKey("mongo-password")))
	assert.Equal(t, "debug", c.Get("LOG_LEVEL"))
}

func TestLoadEnvFileMissingIsIgnored(t *testing.T) {
	c := newTestConfig(nil)
	assert.NoError(t, c.LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")))
}
