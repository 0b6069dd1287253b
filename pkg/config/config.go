package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// ParametersSection is the key prefix under which parameter values are looked up.
const ParametersSection = "Parameters"

// Config manages application configuration. Explicit values win over the
// process environment.
type Config struct {
	mu     sync.RWMutex
	values map[string]string

	// lookupEnv is replaceable in tests
	lookupEnv func(string) (string, bool)
}

// New creates a new configuration manager
func New() *Config {
	return &Config{
		values:    make(map[string]string),
		lookupEnv: os.LookupEnv,
	}
}

// ParameterKey returns the configuration key holding the value of a parameter.
func ParameterKey(name string) string {
	return ParametersSection + ":" + name
}

// Get retrieves a configuration value, or "" when unset
func (c *Config) Get(key string) string {
	v, _ := c.Lookup(key)
	return v
}

// Lookup retrieves a configuration value and reports whether it was set.
// Keys use ':' as a section separator. The environment is consulted with ':'
// replaced by "__", first verbatim and then in upper snake case.
func (c *Config) Lookup(key string) (string, bool) {
	c.mu.RLock()
	v, ok := c.values[key]
	lookupEnv := c.lookupEnv
	c.mu.RUnlock()
	if ok {
		return v, true
	}

	for _, name := range envNames(key) {
		if v, ok := lookupEnv(name); ok {
			return v, true
		}
	}
	return "", false
}

func envNames(key string) []string {
	exact := strings.ReplaceAll(key, ":", "__")
	upper := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(exact))
	if upper == exact {
		return []string{exact}
	}
	return []string{exact, upper}
}

// GetAll returns a copy of all explicitly set configuration values
func (c *Config) GetAll() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Update updates configuration values
func (c *Config) Update(values map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range values {
		c.values[k] = v
	}
}

// Set stores a single value
func (c *Config) Set(key, value string) {
	c.Update(map[string]string{key: value})
}

// LoadEnvFile merges a dotenv file into the configuration. Variable names
// are mapped back to keys ("Parameters__db-password" -> "Parameters:db-password").
// A missing file is not an error.
func (c *Config) LoadEnvFile(path string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read env file %s: %w", path, err)
	}

	mapped := make(map[string]string, len(values))
	for k, v := range values {
		mapped[strings.ReplaceAll(k, "__", ":")] = v
	}
	c.Update(mapped)
	return nil
}
