package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
app:
  name: deskgo-test
  env: production
database:
  driver: sqlite
  path: /tmp/test.db
poller:
  interval: 30s
classifier:
  api_key: test-key
  model: gpt-4o
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "deskgo-test", cfg.App.Name)
	assert.True(t, cfg.App.IsProduction())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, 30*time.Second, cfg.Poller.Interval)
	assert.Equal(t, "test-key", cfg.Classifier.APIKey)
	assert.Equal(t, "gpt-4o", cfg.Classifier.Model)

	// Untouched keys keep their defaults.
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 30*time.Second, cfg.Classifier.Timeout)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{
		Host: "db.example", Port: 5432, User: "svc", Password: "pw",
		Name: "deskgo", SSLMode: "require",
	}
	assert.Equal(t, "host=db.example port=5432 user=svc password=pw dbname=deskgo sslmode=require", c.DSN())
}
