package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/streampulse/internal/config"
	"github.com/jmylchreest/streampulse/internal/models"
)

func testDatabaseConfig(t *testing.T) config.DatabaseConfig {
	t.Helper()
	return config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "test.db"),
		LogLevel: "silent",
	}
}

func TestNew_SQLite(t *testing.T) {
	db, err := New(testDatabaseConfig(t), nil)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "sqlite", db.Driver())
	assert.NoError(t, db.Ping(context.Background()))
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New(config.DatabaseConfig{Driver: "oracle", DSN: "x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestMigrate(t *testing.T) {
	db, err := New(testDatabaseConfig(t), nil)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate())

	assert.True(t, db.Migrator().HasTable(&models.Stream{}))
	assert.True(t, db.Migrator().HasTable(&models.Metric{}))

	// Migrations are idempotent.
	require.NoError(t, db.Migrate())
}

func TestMigrate_RoundTrip(t *testing.T) {
	db, err := New(testDatabaseConfig(t), nil)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	s := models.Stream{Name: "Test", URL: "http://example.com/index.m3u8"}
	require.NoError(t, db.Create(&s).Error)

	var loaded models.Stream
	require.NoError(t, db.First(&loaded, "id = ?", s.ID).Error)
	assert.Equal(t, "Test", loaded.Name)
}
