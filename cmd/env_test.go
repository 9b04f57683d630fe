package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealscanner/deals-cli/internal/config"
)

func TestInitEnv_SQLite(t *testing.T) {
	cfg = &config.Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = filepath.Join(t.TempDir(), "test.db")
	cfg.Ingest.PublishThreshold = 0.9
	cfg.Ingest.ValidityDays = 7
	cfg.Categories.CacheTTLMinutes = 5

	e, err := initEnv(context.Background())
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Store.Migrate(context.Background()))
	assert.NotNil(t, e.Service)
	assert.NotNil(t, e.Classifier)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	cfg = &config.Config{}
	cfg.Store.Driver = "oracle"

	_, err := openStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")
}
