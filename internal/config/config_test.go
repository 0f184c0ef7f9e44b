package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Backend)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, "SELECT @@IDENTITY", cfg.Legacy.IdentityQuery)
	assert.Equal(t, 2, cfg.Store.AllocationType)
	assert.Equal(t, 1, cfg.Store.DeallocationType)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoadLegacy(t *testing.T) {
	t.Setenv("STORE_BACKEND", BackendLegacy)
	t.Setenv("LEGACY_DRIVER", "odbc")
	t.Setenv("LEGACY_DSN", `Driver={Microsoft Access Driver (*.mdb, *.accdb)};Dbq=C:\data\northwind.accdb`)
	t.Setenv("LEGACY_MAX_OPEN_CONNS", "1")
	t.Setenv("DEALLOCATION_TYPE", "4")
	t.Setenv("SERVER_READ_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendLegacy, cfg.Backend)
	assert.Equal(t, 1, cfg.Legacy.MaxOpenConns)
	assert.Equal(t, 4, cfg.Store.DeallocationType)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("STORE_BACKEND", BackendMongo)
	t.Setenv("MONGO_CONNECT_TIMEOUT", "soon")
	t.Setenv("ALLOCATION_TYPE", "two")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Mongo.ConnectTimeout)
	assert.Equal(t, 2, cfg.Store.AllocationType)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Backend:  BackendPostgres,
			Database: DatabaseConfig{URL: "postgres://localhost/northwind"},
			Mongo:    MongoConfig{URI: "mongodb://localhost", Database: "northwind"},
			Legacy:   LegacyConfig{Driver: "odbc", DSN: "DSN=northwind", IdentityQuery: "SELECT @@IDENTITY"},
			Store:    StoreConfig{AllocationType: 2, DeallocationType: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"postgres", func(c *Config) {}, ""},
		{"mongo", func(c *Config) { c.Backend = BackendMongo }, ""},
		{"legacy", func(c *Config) { c.Backend = BackendLegacy }, ""},
		{"unknown backend", func(c *Config) { c.Backend = "oracle" }, "unknown STORE_BACKEND"},
		{"missing database url", func(c *Config) { c.Database.URL = "" }, "DATABASE_URL"},
		{"missing mongo db", func(c *Config) { c.Backend = BackendMongo; c.Mongo.Database = "" }, "MONGO_DB"},
		{"missing legacy dsn", func(c *Config) { c.Backend = BackendLegacy; c.Legacy.DSN = "" }, "LEGACY_DSN"},
		{"missing identity query", func(c *Config) { c.Backend = BackendLegacy; c.Legacy.IdentityQuery = "" }, "LEGACY_IDENTITY_QUERY"},
		{"same ledger types", func(c *Config) { c.Store.DeallocationType = 2 }, "must differ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
