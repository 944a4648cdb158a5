package database

import (
	"context"
	"testing"

	"github.com/permgate/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialector(t *testing.T) {
	for _, driver := range []string{"mysql", "postgres", "sqlite"} {
		d, err := Dialector(&config.DatabaseConfig{Driver: driver})
		require.NoError(t, err, driver)
		assert.Equal(t, driver, d.Name())
	}

	_, err := Dialector(&config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestOpen_SQLite(t *testing.T) {
	db, err := Open(&config.DatabaseConfig{Driver: "sqlite", LogLevel: "silent", MaxOpenConns: 1})
	require.NoError(t, err)

	type probe struct {
		ID   int64
		Name string
	}
	require.NoError(t, db.AutoMigrate(&probe{}))
	// 单数表名
	assert.True(t, db.Migrator().HasTable("probe"))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func TestOpenRedis_Memory(t *testing.T) {
	client, mr, err := OpenRedis(&config.RedisConfig{Mode: "memory"})
	require.NoError(t, err)
	require.NotNil(t, mr)
	defer mr.Close()
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "k", "v", 0).Err())
	got, err := client.Get(ctx, "k").Result()
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestOpenRedis_Unreachable(t *testing.T) {
	_, _, err := OpenRedis(&config.RedisConfig{Mode: "standalone", Host: "127.0.0.1", Port: 1})
	assert.Error(t, err)
}
