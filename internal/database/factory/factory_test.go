package factory

import (
	"context"
	"testing"
	"time"

	"github.com/qolzam/docstore/internal/database/interfaces"
	"github.com/qolzam/docstore/internal/database/memory"
	platformconfig "github.com/qolzam/docstore/internal/platform/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineFactory_ValidateConfigErrors(t *testing.T) {
	f := NewEngineFactory(nil)
	assert.Error(t, f.ValidateConfig())

	f = NewEngineFactory(&interfaces.EngineConfig{})
	assert.Error(t, f.ValidateConfig(), "expected error for empty config")

	f = NewEngineFactory(&interfaces.EngineConfig{DatabaseType: interfaces.DatabaseTypeMongoDB, DatabaseName: "db"})
	assert.Error(t, f.ValidateConfig(), "expected error for missing mongo config")

	f = NewEngineFactory(&interfaces.EngineConfig{
		DatabaseType: interfaces.DatabaseTypeMongoDB,
		DatabaseName: "db",
		MongoConfig:  &interfaces.MongoDBConfig{},
	})
	assert.Error(t, f.ValidateConfig(), "expected error for missing host")

	f = NewEngineFactory(&interfaces.EngineConfig{DatabaseType: interfaces.DatabaseTypeMemory})
	assert.Error(t, f.ValidateConfig(), "expected error for missing name")
}

func TestEngineFactory_CreateUnsupported(t *testing.T) {
	f := NewEngineFactory(&interfaces.EngineConfig{DatabaseType: "oracle", DatabaseName: "db"})
	_, err := f.CreateEngine(context.Background())
	assert.Error(t, err)
}

func TestEngineFactory_CreateMemory(t *testing.T) {
	f := NewEngineFactory(&interfaces.EngineConfig{DatabaseType: interfaces.DatabaseTypeMemory, DatabaseName: "test-x"})
	engine, err := f.CreateEngine(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &memory.Engine{}, engine)
	assert.Equal(t, "test-x", f.DatabaseName())
}

func TestEngineFactory_FromPlatformConfig(t *testing.T) {
	f := NewEngineFactoryFromPlatformConfig(platformconfig.DatabaseConfig{
		Type: interfaces.DatabaseTypeMongoDB,
		Name: "docs",
		MongoDB: platformconfig.MongoDBConfig{
			Host:           "db",
			Port:           27017,
			ConnectTimeout: 10 * time.Second,
			SocketTimeout:  30 * time.Second,
		},
	})

	require.NoError(t, f.ValidateConfig())
	assert.Equal(t, "docs", f.config.DatabaseName)
	assert.Equal(t, "db", f.config.MongoConfig.Host)
	assert.Equal(t, 10, f.config.MongoConfig.ConnectTimeout)
	assert.Equal(t, 30, f.config.MongoConfig.SocketTimeout)

	f = NewEngineFactoryFromPlatformConfig(platformconfig.DatabaseConfig{Type: interfaces.DatabaseTypeMemory, Name: "docs"})
	assert.Nil(t, f.config.MongoConfig)
}
