// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package factory

import (
	"context"
	"fmt"

	"github.com/qolzam/docstore/internal/database/interfaces"
	"github.com/qolzam/docstore/internal/database/memory"
	"github.com/qolzam/docstore/internal/database/mongodb"
	platformconfig "github.com/qolzam/docstore/internal/platform/config"
)

// EngineFactory creates storage engines based on configuration
type EngineFactory struct {
	config *interfaces.EngineConfig
}

// NewEngineFactory creates a new engine factory
func NewEngineFactory(config *interfaces.EngineConfig) *EngineFactory {
	return &EngineFactory{
		config: config,
	}
}

// NewEngineFactoryFromPlatformConfig creates a new engine factory from platform config
func NewEngineFactoryFromPlatformConfig(dbConfig platformconfig.DatabaseConfig) *EngineFactory {
	config := &interfaces.EngineConfig{
		DatabaseType: dbConfig.Type,
		DatabaseName: dbConfig.Name,
	}

	if dbConfig.Type == interfaces.DatabaseTypeMongoDB {
		mongo := dbConfig.MongoDB
		config.MongoConfig = &interfaces.MongoDBConfig{
			URI:                    mongo.URI,
			Host:                   mongo.Host,
			Port:                   mongo.Port,
			Username:               mongo.Username,
			Password:               mongo.Password,
			AuthDatabase:           mongo.AuthDatabase,
			ReplicaSet:             mongo.ReplicaSet,
			SSL:                    mongo.SSL,
			MaxPoolSize:            mongo.MaxPoolSize,
			MinPoolSize:            mongo.MinPoolSize,
			ConnectTimeout:         int(mongo.ConnectTimeout.Seconds()),
			SocketTimeout:          int(mongo.SocketTimeout.Seconds()),
			ServerSelectionTimeout: int(mongo.ServerSelectionTimeout.Seconds()),
			MaxIdleTime:            300, // Default 5 minutes
		}
	}

	return &EngineFactory{
		config: config,
	}
}

// CreateEngine creates an engine instance based on the configured database type
func (f *EngineFactory) CreateEngine(ctx context.Context) (interfaces.Engine, error) {
	if err := f.ValidateConfig(); err != nil {
		return nil, err
	}

	switch f.config.DatabaseType {
	case interfaces.DatabaseTypeMongoDB:
		engine, err := mongodb.NewMongoEngine(ctx, f.config.MongoConfig, f.config.DatabaseName)
		if err != nil {
			return nil, fmt.Errorf("failed to create MongoDB engine: %w", err)
		}
		return engine, nil
	case interfaces.DatabaseTypeMemory:
		return memory.NewEngine(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", f.config.DatabaseType)
	}
}

// DatabaseName returns the configured database name
func (f *EngineFactory) DatabaseName() string {
	return f.config.DatabaseName
}

// ValidateConfig validates the engine configuration
func (f *EngineFactory) ValidateConfig() error {
	if f.config == nil {
		return fmt.Errorf("engine configuration is nil")
	}

	if f.config.DatabaseType == "" {
		return fmt.Errorf("database type is required")
	}

	if f.config.DatabaseName == "" {
		return fmt.Errorf("database name is required")
	}

	switch f.config.DatabaseType {
	case interfaces.DatabaseTypeMongoDB:
		if f.config.MongoConfig == nil {
			return fmt.Errorf("MongoDB configuration is missing")
		}
		if f.config.MongoConfig.URI == "" && f.config.MongoConfig.Host == "" {
			return fmt.Errorf("MongoDB host or URI is required")
		}
	case interfaces.DatabaseTypeMemory:
	default:
		return fmt.Errorf("unsupported database type: %s", f.config.DatabaseType)
	}

	return nil
}
