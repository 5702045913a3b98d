// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package interfaces

// Database types
const (
	DatabaseTypeMongoDB = "mongodb"
	DatabaseTypeMemory  = "memory"
)

// EngineConfig represents the configuration for engine creation
type EngineConfig struct {
	DatabaseType string
	DatabaseName string

	// MongoDB specific
	MongoConfig *MongoDBConfig
}

// MongoDBConfig represents MongoDB specific configuration. Timeouts are in seconds.
type MongoDBConfig struct {
	URI                    string
	Host                   string
	Port                   int
	Username               string
	Password               string
	AuthDatabase           string
	ReplicaSet             string
	SSL                    bool
	ConnectTimeout         int
	SocketTimeout          int
	MaxPoolSize            int
	MinPoolSize            int
	MaxIdleTime            int
	ServerSelectionTimeout int
}
