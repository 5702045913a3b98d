// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package interfaces

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Engine is the document storage engine behind a store. Every call returns a
// channel that yields exactly one result and is then closed.
type Engine interface {
	InsertOne(ctx context.Context, collectionName string, document interface{}) <-chan RepositoryResult
	ReplaceOne(ctx context.Context, collectionName string, filter bson.D, document interface{}, upsert bool) <-chan RepositoryResult
	Find(ctx context.Context, collectionName string, filter bson.D, opts *FindOptions) <-chan QueryResult
	Count(ctx context.Context, collectionName string, filter bson.D) <-chan CountResult
	Distinct(ctx context.Context, collectionName string, field string, filter bson.D) <-chan DistinctResult
	UpdateMany(ctx context.Context, collectionName string, filter bson.D, update bson.D) <-chan RepositoryResult
	DeleteMany(ctx context.Context, collectionName string, filter bson.D) <-chan RepositoryResult

	// Index and collection management
	CreateIndex(ctx context.Context, collectionName string, keys []string, unique bool) <-chan error
	Drop(ctx context.Context, collectionName string) <-chan error
	ListCollections(ctx context.Context) <-chan ListResult

	// Connection management
	Ping(ctx context.Context) <-chan error
	Close() error
}

// FindOptions represents options for find operations
type FindOptions struct {
	Limit      *int64
	Skip       *int64
	Sort       bson.D
	Projection bson.D
}

// RepositoryResult represents the result of a write operation. For updates and
// deletes Result holds the affected count as int64.
type RepositoryResult struct {
	Result interface{}
	Error  error
}

// QueryResult represents a query result cursor
type QueryResult interface {
	Next() bool
	Decode(v interface{}) error
	Close()
	Error() error
}

// CountResult represents the result of a count operation
type CountResult struct {
	Count int64
	Error error
}

// DistinctResult represents the result of a distinct operation
type DistinctResult struct {
	Values []interface{}
	Error  error
}

// ListResult represents the collection names of a database
type ListResult struct {
	Names []string
	Error error
}

// Affected extracts the affected document count from a write result.
func (r RepositoryResult) Affected() int64 {
	switch n := r.Result.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	}
	return 0
}

// Error definitions
var (
	ErrNoDocuments          = NewRepositoryError("no documents found", "NOT_FOUND")
	ErrDuplicateKey         = NewRepositoryError("duplicate key error", "DUPLICATE_KEY")
	ErrWriteConflict        = NewRepositoryError("write conflict", "WRITE_CONFLICT")
	ErrInvalidFilter        = NewRepositoryError("invalid filter", "INVALID_FILTER")
	ErrConnectionFailed     = NewRepositoryError("database connection failed", "CONNECTION_FAILED")
	ErrUnsupportedOperation = NewRepositoryError("unsupported operation", "UNSUPPORTED_OPERATION")
)

// RepositoryError represents a repository specific error
type RepositoryError struct {
	Message string
	Code    string
	Time    time.Time
}

func (e *RepositoryError) Error() string {
	return e.Message
}

// NewRepositoryError creates a new repository error
func NewRepositoryError(message, code string) *RepositoryError {
	return &RepositoryError{
		Message: message,
		Code:    code,
		Time:    time.Now(),
	}
}
