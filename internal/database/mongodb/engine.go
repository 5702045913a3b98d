// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package mongodb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/qolzam/docstore/internal/database/interfaces"
	"github.com/qolzam/docstore/internal/pkg/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// writeConflictCode is the server error code for WriteConflict
const writeConflictCode = 112

// MongoEngine implements the Engine interface for MongoDB
type MongoEngine struct {
	client   *mongo.Client
	database *mongo.Database
	dbName   string
}

// MongoQueryResult implements QueryResult for MongoDB
type MongoQueryResult struct {
	cursor *mongo.Cursor
	ctx    context.Context
	err    error
}

var _ interfaces.Engine = (*MongoEngine)(nil)

// NewMongoEngine connects to MongoDB and verifies the connection
func NewMongoEngine(ctx context.Context, config *interfaces.MongoDBConfig, databaseName string) (*MongoEngine, error) {
	// Build connection URI
	uri := buildConnectionURI(config)

	// Set client options
	clientOptions := options.Client().ApplyURI(uri)

	if config.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(uint64(config.MaxPoolSize))
	}

	if config.MinPoolSize > 0 {
		clientOptions.SetMinPoolSize(uint64(config.MinPoolSize))
	}

	if config.ConnectTimeout > 0 {
		clientOptions.SetConnectTimeout(time.Duration(config.ConnectTimeout) * time.Second)
	}

	if config.SocketTimeout > 0 {
		clientOptions.SetSocketTimeout(time.Duration(config.SocketTimeout) * time.Second)
	}

	if config.MaxIdleTime > 0 {
		clientOptions.SetMaxConnIdleTime(time.Duration(config.MaxIdleTime) * time.Second)
	}

	if config.ServerSelectionTimeout > 0 {
		clientOptions.SetServerSelectionTimeout(time.Duration(config.ServerSelectionTimeout) * time.Second)
	}

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to MongoDB: %v", interfaces.ErrConnectionFailed, err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: ping MongoDB: %v", interfaces.ErrConnectionFailed, err)
	}

	return &MongoEngine{
		client:   client,
		database: client.Database(databaseName),
		dbName:   databaseName,
	}, nil
}

// buildConnectionURI builds MongoDB connection URI from config. An explicit
// URI wins over the individual fields.
func buildConnectionURI(config *interfaces.MongoDBConfig) string {
	if config.URI != "" {
		return config.URI
	}

	uri := "mongodb://"

	if config.Username != "" && config.Password != "" {
		uri += url.UserPassword(config.Username, config.Password).String() + "@"
	}

	host := config.Host
	if host == "" {
		host = "localhost"
	}
	port := config.Port
	if port == 0 {
		port = 27017
	}
	uri += fmt.Sprintf("%s:%d", host, port)

	var params []string
	if config.AuthDatabase != "" {
		params = append(params, "authSource="+url.QueryEscape(config.AuthDatabase))
	}
	if config.ReplicaSet != "" {
		params = append(params, "replicaSet="+url.QueryEscape(config.ReplicaSet))
	}
	if config.SSL {
		params = append(params, "ssl=true")
	}
	if len(params) > 0 {
		uri += "/?" + strings.Join(params, "&")
	}

	return uri
}

// translateError maps driver errors onto the repository sentinels
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %v", interfaces.ErrNoDocuments, err)
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", interfaces.ErrDuplicateKey, err)
	}
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) && serverErr.HasErrorCode(writeConflictCode) {
		return fmt.Errorf("%w: %v", interfaces.ErrWriteConflict, err)
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return fmt.Errorf("%w: %v", interfaces.ErrConnectionFailed, err)
	}
	return err
}

func orEmpty(filter bson.D) bson.D {
	if filter == nil {
		return bson.D{}
	}
	return filter
}

// InsertOne stores a single document
func (r *MongoEngine) InsertOne(ctx context.Context, collectionName string, document interface{}) <-chan interfaces.RepositoryResult {
	result := make(chan interfaces.RepositoryResult)

	go func() {
		defer close(result)

		collection := r.database.Collection(collectionName)

		insertResult, err := collection.InsertOne(ctx, document)
		if err != nil {
			log.Error("MongoDB InsertOne error: %s", err.Error())
			result <- interfaces.RepositoryResult{Error: translateError(err)}
			return
		}

		result <- interfaces.RepositoryResult{Result: insertResult.InsertedID}
	}()

	return result
}

// ReplaceOne replaces the first matching document
func (r *MongoEngine) ReplaceOne(ctx context.Context, collectionName string, filter bson.D, document interface{}, upsert bool) <-chan interfaces.RepositoryResult {
	result := make(chan interfaces.RepositoryResult)

	go func() {
		defer close(result)

		collection := r.database.Collection(collectionName)

		replaceResult, err := collection.ReplaceOne(ctx, orEmpty(filter), document, options.Replace().SetUpsert(upsert))
		if err != nil {
			log.Error("MongoDB ReplaceOne error: %s", err.Error())
			result <- interfaces.RepositoryResult{Error: translateError(err)}
			return
		}

		result <- interfaces.RepositoryResult{Result: replaceResult.ModifiedCount + replaceResult.UpsertedCount}
	}()

	return result
}

// Find retrieves multiple documents
func (r *MongoEngine) Find(ctx context.Context, collectionName string, filter bson.D, opts *interfaces.FindOptions) <-chan interfaces.QueryResult {
	result := make(chan interfaces.QueryResult)

	go func() {
		defer close(result)

		collection := r.database.Collection(collectionName)

		findOptions := options.Find()

		if opts != nil {
			if opts.Limit != nil {
				findOptions.SetLimit(*opts.Limit)
			}
			if opts.Skip != nil {
				findOptions.SetSkip(*opts.Skip)
			}
			if len(opts.Sort) > 0 {
				findOptions.SetSort(opts.Sort)
			}
			if len(opts.Projection) > 0 {
				findOptions.SetProjection(opts.Projection)
			}
		}

		cursor, err := collection.Find(ctx, orEmpty(filter), findOptions)
		if err != nil {
			log.Error("MongoDB Find error: %s", err.Error())
			result <- &MongoQueryResult{err: translateError(err)}
			return
		}

		result <- &MongoQueryResult{cursor: cursor, ctx: ctx}
	}()

	return result
}

// Count counts documents matching filter
func (r *MongoEngine) Count(ctx context.Context, collectionName string, filter bson.D) <-chan interfaces.CountResult {
	result := make(chan interfaces.CountResult)

	go func() {
		defer close(result)

		collection := r.database.Collection(collectionName)

		count, err := collection.CountDocuments(ctx, orEmpty(filter))
		if err != nil {
			log.Error("MongoDB Count error: %s", err.Error())
			result <- interfaces.CountResult{Error: translateError(err)}
			return
		}

		result <- interfaces.CountResult{Count: count}
	}()

	return result
}

// Distinct gets distinct values for a field
func (r *MongoEngine) Distinct(ctx context.Context, collectionName string, field string, filter bson.D) <-chan interfaces.DistinctResult {
	result := make(chan interfaces.DistinctResult)

	go func() {
		defer close(result)

		collection := r.database.Collection(collectionName)

		values, err := collection.Distinct(ctx, field, orEmpty(filter))
		if err != nil {
			log.Error("MongoDB Distinct error: %s", err.Error())
			result <- interfaces.DistinctResult{Error: translateError(err)}
			return
		}

		result <- interfaces.DistinctResult{Values: values}
	}()

	return result
}

// UpdateMany updates multiple documents matching the filter
func (r *MongoEngine) UpdateMany(ctx context.Context, collectionName string, filter bson.D, update bson.D) <-chan interfaces.RepositoryResult {
	result := make(chan interfaces.RepositoryResult)

	go func() {
		defer close(result)

		collection := r.database.Collection(collectionName)

		updateResult, err := collection.UpdateMany(ctx, orEmpty(filter), update)
		if err != nil {
			log.Error("MongoDB UpdateMany error: %s", err.Error())
			result <- interfaces.RepositoryResult{Error: translateError(err)}
			return
		}

		result <- interfaces.RepositoryResult{Result: updateResult.ModifiedCount}
	}()

	return result
}

// DeleteMany deletes multiple documents matching the filter
func (r *MongoEngine) DeleteMany(ctx context.Context, collectionName string, filter bson.D) <-chan interfaces.RepositoryResult {
	result := make(chan interfaces.RepositoryResult)

	go func() {
		defer close(result)

		collection := r.database.Collection(collectionName)

		deleteResult, err := collection.DeleteMany(ctx, orEmpty(filter))
		if err != nil {
			log.Error("MongoDB DeleteMany error: %s", err.Error())
			result <- interfaces.RepositoryResult{Error: translateError(err)}
			return
		}

		result <- interfaces.RepositoryResult{Result: deleteResult.DeletedCount}
	}()

	return result
}

// CreateIndex creates an ascending index over keys
func (r *MongoEngine) CreateIndex(ctx context.Context, collectionName string, keys []string, unique bool) <-chan error {
	result := make(chan error)

	go func() {
		defer close(result)

		collection := r.database.Collection(collectionName)

		model := mongo.IndexModel{
			Keys:    indexKeys(keys),
			Options: options.Index().SetUnique(unique),
		}
		if _, err := collection.Indexes().CreateOne(ctx, model); err != nil {
			log.Error("MongoDB CreateIndex error: %s", err.Error())
			result <- translateError(err)
			return
		}
		result <- nil
	}()

	return result
}

func indexKeys(keys []string) bson.D {
	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		doc = append(doc, bson.E{Key: k, Value: 1})
	}
	return doc
}

// Drop drops a collection
func (r *MongoEngine) Drop(ctx context.Context, collectionName string) <-chan error {
	result := make(chan error)

	go func() {
		defer close(result)

		if err := r.database.Collection(collectionName).Drop(ctx); err != nil {
			log.Error("MongoDB Drop error: %s", err.Error())
			result <- translateError(err)
			return
		}
		result <- nil
	}()

	return result
}

// ListCollections lists the collection names of the database
func (r *MongoEngine) ListCollections(ctx context.Context) <-chan interfaces.ListResult {
	result := make(chan interfaces.ListResult)

	go func() {
		defer close(result)

		names, err := r.database.ListCollectionNames(ctx, bson.D{})
		if err != nil {
			log.Error("MongoDB ListCollections error: %s", err.Error())
			result <- interfaces.ListResult{Error: translateError(err)}
			return
		}
		sort.Strings(names)
		result <- interfaces.ListResult{Names: names}
	}()

	return result
}

// Ping tests the database connection
func (r *MongoEngine) Ping(ctx context.Context) <-chan error {
	result := make(chan error)

	go func() {
		defer close(result)
		result <- translateError(r.client.Ping(ctx, nil))
	}()

	return result
}

// Close closes the database connection
func (r *MongoEngine) Close() error {
	return r.client.Disconnect(context.Background())
}

// MongoQueryResult implementation
func (r *MongoQueryResult) Next() bool {
	if r.cursor == nil {
		return false
	}
	return r.cursor.Next(r.ctx)
}

func (r *MongoQueryResult) Decode(v interface{}) error {
	if r.cursor == nil {
		return fmt.Errorf("cursor is nil")
	}
	return r.cursor.Decode(v)
}

func (r *MongoQueryResult) Close() {
	if r.cursor != nil {
		r.cursor.Close(r.ctx)
	}
}

func (r *MongoQueryResult) Error() error {
	if r.err == nil && r.cursor != nil {
		return translateError(r.cursor.Err())
	}
	return r.err
}
