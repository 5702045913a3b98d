// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package store composes filter text and fluent builder calls into query and
// update documents and runs them against a storage engine.
//
// A Cursor is a one-shot accumulator: it is not safe for concurrent use and
// must not be reused after execution. Stores and DBs are safe to share.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/qolzam/docstore/internal/cache"
	"github.com/qolzam/docstore/internal/database/factory"
	"github.com/qolzam/docstore/internal/database/interfaces"
	"github.com/qolzam/docstore/internal/database/observability"
	"github.com/qolzam/docstore/internal/pkg/log"
	platformconfig "github.com/qolzam/docstore/internal/platform/config"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	defaultPageSize  = 100
	defaultVisitSize = 200
	cacheTimeout     = 200 * time.Millisecond
)

// DB is a named database on a storage engine
type DB struct {
	engine  interfaces.Engine
	name    string
	metrics *observability.MetricsCollector

	filters     cache.Cache
	cachePrefix string
	cacheTTL    time.Duration

	defaultLimit int64
	visitBatch   int64
}

// Option configures a DB
type Option func(*DB)

// WithFilterCache caches compiled query documents
func WithFilterCache(c cache.Cache, prefix string, ttl time.Duration) Option {
	return func(db *DB) {
		db.filters = c
		db.cachePrefix = prefix
		db.cacheTTL = ttl
	}
}

// WithMetrics records executions on m instead of the global collector
func WithMetrics(m *observability.MetricsCollector) Option {
	return func(db *DB) { db.metrics = m }
}

// WithPageSizes sets the page size used for limit(0) and the visit batch size
func WithPageSizes(defaultLimit, visitBatch int) Option {
	return func(db *DB) {
		if defaultLimit > 0 {
			db.defaultLimit = int64(defaultLimit)
		}
		if visitBatch > 0 {
			db.visitBatch = int64(visitBatch)
		}
	}
}

// NewDB wraps an engine
func NewDB(engine interfaces.Engine, name string, opts ...Option) *DB {
	db := &DB{
		engine:       engine,
		name:         name,
		metrics:      observability.GetGlobalMetrics(),
		defaultLimit: defaultPageSize,
		visitBatch:   defaultVisitSize,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Open creates the configured engine and, when enabled, the filter cache
func Open(ctx context.Context, cfg *platformconfig.Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine, err := factory.NewEngineFactoryFromPlatformConfig(cfg.Database).CreateEngine(ctx)
	if err != nil {
		return nil, err
	}

	opts := []Option{WithPageSizes(cfg.Cursor.DefaultLimit, cfg.Cursor.VisitBatchSize)}
	if cfg.Cache.Enabled {
		cacheConfig := cache.ConfigFromPlatform(cfg.Cache)
		filters, err := cache.NewCache(cacheConfig)
		if err != nil {
			log.Warn("filter cache disabled: %s", err.Error())
		} else {
			opts = append(opts, WithFilterCache(filters, cacheConfig.Prefix, cacheConfig.TTL))
		}
	}

	log.Info("opened %s database %s", cfg.Database.Type, cfg.Database.Name)
	return NewDB(engine, cfg.Database.Name, opts...), nil
}

// Name returns the database name
func (db *DB) Name() string { return db.name }

// Engine returns the underlying storage engine
func (db *DB) Engine() interfaces.Engine { return db.engine }

// Collections lists the collection names
func (db *DB) Collections(ctx context.Context) ([]string, error) {
	res := <-db.engine.ListCollections(ctx)
	return res.Names, res.Error
}

// Drop drops every collection. Only databases named test-* can be dropped.
func (db *DB) Drop(ctx context.Context) error {
	if err := db.checkTest(); err != nil {
		return err
	}
	names, err := db.Collections(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if strings.HasPrefix(name, "system.") {
			continue
		}
		if err := <-db.engine.Drop(ctx, name); err != nil {
			return err
		}
	}
	if db.filters != nil {
		db.filters.DeletePattern(ctx, db.cachePrefix+"*")
	}
	return nil
}

// Close releases the filter cache and the engine
func (db *DB) Close() error {
	var errs []error
	if db.filters != nil {
		errs = append(errs, db.filters.Close())
	}
	errs = append(errs, db.engine.Close())
	return errors.Join(errs...)
}

func (db *DB) checkTest() error {
	if !strings.HasPrefix(db.name, "test-") {
		return ErrNotTestDatabase
	}
	return nil
}

// cachedFilter returns a compiled query document stored under key
func (db *DB) cachedFilter(key string) (bson.D, bool) {
	if db.filters == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()

	data, err := db.filters.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrKeyNotFound) {
			log.Warn("filter cache get %s: %s", key, err.Error())
		}
		return nil, false
	}
	var doc bson.D
	if err := bson.Unmarshal(data, &doc); err != nil {
		log.Warn("filter cache entry %s: %s", key, err.Error())
		return nil, false
	}
	return doc, true
}

func (db *DB) cacheFilter(key string, data []byte) {
	if db.filters == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()

	if err := db.filters.Set(ctx, key, data, db.cacheTTL); err != nil {
		log.Warn("filter cache set %s: %s", key, err.Error())
	}
}
