// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package memory is an in-process storage engine. It evaluates the same
// query, update, projection and sort documents the MongoDB engine sends to
// the server, which makes it suitable for tests and embedded use.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/qolzam/docstore/internal/database/interfaces"
	"github.com/qolzam/docstore/internal/pkg/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type index struct {
	keys   []string
	unique bool
}

type collection struct {
	docs    []bson.D
	indexes []index
}

// Engine implements interfaces.Engine in memory
type Engine struct {
	mu          sync.RWMutex
	collections map[string]*collection
	closed      atomic.Bool
}

var _ interfaces.Engine = (*Engine)(nil)

// NewEngine creates an empty in-memory engine
func NewEngine() *Engine {
	return &Engine{collections: make(map[string]*collection)}
}

// memoryQueryResult implements QueryResult over a materialized page
type memoryQueryResult struct {
	docs    []bson.D
	current int
	err     error
}

func (e *Engine) collection(name string, create bool) *collection {
	c, ok := e.collections[name]
	if !ok && create {
		c = &collection{}
		e.collections[name] = c
	}
	return c
}

func (e *Engine) check(ctx context.Context) error {
	if e.closed.Load() {
		return fmt.Errorf("%w: engine closed", interfaces.ErrConnectionFailed)
	}
	return ctx.Err()
}

// normalize runs a value through BSON so stored documents and operands share
// one representation
func normalize(v interface{}) (bson.D, error) {
	if v == nil {
		return bson.D{}, nil
	}
	// a nil bson.D in an interface marshals as a top-level null
	if d, ok := v.(bson.D); ok && len(d) == 0 {
		return bson.D{}, nil
	}
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *collection) filter(filter bson.D) ([]int, error) {
	var hits []int
	for i, doc := range c.docs {
		ok, err := matches(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			hits = append(hits, i)
		}
	}
	return hits, nil
}

// violates reports whether doc collides with another document on _id or any
// unique index. skip is the position of doc itself, or -1.
func (c *collection) violates(doc bson.D, skip int) bool {
	uniques := append([]index{{keys: []string{"_id"}, unique: true}}, c.indexes...)
	for _, idx := range uniques {
		if !idx.unique {
			continue
		}
		key := indexKey(doc, idx.keys)
		for i, other := range c.docs {
			if i != skip && compareArrays(key, indexKey(other, idx.keys)) == 0 {
				return true
			}
		}
	}
	return false
}

func indexKey(doc bson.D, keys []string) bson.A {
	out := make(bson.A, len(keys))
	for i, k := range keys {
		if values := lookup(doc, k); len(values) > 0 {
			out[i] = values[0]
		}
	}
	return out
}

func idOf(doc bson.D) (interface{}, bool) {
	for _, e := range doc {
		if e.Key == "_id" {
			return e.Value, true
		}
	}
	return nil, false
}

// InsertOne stores a document, generating an ObjectID when _id is absent
func (e *Engine) InsertOne(ctx context.Context, collectionName string, document interface{}) <-chan interfaces.RepositoryResult {
	result := make(chan interfaces.RepositoryResult)

	go func() {
		defer close(result)

		doc, err := normalize(document)
		if err == nil {
			err = e.check(ctx)
		}
		if err != nil {
			result <- interfaces.RepositoryResult{Error: err}
			return
		}

		id, ok := idOf(doc)
		if !ok {
			id = primitive.NewObjectID()
			doc = append(bson.D{{Key: "_id", Value: id}}, doc...)
		}

		e.mu.Lock()
		defer e.mu.Unlock()

		c := e.collection(collectionName, true)
		if c.violates(doc, -1) {
			result <- interfaces.RepositoryResult{Error: fmt.Errorf("insert into %s: %w", collectionName, interfaces.ErrDuplicateKey)}
			return
		}
		c.docs = append(c.docs, doc)

		result <- interfaces.RepositoryResult{Result: id}
	}()

	return result
}

// ReplaceOne replaces the first matching document, inserting when upsert is
// set and nothing matches
func (e *Engine) ReplaceOne(ctx context.Context, collectionName string, filter bson.D, document interface{}, upsert bool) <-chan interfaces.RepositoryResult {
	result := make(chan interfaces.RepositoryResult)

	go func() {
		defer close(result)

		query, err := normalize(filter)
		var doc bson.D
		if err == nil {
			doc, err = normalize(document)
		}
		if err == nil {
			err = e.check(ctx)
		}
		if err != nil {
			result <- interfaces.RepositoryResult{Error: err}
			return
		}

		e.mu.Lock()
		defer e.mu.Unlock()

		c := e.collection(collectionName, true)
		hits, err := c.filter(query)
		if err != nil {
			log.Error("Memory ReplaceOne error: %s", err.Error())
			result <- interfaces.RepositoryResult{Error: err}
			return
		}

		if len(hits) == 0 {
			if !upsert {
				result <- interfaces.RepositoryResult{Result: int64(0)}
				return
			}
			if _, ok := idOf(doc); !ok {
				id, fromFilter := idOf(query)
				if !fromFilter || isOperatorDocument(id) {
					id = primitive.NewObjectID()
				}
				doc = append(bson.D{{Key: "_id", Value: id}}, doc...)
			}
			if c.violates(doc, -1) {
				result <- interfaces.RepositoryResult{Error: fmt.Errorf("upsert into %s: %w", collectionName, interfaces.ErrDuplicateKey)}
				return
			}
			c.docs = append(c.docs, doc)
			result <- interfaces.RepositoryResult{Result: int64(1)}
			return
		}

		at := hits[0]
		oldID, _ := idOf(c.docs[at])
		if newID, ok := idOf(doc); ok && compareValues(newID, oldID) != 0 {
			result <- interfaces.RepositoryResult{Error: fmt.Errorf("%w: replacement changes _id", interfaces.ErrInvalidFilter)}
			return
		} else if !ok {
			doc = append(bson.D{{Key: "_id", Value: oldID}}, doc...)
		}
		if c.violates(doc, at) {
			result <- interfaces.RepositoryResult{Error: fmt.Errorf("replace in %s: %w", collectionName, interfaces.ErrDuplicateKey)}
			return
		}
		modified := !sameDocument(c.docs[at], doc)
		c.docs[at] = doc

		if modified {
			result <- interfaces.RepositoryResult{Result: int64(1)}
			return
		}
		result <- interfaces.RepositoryResult{Result: int64(0)}
	}()

	return result
}

// Find retrieves documents: filter, sort, skip, limit, then projection
func (e *Engine) Find(ctx context.Context, collectionName string, filter bson.D, opts *interfaces.FindOptions) <-chan interfaces.QueryResult {
	result := make(chan interfaces.QueryResult)

	go func() {
		defer close(result)

		docs, err := e.find(ctx, collectionName, filter, opts)
		if err != nil {
			log.Error("Memory Find error: %s", err.Error())
			result <- &memoryQueryResult{err: err}
			return
		}
		result <- &memoryQueryResult{docs: docs, current: -1}
	}()

	return result
}

func (e *Engine) find(ctx context.Context, collectionName string, filter bson.D, opts *interfaces.FindOptions) ([]bson.D, error) {
	if err := e.check(ctx); err != nil {
		return nil, err
	}
	query, err := normalize(filter)
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &interfaces.FindOptions{}
	}
	sortSpec, err := normalize(opts.Sort)
	if err != nil {
		return nil, err
	}
	keys, err := parseSort(sortSpec)
	if err != nil {
		return nil, err
	}
	projectionSpec, err := normalize(opts.Projection)
	if err != nil {
		return nil, err
	}
	proj, err := parseProjection(projectionSpec)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	c := e.collection(collectionName, false)
	var docs []bson.D
	if c != nil {
		hits, err := c.filter(query)
		if err != nil {
			e.mu.RUnlock()
			return nil, err
		}
		docs = make([]bson.D, 0, len(hits))
		for _, i := range hits {
			docs = append(docs, cloneDocument(c.docs[i]))
		}
	}
	e.mu.RUnlock()

	sortDocuments(docs, keys)

	if opts.Skip != nil && *opts.Skip > 0 {
		if int(*opts.Skip) >= len(docs) {
			docs = nil
		} else {
			docs = docs[*opts.Skip:]
		}
	}
	if opts.Limit != nil && *opts.Limit > 0 && int(*opts.Limit) < len(docs) {
		docs = docs[:*opts.Limit]
	}
	for i := range docs {
		docs[i] = proj.apply(docs[i])
	}
	return docs, nil
}

// Count counts matching documents
func (e *Engine) Count(ctx context.Context, collectionName string, filter bson.D) <-chan interfaces.CountResult {
	result := make(chan interfaces.CountResult)

	go func() {
		defer close(result)

		docs, err := e.find(ctx, collectionName, filter, nil)
		if err != nil {
			log.Error("Memory Count error: %s", err.Error())
			result <- interfaces.CountResult{Error: err}
			return
		}
		result <- interfaces.CountResult{Count: int64(len(docs))}
	}()

	return result
}

// Distinct gets the distinct values of a field, flattening arrays
func (e *Engine) Distinct(ctx context.Context, collectionName string, field string, filter bson.D) <-chan interfaces.DistinctResult {
	result := make(chan interfaces.DistinctResult)

	go func() {
		defer close(result)

		docs, err := e.find(ctx, collectionName, filter, nil)
		if err != nil {
			log.Error("Memory Distinct error: %s", err.Error())
			result <- interfaces.DistinctResult{Error: err}
			return
		}

		values := []interface{}{}
		add := func(v interface{}) {
			for _, seen := range values {
				if compareValues(seen, v) == 0 {
					return
				}
			}
			values = append(values, v)
		}
		for _, doc := range docs {
			for _, v := range lookup(doc, field) {
				if a := toArray(v); a != nil {
					for _, el := range a {
						add(el)
					}
					continue
				}
				add(v)
			}
		}
		sort.SliceStable(values, func(i, j int) bool { return compareValues(values[i], values[j]) < 0 })

		result <- interfaces.DistinctResult{Values: values}
	}()

	return result
}

// UpdateMany applies an update document to every matching document and
// reports how many actually changed
func (e *Engine) UpdateMany(ctx context.Context, collectionName string, filter bson.D, update bson.D) <-chan interfaces.RepositoryResult {
	result := make(chan interfaces.RepositoryResult)

	go func() {
		defer close(result)

		query, err := normalize(filter)
		var changes bson.D
		if err == nil {
			changes, err = normalize(update)
		}
		if err == nil {
			err = e.check(ctx)
		}
		if err != nil {
			result <- interfaces.RepositoryResult{Error: err}
			return
		}

		e.mu.Lock()
		defer e.mu.Unlock()

		c := e.collection(collectionName, false)
		if c == nil {
			result <- interfaces.RepositoryResult{Result: int64(0)}
			return
		}
		hits, err := c.filter(query)
		if err != nil {
			log.Error("Memory UpdateMany error: %s", err.Error())
			result <- interfaces.RepositoryResult{Error: err}
			return
		}

		updated := make(map[int]bson.D, len(hits))
		for _, i := range hits {
			doc, err := applyUpdate(c.docs[i], changes)
			if err != nil {
				log.Error("Memory UpdateMany error: %s", err.Error())
				result <- interfaces.RepositoryResult{Error: err}
				return
			}
			if !sameDocument(c.docs[i], doc) {
				updated[i] = doc
			}
		}

		previous := make(map[int]bson.D, len(updated))
		for i, doc := range updated {
			previous[i] = c.docs[i]
			c.docs[i] = doc
		}
		for i := range updated {
			if c.violates(c.docs[i], i) {
				for j, doc := range previous {
					c.docs[j] = doc
				}
				result <- interfaces.RepositoryResult{Error: fmt.Errorf("update %s: %w", collectionName, interfaces.ErrDuplicateKey)}
				return
			}
		}

		result <- interfaces.RepositoryResult{Result: int64(len(updated))}
	}()

	return result
}

// DeleteMany removes every matching document
func (e *Engine) DeleteMany(ctx context.Context, collectionName string, filter bson.D) <-chan interfaces.RepositoryResult {
	result := make(chan interfaces.RepositoryResult)

	go func() {
		defer close(result)

		query, err := normalize(filter)
		if err == nil {
			err = e.check(ctx)
		}
		if err != nil {
			result <- interfaces.RepositoryResult{Error: err}
			return
		}

		e.mu.Lock()
		defer e.mu.Unlock()

		c := e.collection(collectionName, false)
		if c == nil {
			result <- interfaces.RepositoryResult{Result: int64(0)}
			return
		}
		hits, err := c.filter(query)
		if err != nil {
			log.Error("Memory DeleteMany error: %s", err.Error())
			result <- interfaces.RepositoryResult{Error: err}
			return
		}
		drop := make(map[int]bool, len(hits))
		for _, i := range hits {
			drop[i] = true
		}
		kept := c.docs[:0:0]
		for i, doc := range c.docs {
			if !drop[i] {
				kept = append(kept, doc)
			}
		}
		c.docs = kept

		result <- interfaces.RepositoryResult{Result: int64(len(hits))}
	}()

	return result
}

// CreateIndex registers an index; unique indexes are enforced on writes
func (e *Engine) CreateIndex(ctx context.Context, collectionName string, keys []string, unique bool) <-chan error {
	result := make(chan error)

	go func() {
		defer close(result)

		if err := e.check(ctx); err != nil {
			result <- err
			return
		}
		if len(keys) == 0 {
			result <- fmt.Errorf("%w: index needs at least one key", interfaces.ErrInvalidFilter)
			return
		}

		e.mu.Lock()
		defer e.mu.Unlock()

		c := e.collection(collectionName, true)
		for _, idx := range c.indexes {
			if strings.Join(idx.keys, ",") == strings.Join(keys, ",") && idx.unique == unique {
				result <- nil
				return
			}
		}
		idx := index{keys: append([]string(nil), keys...), unique: unique}
		if unique {
			for i := range c.docs {
				for j := i + 1; j < len(c.docs); j++ {
					if compareArrays(indexKey(c.docs[i], keys), indexKey(c.docs[j], keys)) == 0 {
						result <- fmt.Errorf("create index on %s: %w", collectionName, interfaces.ErrDuplicateKey)
						return
					}
				}
			}
		}
		c.indexes = append(c.indexes, idx)
		result <- nil
	}()

	return result
}

// Drop removes a collection with its indexes
func (e *Engine) Drop(ctx context.Context, collectionName string) <-chan error {
	result := make(chan error)

	go func() {
		defer close(result)

		if err := e.check(ctx); err != nil {
			result <- err
			return
		}
		e.mu.Lock()
		delete(e.collections, collectionName)
		e.mu.Unlock()
		result <- nil
	}()

	return result
}

// ListCollections returns the collection names in sorted order
func (e *Engine) ListCollections(ctx context.Context) <-chan interfaces.ListResult {
	result := make(chan interfaces.ListResult)

	go func() {
		defer close(result)

		if err := e.check(ctx); err != nil {
			result <- interfaces.ListResult{Error: err}
			return
		}
		e.mu.RLock()
		names := make([]string, 0, len(e.collections))
		for name := range e.collections {
			names = append(names, name)
		}
		e.mu.RUnlock()
		sort.Strings(names)
		result <- interfaces.ListResult{Names: names}
	}()

	return result
}

// Ping reports whether the engine is open
func (e *Engine) Ping(ctx context.Context) <-chan error {
	result := make(chan error)

	go func() {
		defer close(result)
		result <- e.check(ctx)
	}()

	return result
}

// Close rejects further calls
func (e *Engine) Close() error {
	e.closed.Store(true)
	return nil
}

func sameDocument(a, b bson.D) bool {
	da, errA := bson.Marshal(a)
	db, errB := bson.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(da, db)
}

// memoryQueryResult implementation
func (r *memoryQueryResult) Next() bool {
	if r.err != nil || r.current+1 >= len(r.docs) {
		return false
	}
	r.current++
	return true
}

func (r *memoryQueryResult) Decode(v interface{}) error {
	if r.current < 0 || r.current >= len(r.docs) {
		return fmt.Errorf("no current document")
	}
	data, err := bson.Marshal(r.docs[r.current])
	if err != nil {
		return err
	}
	return bson.Unmarshal(data, v)
}

func (r *memoryQueryResult) Close() {
	r.docs = nil
}

func (r *memoryQueryResult) Error() error {
	return r.err
}
