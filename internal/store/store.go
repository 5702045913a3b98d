// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/qolzam/docstore/internal/database/interfaces"
	"github.com/qolzam/docstore/internal/pkg/log"
	"github.com/qolzam/docstore/internal/store/filter"
	"github.com/qolzam/docstore/internal/store/schema"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store is a typed collection
type Store[T any] struct {
	db     *DB
	name   string
	schema *schema.Schema
}

// GetStore binds collection name to the document type T. T must be a struct
// with an _id field.
func GetStore[T any](db *DB, name string) (*Store[T], error) {
	s, err := schema.Of[T]()
	if err != nil {
		return nil, err
	}
	return &Store[T]{db: db, name: name, schema: s}, nil
}

// Name returns the collection name
func (s *Store[T]) Name() string { return s.name }

// Schema returns the accessor table of T
func (s *Store[T]) Schema() *schema.Schema { return s.schema }

// Unique creates a unique index over fields and registers them as
// alternate identities
func (s *Store[T]) Unique(ctx context.Context, fields ...string) (err error) {
	defer s.observe("unique", time.Now(), &err)

	for _, f := range fields {
		if _, ok := s.schema.Field(f); !ok {
			return &schema.FieldError{Type: s.schema.Name(), Field: f, Err: schema.ErrUnknownField}
		}
	}
	if err := <-s.db.engine.CreateIndex(ctx, s.name, fields, true); err != nil {
		return err
	}
	return s.schema.MarkUnique(fields...)
}

// Insert stores doc, generating an identity when it has none. A duplicate
// key is reported as false with a nil error.
func (s *Store[T]) Insert(ctx context.Context, doc *T) (inserted bool, err error) {
	defer s.observe("insert", time.Now(), &err)

	if doc == nil {
		return false, &schema.FieldError{Type: s.schema.Name(), Err: schema.ErrMissingIdentity}
	}
	v := reflect.ValueOf(doc)
	if s.schema.ID.IsZero(v) {
		id, err := newIdentity(s.schema.ID.Type)
		if err != nil {
			return false, &schema.FieldError{Type: s.schema.Name(), Field: schema.IDField, Err: err}
		}
		if err := s.schema.ID.Set(v, id); err != nil {
			return false, err
		}
	}

	res := <-s.db.engine.InsertOne(ctx, s.name, doc)
	if errors.Is(res.Error, interfaces.ErrDuplicateKey) {
		log.Debug("insert into %s rejected: %s", s.name, res.Error.Error())
		return false, nil
	}
	if res.Error != nil {
		return false, res.Error
	}
	return true, nil
}

func newIdentity(t reflect.Type) (interface{}, error) {
	switch t {
	case reflect.TypeOf([]byte(nil)):
		id := primitive.NewObjectID()
		return id[:], nil
	case reflect.TypeOf(""):
		return primitive.NewObjectID().Hex(), nil
	case reflect.TypeOf(primitive.ObjectID{}):
		return primitive.NewObjectID(), nil
	case reflect.TypeOf(uuid.UUID{}):
		return uuid.NewV4()
	}
	return nil, fmt.Errorf("%w: cannot generate an identity of type %s", schema.ErrMissingIdentity, t)
}

// Update replaces doc by its identity. With fields, only those fields are
// set on the documents doc identifies.
func (s *Store[T]) Update(ctx context.Context, doc *T, fields ...string) (err error) {
	if len(fields) > 0 {
		cursor := s.FindByExample(doc)
		for _, f := range fields {
			cursor.Set(f)
		}
		_, err := cursor.Update(ctx)
		return err
	}

	defer s.observe("replace", time.Now(), &err)
	return s.replace(ctx, doc, false)
}

// Upsert replaces doc by its identity or inserts it
func (s *Store[T]) Upsert(ctx context.Context, doc *T) (err error) {
	defer s.observe("upsert", time.Now(), &err)
	return s.replace(ctx, doc, true)
}

func (s *Store[T]) replace(ctx context.Context, doc *T, upsert bool) error {
	identity, err := s.schema.Identity(doc)
	if err != nil {
		return err
	}
	res := <-s.db.engine.ReplaceOne(ctx, s.name, identity, doc, upsert)
	return res.Error
}

// All starts a cursor over the whole collection. Only cursors started here
// may update or remove without a predicate.
func (s *Store[T]) All() *Cursor[T] {
	c := newCursor(s)
	c.all = true
	return c
}

// Find starts a cursor with a filter, see Cursor.Where
func (s *Store[T]) Find(where string, args ...interface{}) *Cursor[T] {
	return newCursor(s).Where(where, args...)
}

// FindByExample starts a cursor selecting doc by its identity
func (s *Store[T]) FindByExample(doc *T) *Cursor[T] {
	return newCursor(s).Or(doc)
}

// Select starts a cursor with a projection
func (s *Store[T]) Select(fields ...string) *Cursor[T] {
	return newCursor(s).Select(fields...)
}

// Optimistic starts a cursor for doc. Version checks are not implemented,
// so this is FindByExample.
func (s *Store[T]) Optimistic(doc *T) *Cursor[T] {
	return s.FindByExample(doc)
}

// UniqueID returns fresh ObjectID bytes
func (s *Store[T]) UniqueID() []byte {
	id := primitive.NewObjectID()
	return id[:]
}

// Count counts every document of the collection
func (s *Store[T]) Count(ctx context.Context) (n int64, err error) {
	defer s.observe("count", time.Now(), &err)
	res := <-s.db.engine.Count(ctx, s.name, bson.D{})
	return res.Count, res.Error
}

// Drop drops the collection. Only allowed on test-* databases.
func (s *Store[T]) Drop(ctx context.Context) error {
	if err := s.db.checkTest(); err != nil {
		return err
	}
	if s.db.filters != nil {
		s.db.filters.DeletePattern(ctx, s.cacheKey("*"))
	}
	return <-s.db.engine.Drop(ctx, s.name)
}

func (s *Store[T]) cacheKey(text string) string {
	return s.db.cachePrefix + s.name + ":" + text
}

// compile formats, parses and compiles filter text. Results are cached as
// BSON so cached and fresh documents are identical.
func (s *Store[T]) compile(text string, args ...interface{}) (bson.D, error) {
	formatted := filter.Format(text, args...)
	key := s.cacheKey(formatted)
	if doc, ok := s.db.cachedFilter(key); ok {
		return doc, nil
	}

	expr, err := filter.Parse(formatted)
	if err != nil {
		s.db.metrics.FilterError()
		return nil, err
	}
	doc, err := Compile(expr, s.schema)
	if err != nil {
		return nil, err
	}
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode filter %q: %w", formatted, err)
	}
	var normalized bson.D
	if err := bson.Unmarshal(data, &normalized); err != nil {
		return nil, fmt.Errorf("decode filter %q: %w", formatted, err)
	}
	s.db.cacheFilter(key, data)

	if log.DebugEnabled() {
		log.Debug("compiled %s %s into %s", s.name, strings.TrimSpace(formatted), bson.Raw(data).String())
	}
	return normalized, nil
}

func (s *Store[T]) observe(operation string, start time.Time, err *error) {
	s.db.metrics.Observe(s.name, operation, start, *err)
}
