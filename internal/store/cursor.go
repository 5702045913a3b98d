// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package store

import (
	"strings"

	"github.com/qolzam/docstore/internal/store/coerce"
	"go.mongodb.org/mongo-driver/bson"
)

// Cursor accumulates a predicate, projection, sort, page window and update
// document. Builder methods return the same cursor. The first builder error
// is kept and returned by Err, Build and every execution.
type Cursor[T any] struct {
	store *Store[T]

	where     bson.D
	selection bson.D
	sort      bson.D
	update    bson.D
	skip      int64
	limit     int64

	// examples bound by Or, most recent last
	examples []*T
	all      bool
	err      error
}

func newCursor[T any](s *Store[T]) *Cursor[T] {
	return &Cursor[T]{store: s}
}

// Err returns the first builder error
func (c *Cursor[T]) Err() error { return c.err }

func (c *Cursor[T]) fail(err error) *Cursor[T] {
	if c.err == nil {
		c.err = err
	}
	return c
}

func (c *Cursor[T]) combine(op string, doc bson.D) {
	if c.where == nil {
		c.where = doc
		return
	}
	c.where = bson.D{{Key: op, Value: bson.A{c.where, doc}}}
}

// Where conjoins a filter. args are substituted into text first, see
// filter.Format. Blank text adds nothing.
func (c *Cursor[T]) Where(text string, args ...interface{}) *Cursor[T] {
	if c.err != nil || (strings.TrimSpace(text) == "" && len(args) == 0) {
		return c
	}
	doc, err := c.store.compile(text, args...)
	if err != nil {
		return c.fail(err)
	}
	c.combine("$and", doc)
	return c
}

// Or disjoins a predicate matching example by identity: its _id when set,
// else its first populated unique field. The example is bound for Set
// without a value.
func (c *Cursor[T]) Or(example *T) *Cursor[T] {
	if c.err != nil {
		return c
	}
	identity, err := c.store.schema.Identity(example)
	if err != nil {
		return c.fail(err)
	}
	c.examples = append(c.examples, example)
	c.combine("$or", identity)
	return c
}

func (c *Cursor[T]) compare(field, op string, value interface{}) *Cursor[T] {
	if c.err != nil {
		return c
	}
	r := coerce.Value(coerce.Elem(c.store.schema.Lookup(field)), value)
	var constraint interface{} = r.Value
	if op != "" {
		constraint = bson.D{{Key: op, Value: r.Value}}
	}
	if c.where == nil {
		c.where = bson.D{}
	}
	c.where = put(c.where, field, constraint)
	return c
}

// Eq constrains field to equal value, replacing an earlier Eq, Gt, Gte, Lt,
// Lte or In on the same field
func (c *Cursor[T]) Eq(field string, value interface{}) *Cursor[T] {
	return c.compare(field, "", value)
}

// Gt constrains field to be greater than value
func (c *Cursor[T]) Gt(field string, value interface{}) *Cursor[T] {
	return c.compare(field, "$gt", value)
}

// Gte constrains field to be greater than or equal to value
func (c *Cursor[T]) Gte(field string, value interface{}) *Cursor[T] {
	return c.compare(field, "$gte", value)
}

// Lt constrains field to be less than value
func (c *Cursor[T]) Lt(field string, value interface{}) *Cursor[T] {
	return c.compare(field, "$lt", value)
}

// Lte constrains field to be less than or equal to value
func (c *Cursor[T]) Lte(field string, value interface{}) *Cursor[T] {
	return c.compare(field, "$lte", value)
}

// In constrains field to equal any of values. Values are coerced to the
// element type of field.
func (c *Cursor[T]) In(field string, values ...interface{}) *Cursor[T] {
	if c.err != nil {
		return c
	}
	if err := c.store.schema.Validate(field); err != nil {
		return c.fail(err)
	}
	elem := coerce.Elem(c.store.schema.Lookup(field))
	members := make(bson.A, 0, len(values))
	for _, v := range values {
		members = append(members, coerce.Value(elem, v).Value)
	}
	if c.where == nil {
		c.where = bson.D{}
	}
	c.where = put(c.where, field, bson.D{{Key: "$in", Value: members}})
	return c
}

// Select adds fields to the projection
func (c *Cursor[T]) Select(fields ...string) *Cursor[T] {
	for _, f := range fields {
		if c.err != nil {
			return c
		}
		if err := c.store.schema.Validate(f); err != nil {
			return c.fail(err)
		}
		c.selection = put(c.selection, f, 1)
	}
	return c
}

// Slice projects the first count elements of an array field, or the last
// -count when count is negative
func (c *Cursor[T]) Slice(field string, count int) *Cursor[T] {
	if c.err != nil {
		return c
	}
	if err := c.store.schema.Validate(field); err != nil {
		return c.fail(err)
	}
	c.selection = put(c.selection, field, bson.D{{Key: "$slice", Value: count}})
	return c
}

// Limit sets the page size. Zero means the default page size.
func (c *Cursor[T]) Limit(n int64) *Cursor[T] {
	if n < 0 {
		return c.fail(precondition("limit", "negative limit %d", n))
	}
	c.limit = n
	return c
}

// Skip sets the number of matches to skip
func (c *Cursor[T]) Skip(n int64) *Cursor[T] {
	if n < 0 {
		return c.fail(precondition("skip", "negative skip %d", n))
	}
	c.skip = n
	return c
}

// Ascending appends an ascending sort key. A field sorted on before moves
// to the end with the new direction.
func (c *Cursor[T]) Ascending(field string) *Cursor[T] {
	c.sort = append(without(c.sort, field), bson.E{Key: field, Value: 1})
	return c
}

// Descending appends a descending sort key
func (c *Cursor[T]) Descending(field string) *Cursor[T] {
	c.sort = append(without(c.sort, field), bson.E{Key: field, Value: -1})
	return c
}

// Build freezes the cursor into a Request
func (c *Cursor[T]) Build() (*Request, error) {
	if c.err != nil {
		return nil, c.err
	}
	query := cloneDocument(c.where)
	if query == nil {
		query = bson.D{}
	}
	limit := c.limit
	if limit == 0 {
		limit = c.store.db.defaultLimit
	}
	return &Request{
		Query:         query,
		Projection:    cloneDocument(c.selection),
		Sort:          cloneDocument(c.sort),
		Skip:          c.skip,
		Limit:         limit,
		Update:        cloneDocument(c.update),
		Unconstrained: len(query) == 0,
	}, nil
}
