// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package store

import (
	"context"
	"iter"
	"time"

	"github.com/qolzam/docstore/internal/database/interfaces"
	"github.com/qolzam/docstore/internal/pkg/log"
	"github.com/qolzam/docstore/internal/store/codec"
	"github.com/qolzam/docstore/internal/store/coerce"
)

// Count counts the matches, ignoring skip, limit and projection
func (c *Cursor[T]) Count(ctx context.Context) (n int64, err error) {
	defer c.store.observe("count", time.Now(), &err)

	req, err := c.Build()
	if err != nil {
		return 0, err
	}
	res := <-c.store.db.engine.Count(ctx, c.store.name, req.Query)
	return res.Count, res.Error
}

// IsEmpty reports whether nothing matches
func (c *Cursor[T]) IsEmpty(ctx context.Context) (bool, error) {
	n, err := c.Count(ctx)
	return n == 0, err
}

// First returns the first match, or nil when nothing matches
func (c *Cursor[T]) First(ctx context.Context) (*T, error) {
	c.Limit(1)
	out, err := c.Collect(ctx)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return &out[0], nil
}

// One is First
func (c *Cursor[T]) One(ctx context.Context) (*T, error) {
	return c.First(ctx)
}

// Distinct returns the distinct values of field among the matches. The
// values are converted to the declared type of field when it is known.
func (c *Cursor[T]) Distinct(ctx context.Context, field string) (values []interface{}, err error) {
	defer c.store.observe("distinct", time.Now(), &err)

	if c.err != nil {
		return nil, c.err
	}
	if c.skip != 0 || c.limit != 0 || len(c.selection) > 0 {
		return nil, precondition("distinct", "skip, limit and projection must not be set")
	}
	req, err := c.Build()
	if err != nil {
		return nil, err
	}
	res := <-c.store.db.engine.Distinct(ctx, c.store.name, field, req.Query)
	if res.Error != nil {
		return nil, res.Error
	}

	t := coerce.Elem(c.store.schema.Lookup(field))
	if t == nil {
		return res.Values, nil
	}
	values = make([]interface{}, len(res.Values))
	for i, v := range res.Values {
		converted, err := codec.Convert(t, v)
		if err != nil {
			log.Debug("distinct %s.%s: keeping %v: %s", c.store.name, field, v, err.Error())
			converted = v
		}
		values[i] = converted
	}
	return values, nil
}

// Collect returns every match of the page window
func (c *Cursor[T]) Collect(ctx context.Context) (out []T, err error) {
	defer c.store.observe("find", time.Now(), &err)

	it := c.Iterator(ctx)
	defer it.Close()
	for it.Next() {
		out = append(out, *it.Value())
	}
	return out, it.Err()
}

// Stream yields the matches one by one. Each range over the sequence
// reissues the query.
func (c *Cursor[T]) Stream(ctx context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		it := c.Iterator(ctx)
		defer it.Close()
		for it.Next() {
			if !yield(it.Value(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// Iterator issues the query and decodes matches as they are read
func (c *Cursor[T]) Iterator(ctx context.Context) *Iterator[T] {
	req, err := c.Build()
	if err != nil {
		return &Iterator[T]{err: err}
	}
	log.Dump("find "+c.store.name, req)
	return &Iterator[T]{result: <-c.store.db.engine.Find(ctx, c.store.name, req.Query, findOptions(req))}
}

func findOptions(req *Request) *interfaces.FindOptions {
	opts := &interfaces.FindOptions{Sort: req.Sort, Projection: req.Projection}
	if req.Skip > 0 {
		skip := req.Skip
		opts.Skip = &skip
	}
	if req.Limit > 0 {
		limit := req.Limit
		opts.Limit = &limit
	}
	return opts
}

// Iterator reads the matches of a cursor. It is not restartable.
type Iterator[T any] struct {
	result  interfaces.QueryResult
	current *T
	err     error
}

// Next decodes the next match. It returns false at the end or on error.
func (it *Iterator[T]) Next() bool {
	if it.err != nil || it.result == nil {
		return false
	}
	if err := it.result.Error(); err != nil {
		it.err = err
		return false
	}
	if !it.result.Next() {
		it.err = it.result.Error()
		return false
	}
	var v T
	if err := it.result.Decode(&v); err != nil {
		it.err = err
		return false
	}
	it.current = &v
	return true
}

// Value returns the match decoded by the last Next
func (it *Iterator[T]) Value() *T { return it.current }

// Err returns the error that ended iteration
func (it *Iterator[T]) Err() error { return it.err }

// Close releases the engine cursor
func (it *Iterator[T]) Close() {
	if it.result != nil {
		it.result.Close()
		it.result = nil
	}
}

// Update applies the update document to every match and returns the number
// of modified documents. A cursor without a predicate updates the whole
// collection only when it was started by All.
func (c *Cursor[T]) Update(ctx context.Context) (n int64, err error) {
	defer c.store.observe("update", time.Now(), &err)

	req, err := c.Build()
	if err != nil {
		return 0, err
	}
	if len(req.Update) == 0 {
		return 0, precondition("update", "nothing to update")
	}
	if req.Unconstrained && !c.all {
		return 0, precondition("update", "no predicate, start the cursor with All to update every document")
	}
	log.Dump("update "+c.store.name, req)
	res := <-c.store.db.engine.UpdateMany(ctx, c.store.name, req.Query, req.Update)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.Affected(), nil
}

// Delete removes every match and returns the number of removed documents.
// A cursor without a predicate removes the whole collection only when it
// was started by All.
func (c *Cursor[T]) Delete(ctx context.Context) (n int64, err error) {
	defer c.store.observe("remove", time.Now(), &err)

	req, err := c.Build()
	if err != nil {
		return 0, err
	}
	if req.Unconstrained && !c.all {
		return 0, precondition("remove", "no predicate, start the cursor with All to remove every document")
	}
	log.Dump("remove "+c.store.name, req)
	res := <-c.store.db.engine.DeleteMany(ctx, c.store.name, req.Query)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.Affected(), nil
}
