// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package store

import (
	"context"
	"reflect"
	"time"

	"github.com/qolzam/docstore/internal/pkg/log"
	"github.com/qolzam/docstore/internal/store/schema"
	"go.mongodb.org/mongo-driver/bson"
)

// Visit calls fn for every match in ascending identity order, reading pages
// of the configured visit batch size. It returns false when fn stopped the
// visit and true once every match was visited. Skip, limit and sort of the
// cursor are ignored and the cursor itself is left unchanged. Documents
// inserted during the visit are seen when their identity is greater than
// the last one visited.
func (c *Cursor[T]) Visit(ctx context.Context, fn func(*T) (bool, error)) (completed bool, err error) {
	defer c.store.observe("visit", time.Now(), &err)

	req, err := c.Build()
	if err != nil {
		return false, err
	}
	size := c.store.db.visitBatch
	opts := visitRequest(req.Projection, size)

	var last interface{}
	pages := 0
	for {
		query := req.Query
		if pages > 0 {
			after := bson.D{{Key: schema.IDField, Value: bson.D{{Key: "$gt", Value: last}}}}
			if req.Unconstrained {
				query = after
			} else {
				query = bson.D{{Key: "$and", Value: bson.A{req.Query, after}}}
			}
		}

		page, err := c.page(ctx, query, opts)
		if err != nil {
			return false, err
		}
		pages++

		for _, doc := range page {
			more, err := fn(doc)
			if err != nil {
				return false, err
			}
			if !more {
				log.Debug("visit of %s stopped after %d pages", c.store.name, pages)
				return false, nil
			}
			last = c.store.schema.ID.Get(reflect.ValueOf(doc))
		}
		if int64(len(page)) < size {
			return true, nil
		}
	}
}

func visitRequest(projection bson.D, size int64) *Request {
	return &Request{
		Projection: projection,
		Sort:       bson.D{{Key: schema.IDField, Value: 1}},
		Limit:      size,
	}
}

func (c *Cursor[T]) page(ctx context.Context, query bson.D, opts *Request) ([]*T, error) {
	res := <-c.store.db.engine.Find(ctx, c.store.name, query, findOptions(opts))
	it := &Iterator[T]{result: res}
	defer it.Close()

	var out []*T
	for it.Next() {
		out = append(out, it.Value())
	}
	return out, it.Err()
}
