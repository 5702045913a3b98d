// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package store

import (
	"reflect"

	"github.com/qolzam/docstore/internal/store/codec"
	"github.com/qolzam/docstore/internal/store/coerce"
	"go.mongodb.org/mongo-driver/bson"
)

// mutate installs field under the update operator op. A later call for the
// same operator and field replaces the earlier value.
func (c *Cursor[T]) mutate(op, field string, value interface{}) *Cursor[T] {
	if c.err != nil {
		return c
	}
	if err := c.store.schema.Validate(field); err != nil {
		return c.fail(err)
	}
	v, err := codec.Value(value)
	if err != nil {
		return c.fail(err)
	}
	fields, _ := get(c.update, op)
	doc, _ := fields.(bson.D)
	c.update = put(c.update, op, put(doc, field, v))
	return c
}

// Set sets field to value. Without a value, the field is read from the
// example most recently bound by Or.
func (c *Cursor[T]) Set(field string, value ...interface{}) *Cursor[T] {
	switch len(value) {
	case 0:
		if len(c.examples) == 0 {
			return c.fail(precondition("set", "no example bound to read %s from", field))
		}
		f, ok := c.store.schema.Field(field)
		if !ok {
			if err := c.store.schema.Validate(field); err != nil {
				return c.fail(err)
			}
			return c.fail(precondition("set", "%s is not a top-level field of the example", field))
		}
		example := c.examples[len(c.examples)-1]
		return c.mutate("$set", field, f.Get(reflect.ValueOf(example)))
	case 1:
		return c.mutate("$set", field, value[0])
	}
	return c.fail(precondition("set", "%d values for %s", len(value), field))
}

// Unset removes field
func (c *Cursor[T]) Unset(field string) *Cursor[T] {
	return c.mutate("$unset", field, "")
}

// Append pushes values onto the array field
func (c *Cursor[T]) Append(field string, values ...interface{}) *Cursor[T] {
	return c.mutate("$push", field, bson.D{{Key: "$each", Value: append(bson.A{}, values...)}})
}

// Remove removes every occurrence of values from the array field
func (c *Cursor[T]) Remove(field string, values ...interface{}) *Cursor[T] {
	return c.mutate("$pullAll", field, append(bson.A{}, values...))
}

// Pull removes elements equal to value from the array field
func (c *Cursor[T]) Pull(field string, value interface{}) *Cursor[T] {
	if c.err != nil {
		return c
	}
	return c.mutate("$pull", field, coerce.Value(coerce.Elem(c.store.schema.Lookup(field)), value).Value)
}

// Inc adds delta to the numeric field
func (c *Cursor[T]) Inc(field string, delta interface{}) *Cursor[T] {
	return c.mutate("$inc", field, delta)
}
