// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package codec maps typed values to and from their BSON document form.
package codec

import (
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
)

// ToDocument encodes a struct, map or document into an ordered document.
func ToDocument(v interface{}) (bson.D, error) {
	if d, ok := v.(bson.D); ok {
		return d, nil
	}
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var doc bson.D
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return doc, nil
}

// FromDocument decodes a document into out, which must be a pointer.
func FromDocument(doc interface{}, out interface{}) error {
	var data []byte
	switch d := doc.(type) {
	case bson.Raw:
		data = d
	case []byte:
		data = d
	default:
		var err error
		if data, err = bson.Marshal(doc); err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
	}
	if err := bson.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode into %T: %w", out, err)
	}
	return nil
}

// Value normalizes a single Go value to the representation it has inside a
// stored document: structs become bson.D, slices bson.A, integers int32 or
// int64 and so on. Byte slices are kept as they are.
func Value(v interface{}) (interface{}, error) {
	switch v.(type) {
	case nil, []byte, string, bool, int32, int64, float64:
		return v, nil
	}
	data, err := bson.Marshal(bson.D{{Key: "v", Value: v}})
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var doc bson.D
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return doc[0].Value, nil
}

// Convert decodes a raw document value into a value of type t, e.g. an int32
// read from storage into a declared int field.
func Convert(t reflect.Type, v interface{}) (interface{}, error) {
	if v == nil {
		return reflect.Zero(t).Interface(), nil
	}
	if reflect.TypeOf(v) == t {
		return v, nil
	}
	kind, data, err := bson.MarshalValue(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	out := reflect.New(t)
	if err := (bson.RawValue{Type: kind, Value: data}).Unmarshal(out.Interface()); err != nil {
		return nil, fmt.Errorf("convert %T to %s: %w", v, t, err)
	}
	return out.Elem().Interface(), nil
}
