// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package store

import "go.mongodb.org/mongo-driver/bson"

// Request is the frozen form of a cursor: the documents an execution sends
// to the engine. Build returns a deep copy, so later builder calls never
// change a Request already handed out.
type Request struct {
	Query      bson.D
	Projection bson.D
	Sort       bson.D
	Skip       int64
	Limit      int64
	Update     bson.D

	// Unconstrained is set when Query selects the whole collection.
	Unconstrained bool
}

func cloneDocument(doc bson.D) bson.D {
	if doc == nil {
		return nil
	}
	out := make(bson.D, len(doc))
	for i, e := range doc {
		out[i] = bson.E{Key: e.Key, Value: cloneValue(e.Value)}
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.D:
		return cloneDocument(t)
	case bson.A:
		out := make(bson.A, len(t))
		for i, el := range t {
			out[i] = cloneValue(el)
		}
		return out
	case []byte:
		return append([]byte(nil), t...)
	}
	return v
}

// put sets key in doc, replacing an existing entry in place
func put(doc bson.D, key string, value interface{}) bson.D {
	for i := range doc {
		if doc[i].Key == key {
			doc[i].Value = value
			return doc
		}
	}
	return append(doc, bson.E{Key: key, Value: value})
}

// without returns doc minus the entry for key
func without(doc bson.D, key string) bson.D {
	out := doc[:0:0]
	for _, e := range doc {
		if e.Key != key {
			out = append(out, e)
		}
	}
	return out
}

// get returns the value of key in doc
func get(doc bson.D, key string) (interface{}, bool) {
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}
