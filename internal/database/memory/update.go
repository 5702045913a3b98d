// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package memory

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/qolzam/docstore/internal/database/interfaces"
	"go.mongodb.org/mongo-driver/bson"
)

// applyUpdate returns a modified copy of doc. The input is never mutated.
func applyUpdate(doc bson.D, update bson.D) (bson.D, error) {
	if len(update) == 0 {
		return nil, fmt.Errorf("%w: empty update document", interfaces.ErrInvalidFilter)
	}
	out := cloneDocument(doc)
	for _, op := range update {
		fields := toDocument(op.Value)
		if classOf(op.Value) != classDocument {
			return nil, fmt.Errorf("%w: %s needs a document", interfaces.ErrInvalidFilter, op.Key)
		}
		for _, f := range fields {
			if f.Key == "_id" && op.Key != "$set" {
				return nil, fmt.Errorf("%w: cannot %s _id", interfaces.ErrInvalidFilter, op.Key)
			}
			var err error
			switch op.Key {
			case "$set":
				out, err = setPath(out, splitPath(f.Key), f.Value)
			case "$unset":
				out = unsetPath(out, splitPath(f.Key))
			case "$inc":
				err = modify(&out, f.Key, func(cur interface{}, found bool) (interface{}, error) {
					return increment(cur, found, f.Value)
				})
			case "$push", "$addToSet":
				items := bson.A{f.Value}
				if each := toDocument(f.Value); len(each) > 0 && each[0].Key == "$each" {
					items = toArray(each[0].Value)
				}
				unique := op.Key == "$addToSet"
				err = modify(&out, f.Key, func(cur interface{}, found bool) (interface{}, error) {
					arr, err := arrayOf(cur, found, f.Key)
					if err != nil {
						return nil, err
					}
					for _, item := range items {
						if unique && containsValue(arr, item) {
							continue
						}
						arr = append(arr, item)
					}
					return arr, nil
				})
			case "$pull":
				err = modify(&out, f.Key, func(cur interface{}, found bool) (interface{}, error) {
					if !found {
						return nil, errSkip
					}
					arr, err := arrayOf(cur, found, f.Key)
					if err != nil {
						return nil, err
					}
					kept := bson.A{}
					for _, el := range arr {
						drop, err := pullMatches(el, f.Value)
						if err != nil {
							return nil, err
						}
						if !drop {
							kept = append(kept, el)
						}
					}
					return kept, nil
				})
			case "$pullAll":
				values := toArray(f.Value)
				if values == nil {
					return nil, fmt.Errorf("%w: $pullAll needs an array", interfaces.ErrInvalidFilter)
				}
				err = modify(&out, f.Key, func(cur interface{}, found bool) (interface{}, error) {
					if !found {
						return nil, errSkip
					}
					arr, err := arrayOf(cur, found, f.Key)
					if err != nil {
						return nil, err
					}
					kept := bson.A{}
					for _, el := range arr {
						if !containsValue(values, el) {
							kept = append(kept, el)
						}
					}
					return kept, nil
				})
			default:
				return nil, fmt.Errorf("%w: %s", interfaces.ErrUnsupportedOperation, op.Key)
			}
			if err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

var errSkip = fmt.Errorf("skip")

// modify replaces the value at path with fn's result
func modify(doc *bson.D, path string, fn func(cur interface{}, found bool) (interface{}, error)) error {
	values := lookup(*doc, path)
	var cur interface{}
	if len(values) > 0 {
		cur = values[0]
	}
	next, err := fn(cur, len(values) > 0)
	if err == errSkip {
		return nil
	}
	if err != nil {
		return err
	}
	*doc, err = setPath(*doc, splitPath(path), next)
	return err
}

func arrayOf(cur interface{}, found bool, path string) (bson.A, error) {
	if !found || cur == nil {
		return bson.A{}, nil
	}
	arr := toArray(cur)
	if arr == nil {
		return nil, fmt.Errorf("%w: %s is not an array", interfaces.ErrInvalidFilter, path)
	}
	return append(bson.A{}, arr...), nil
}

func pullMatches(el interface{}, cond interface{}) (bool, error) {
	if !isOperatorDocument(cond) {
		return compareValues(el, cond) == 0, nil
	}
	return matchOperators([]interface{}{el}, toDocument(cond))
}

func containsValue(arr bson.A, v interface{}) bool {
	for _, el := range arr {
		if compareValues(el, v) == 0 {
			return true
		}
	}
	return false
}

func increment(cur interface{}, found bool, delta interface{}) (interface{}, error) {
	if classOf(delta) != classNumber {
		return nil, fmt.Errorf("%w: $inc needs a number", interfaces.ErrInvalidFilter)
	}
	if !found || cur == nil {
		return delta, nil
	}
	if classOf(cur) != classNumber {
		return nil, fmt.Errorf("%w: cannot apply $inc to a non-numeric value", interfaces.ErrInvalidFilter)
	}
	a, aInt := toInt64(cur)
	b, bInt := toInt64(delta)
	if aInt && bInt {
		sum := a + b
		_, curIs64 := cur.(int64)
		_, deltaIs64 := delta.(int64)
		if !curIs64 && !deltaIs64 && sum >= math.MinInt32 && sum <= math.MaxInt32 {
			return int32(sum), nil
		}
		return sum, nil
	}
	return toFloat(cur) + toFloat(delta), nil
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

// setPath assigns v at a dotted path, creating intermediate documents
func setPath(doc bson.D, parts []string, v interface{}) (bson.D, error) {
	for i, e := range doc {
		if e.Key != parts[0] {
			continue
		}
		if len(parts) == 1 {
			doc[i].Value = v
			return doc, nil
		}
		next, err := setIn(e.Value, parts[1:], v)
		if err != nil {
			return nil, err
		}
		doc[i].Value = next
		return doc, nil
	}
	if len(parts) == 1 {
		return append(doc, bson.E{Key: parts[0], Value: v}), nil
	}
	child, err := setPath(bson.D{}, parts[1:], v)
	if err != nil {
		return nil, err
	}
	return append(doc, bson.E{Key: parts[0], Value: child}), nil
}

func setIn(container interface{}, parts []string, v interface{}) (interface{}, error) {
	switch c := container.(type) {
	case bson.D:
		return setPath(c, parts, v)
	case bson.A:
		i, err := strconv.Atoi(parts[0])
		if err != nil || i < 0 {
			return nil, fmt.Errorf("%w: cannot create field %s in an array", interfaces.ErrInvalidFilter, parts[0])
		}
		for len(c) <= i {
			c = append(c, nil)
		}
		if len(parts) == 1 {
			c[i] = v
			return c, nil
		}
		next, err := setIn(c[i], parts[1:], v)
		if err != nil {
			return nil, err
		}
		c[i] = next
		return c, nil
	case nil:
		return setPath(bson.D{}, parts, v)
	}
	return nil, fmt.Errorf("%w: cannot create field %s in a scalar", interfaces.ErrInvalidFilter, parts[0])
}

func unsetPath(doc bson.D, parts []string) bson.D {
	for i, e := range doc {
		if e.Key != parts[0] {
			continue
		}
		if len(parts) == 1 {
			return append(doc[:i:i], doc[i+1:]...)
		}
		if sub, ok := e.Value.(bson.D); ok {
			doc[i].Value = unsetPath(sub, parts[1:])
		}
		return doc
	}
	return doc
}

func cloneDocument(doc bson.D) bson.D {
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
	}
	return v
}
