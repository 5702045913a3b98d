// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package memory

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/qolzam/docstore/internal/database/interfaces"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// matches evaluates a query document against a stored document. Top-level
// keys are conjoined.
func matches(doc bson.D, filter bson.D) (bool, error) {
	for _, e := range filter {
		ok, err := matchElement(doc, e)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchElement(doc bson.D, e bson.E) (bool, error) {
	switch e.Key {
	case "$and", "$or", "$nor":
		clauses := toArray(e.Value)
		if clauses == nil || len(clauses) == 0 {
			return false, fmt.Errorf("%w: %s needs a non-empty array", interfaces.ErrInvalidFilter, e.Key)
		}
		for _, clause := range clauses {
			sub := toDocument(clause)
			if classOf(clause) != classDocument {
				return false, fmt.Errorf("%w: %s entries must be documents", interfaces.ErrInvalidFilter, e.Key)
			}
			ok, err := matches(doc, sub)
			if err != nil {
				return false, err
			}
			switch {
			case e.Key == "$and" && !ok:
				return false, nil
			case e.Key == "$or" && ok:
				return true, nil
			case e.Key == "$nor" && ok:
				return false, nil
			}
		}
		return e.Key != "$or", nil
	}
	if strings.HasPrefix(e.Key, "$") {
		return false, fmt.Errorf("%w: unknown top-level operator %s", interfaces.ErrInvalidFilter, e.Key)
	}
	return matchField(doc, e.Key, e.Value)
}

// resolve collects the values a dotted path reaches. Arrays of documents
// fan out, numeric segments index into arrays.
func resolve(v interface{}, parts []string) []interface{} {
	if len(parts) == 0 {
		return []interface{}{v}
	}
	switch t := v.(type) {
	case bson.D:
		for _, e := range t {
			if e.Key == parts[0] {
				return resolve(e.Value, parts[1:])
			}
		}
	case bson.A:
		if i, err := strconv.Atoi(parts[0]); err == nil {
			if i >= 0 && i < len(t) {
				return resolve(t[i], parts[1:])
			}
			return nil
		}
		var out []interface{}
		for _, el := range t {
			if d, ok := el.(bson.D); ok {
				out = append(out, resolve(d, parts)...)
			}
		}
		return out
	}
	return nil
}

func lookup(doc bson.D, path string) []interface{} {
	return resolve(doc, strings.Split(path, "."))
}

func isOperatorDocument(v interface{}) bool {
	d := toDocument(v)
	return len(d) > 0 && strings.HasPrefix(d[0].Key, "$")
}

func matchField(doc bson.D, path string, cond interface{}) (bool, error) {
	values := lookup(doc, path)
	if !isOperatorDocument(cond) {
		return equalsAny(values, cond), nil
	}
	return matchOperators(values, toDocument(cond))
}

func matchOperators(values []interface{}, ops bson.D) (bool, error) {
	var options string
	for _, op := range ops {
		if op.Key == "$options" {
			options, _ = op.Value.(string)
		}
	}
	for _, op := range ops {
		ok, err := matchOperator(values, op, options)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchOperator(values []interface{}, op bson.E, options string) (bool, error) {
	switch op.Key {
	case "$eq":
		return equalsAny(values, op.Value), nil
	case "$ne":
		return !equalsAny(values, op.Value), nil
	case "$gt", "$gte", "$lt", "$lte":
		return anyElement(values, func(v interface{}) bool {
			if classOf(v) != classOf(op.Value) {
				return false
			}
			c := compareValues(v, op.Value)
			switch op.Key {
			case "$gt":
				return c > 0
			case "$gte":
				return c >= 0
			case "$lt":
				return c < 0
			}
			return c <= 0
		}), nil
	case "$in", "$nin":
		candidates := toArray(op.Value)
		if candidates == nil {
			return false, fmt.Errorf("%w: %s needs an array", interfaces.ErrInvalidFilter, op.Key)
		}
		found := false
		for _, c := range candidates {
			if equalsAny(values, c) {
				found = true
				break
			}
		}
		return found == (op.Key == "$in"), nil
	case "$exists":
		want := truthy(op.Value)
		return (len(values) > 0) == want, nil
	case "$regex":
		re, err := compileRegex(op.Value, options)
		if err != nil {
			return false, err
		}
		return anyElement(values, func(v interface{}) bool {
			s, ok := v.(string)
			return ok && re.MatchString(s)
		}), nil
	case "$options":
		return true, nil
	case "$size":
		n, ok := toInt64(op.Value)
		if !ok {
			return false, fmt.Errorf("%w: $size needs an integer", interfaces.ErrInvalidFilter)
		}
		for _, v := range values {
			if a := toArray(v); a != nil && int64(len(a)) == n {
				return true, nil
			}
		}
		return false, nil
	case "$not":
		sub := toDocument(op.Value)
		if len(sub) == 0 {
			return false, fmt.Errorf("%w: $not needs an operator document", interfaces.ErrInvalidFilter)
		}
		ok, err := matchOperators(values, sub)
		return !ok, err
	}
	return false, fmt.Errorf("%w: %s", interfaces.ErrUnsupportedOperation, op.Key)
}

// equalsAny implements equality against a resolved path: a null operand
// matches a missing field, and array values match on the whole array or any
// element.
func equalsAny(values []interface{}, want interface{}) bool {
	if len(values) == 0 {
		return classOf(want) == classNull
	}
	for _, v := range values {
		if compareValues(v, want) == 0 {
			return true
		}
		if a := toArray(v); a != nil {
			for _, el := range a {
				if compareValues(el, want) == 0 {
					return true
				}
			}
		}
	}
	return false
}

func anyElement(values []interface{}, pred func(interface{}) bool) bool {
	for _, v := range values {
		if a := toArray(v); a != nil {
			for _, el := range a {
				if pred(el) {
					return true
				}
			}
			continue
		}
		if pred(v) {
			return true
		}
	}
	return false
}

func compileRegex(v interface{}, options string) (*regexp.Regexp, error) {
	var pattern string
	switch r := v.(type) {
	case string:
		pattern = r
	case primitive.Regex:
		pattern = r.Pattern
		if options == "" {
			options = r.Options
		}
	default:
		return nil, fmt.Errorf("%w: $regex needs a string", interfaces.ErrInvalidFilter)
	}
	var flags string
	for _, o := range options {
		switch o {
		case 'i', 'm', 's':
			flags += string(o)
		}
	}
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidFilter, err)
	}
	return re, nil
}

func truthy(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case nil:
		return false
	}
	if n, ok := toInt64(v); ok {
		return n != 0
	}
	if f, ok := v.(float64); ok {
		return f != 0
	}
	return true
}
