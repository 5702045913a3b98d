// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package store

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/qolzam/docstore/internal/store/coerce"
	"github.com/qolzam/docstore/internal/store/filter"
	"github.com/qolzam/docstore/internal/store/schema"
	"go.mongodb.org/mongo-driver/bson"
)

// Compile translates a filter tree into a query document. Literals are
// coerced to the types s declares; a nil schema leaves them loosely typed.
func Compile(expr filter.Expr, s *schema.Schema) (bson.D, error) {
	switch e := expr.(type) {
	case *filter.And:
		if len(e.Children) == 0 {
			return bson.D{}, nil
		}
		return compound("$and", e.Children, s)
	case *filter.Or:
		if len(e.Children) == 0 {
			return bson.D{{Key: "$nor", Value: bson.A{bson.D{}}}}, nil
		}
		return compound("$or", e.Children, s)
	case *filter.Not:
		if len(e.Children) == 0 {
			return bson.D{}, nil
		}
		return compound("$nor", e.Children, s)
	case *filter.Comparison:
		return bson.D{{Key: e.Field, Value: constraint(e, s)}}, nil
	}
	return nil, fmt.Errorf("unexpected filter node %T", expr)
}

func compound(op string, children []filter.Expr, s *schema.Schema) (bson.D, error) {
	clauses := make(bson.A, 0, len(children))
	for _, child := range children {
		doc, err := Compile(child, s)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, doc)
	}
	return bson.D{{Key: op, Value: clauses}}, nil
}

var orderedOps = map[filter.Operator]string{
	filter.Greater:        "$gt",
	filter.GreaterOrEqual: "$gte",
	filter.Less:           "$lt",
	filter.LessOrEqual:    "$lte",
}

func constraint(c *filter.Comparison, s *schema.Schema) interface{} {
	switch {
	case c.Op == filter.Exists:
		return bson.D{{Key: "$exists", Value: true}}
	case c.Op == filter.Matches && c.Fold:
		return bson.D{{Key: "$regex", Value: c.Value}, {Key: "$options", Value: "i"}}
	case c.Op == filter.Matches:
		quoted := make([]string, len(c.Pattern))
		for i, seg := range c.Pattern {
			quoted[i] = regexp.QuoteMeta(seg)
		}
		return bson.D{{Key: "$regex", Value: "^" + strings.Join(quoted, ".*")}}
	}

	value := literal(c, s)
	if op, ok := orderedOps[c.Op]; ok {
		return bson.D{{Key: op, Value: value}}
	}
	return value
}

func literal(c *filter.Comparison, s *schema.Schema) interface{} {
	switch {
	case c.Binary != nil:
		return c.Binary
	case c.Op == filter.Equal && c.Value == "[]":
		return bson.A{}
	}
	return coerce.Literal(s.Lookup(c.Field), c.Value).Value
}
