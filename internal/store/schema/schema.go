// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package schema builds the accessor table of a stored type once, at
// registration, from its bson struct tags.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// IDField is the document key of the identity field.
const IDField = "_id"

var (
	// ErrSchema matches every *FieldError.
	ErrSchema = errors.New("schema violation")

	ErrUnknownField    = errors.New("undeclared field")
	ErrNoIdentityField = errors.New("type has no _id field")
	ErrMissingIdentity = errors.New("no identity or unique field is set")
	ErrNotStruct       = errors.New("stored type must be a struct")
)

// FieldError reports a schema violation for a type and field.
type FieldError struct {
	Type  string
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("%s.%s: %v", e.Type, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func (e *FieldError) Is(target error) bool { return target == ErrSchema }

// Field is one accessor table entry.
type Field struct {
	// Name is the document key.
	Name string
	// Type is the declared Go type.
	Type  reflect.Type
	index []int
}

// Get reads the field from a struct value.
func (f *Field) Get(v reflect.Value) interface{} {
	return reflect.Indirect(v).FieldByIndex(f.index).Interface()
}

// IsZero reports whether the field holds its zero value.
func (f *Field) IsZero(v reflect.Value) bool {
	return reflect.Indirect(v).FieldByIndex(f.index).IsZero()
}

// Set assigns x to the field of an addressable struct value.
func (f *Field) Set(v reflect.Value, x interface{}) error {
	dst := reflect.Indirect(v).FieldByIndex(f.index)
	if !dst.CanSet() {
		return fmt.Errorf("field %s is not settable", f.Name)
	}
	if x == nil {
		dst.Set(reflect.Zero(f.Type))
		return nil
	}
	src := reflect.ValueOf(x)
	switch {
	case src.Type().AssignableTo(f.Type):
		dst.Set(src)
	case src.Type().ConvertibleTo(f.Type):
		dst.Set(src.Convert(f.Type))
	default:
		return fmt.Errorf("cannot assign %T to field %s of type %s", x, f.Name, f.Type)
	}
	return nil
}

// Schema is the accessor table of one stored type.
type Schema struct {
	Type   reflect.Type
	ID     *Field
	fields map[string]*Field
	order  []*Field

	// open types carry an inline map and accept any field name
	open bool

	mu     sync.RWMutex
	unique []*Field
}

// New builds the schema of struct type t.
func New(t reflect.Type) (*Schema, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, &FieldError{Type: t.String(), Err: ErrNotStruct}
	}
	s := &Schema{Type: t, fields: make(map[string]*Field)}
	s.collect(t, nil)
	id, ok := s.fields[IDField]
	if !ok {
		return nil, &FieldError{Type: t.String(), Field: IDField, Err: ErrNoIdentityField}
	}
	s.ID = id
	return s, nil
}

// Of builds the schema of T.
func Of[T any]() (*Schema, error) {
	return New(reflect.TypeOf((*T)(nil)).Elem())
}

func (s *Schema) collect(t reflect.Type, prefix []int) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, opts := parseTag(sf)
		if name == "-" {
			continue
		}
		index := append(append([]int{}, prefix...), i)
		if opts["inline"] {
			ft := sf.Type
			for ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			switch ft.Kind() {
			case reflect.Struct:
				s.collect(ft, index)
			case reflect.Map:
				s.open = true
			}
			continue
		}
		if _, dup := s.fields[name]; dup {
			continue
		}
		f := &Field{Name: name, Type: sf.Type, index: index}
		s.fields[name] = f
		s.order = append(s.order, f)
	}
}

// parseTag follows the mongo driver's default struct codec: the key is the
// tag name or, absent one, the lowercased field name.
func parseTag(sf reflect.StructField) (string, map[string]bool) {
	tag, ok := sf.Tag.Lookup("bson")
	if !ok && !strings.Contains(string(sf.Tag), ":") {
		tag = string(sf.Tag)
	}
	parts := strings.Split(tag, ",")
	opts := make(map[string]bool, len(parts))
	for _, p := range parts[1:] {
		opts[p] = true
	}
	name := parts[0]
	if name == "" {
		name = strings.ToLower(sf.Name)
	}
	return name, opts
}

// Name returns the Go name of the stored type.
func (s *Schema) Name() string { return s.Type.String() }

// Fields lists declared fields in declaration order.
func (s *Schema) Fields() []*Field { return s.order }

// Field returns the top-level field named by the document key.
func (s *Schema) Field(name string) (*Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Lookup resolves the declared type of a dotted path such as
// "address.city" or "points.0". It returns nil when the path does not reach
// a declared type.
func (s *Schema) Lookup(path string) reflect.Type {
	if s == nil {
		return nil
	}
	parts := strings.Split(path, ".")
	f, ok := s.fields[parts[0]]
	if !ok {
		return nil
	}
	t := f.Type
	for _, part := range parts[1:] {
		for t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		switch t.Kind() {
		case reflect.Slice, reflect.Array:
			t = t.Elem()
			if isIndex(part) {
				continue
			}
			for t.Kind() == reflect.Ptr {
				t = t.Elem()
			}
			if t.Kind() != reflect.Struct {
				return nil
			}
			fallthrough
		case reflect.Struct:
			next, ok := fieldOf(t, part)
			if !ok {
				return nil
			}
			t = next
		case reflect.Map:
			t = t.Elem()
		default:
			return nil
		}
	}
	return t
}

func fieldOf(t reflect.Type, name string) (reflect.Type, bool) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		if n, _ := parseTag(sf); n == name {
			return sf.Type, true
		}
	}
	return nil, false
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Validate fails when the first segment of path is not a declared field.
func (s *Schema) Validate(path string) error {
	if s.open {
		return nil
	}
	top := path
	if i := strings.IndexByte(path, '.'); i >= 0 {
		top = path[:i]
	}
	if _, ok := s.fields[top]; !ok {
		return &FieldError{Type: s.Name(), Field: path, Err: ErrUnknownField}
	}
	return nil
}

// MarkUnique registers fields as alternate identities. Registration order is
// kept and decides which unique field identifies an example.
func (s *Schema) MarkUnique(names ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		f, ok := s.fields[name]
		if !ok {
			return &FieldError{Type: s.Name(), Field: name, Err: ErrUnknownField}
		}
		known := false
		for _, u := range s.unique {
			known = known || u == f
		}
		if !known {
			s.unique = append(s.unique, f)
		}
	}
	return nil
}

// Unique lists the registered unique fields.
func (s *Schema) Unique() []*Field {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Field(nil), s.unique...)
}

// Identity returns the equality predicate that identifies example: its _id
// when set, else its first populated unique field.
func (s *Schema) Identity(example interface{}) (bson.D, error) {
	v := reflect.ValueOf(example)
	if !v.IsValid() || (v.Kind() == reflect.Ptr && v.IsNil()) {
		return nil, &FieldError{Type: s.Name(), Err: ErrMissingIdentity}
	}
	if reflect.Indirect(v).Type() != s.Type {
		return nil, fmt.Errorf("example of type %s for schema %s", reflect.Indirect(v).Type(), s.Name())
	}
	if !s.ID.IsZero(v) {
		return bson.D{{Key: IDField, Value: s.ID.Get(v)}}, nil
	}
	for _, f := range s.Unique() {
		if !f.IsZero(v) {
			return bson.D{{Key: f.Name, Value: f.Get(v)}}, nil
		}
	}
	return nil, &FieldError{Type: s.Name(), Err: ErrMissingIdentity}
}
