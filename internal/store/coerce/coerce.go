// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package coerce converts filter literals to the native representation of
// the field they constrain.
package coerce

import (
	"encoding"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/qolzam/docstore/internal/pkg/log"
	"github.com/qolzam/docstore/internal/store/codec"
	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/bson"
)

// Outcome tells whether a literal was converted or passed through as text.
type Outcome int

const (
	Coerced Outcome = iota
	RawFallback
)

func (o Outcome) String() string {
	if o == RawFallback {
		return "raw-fallback"
	}
	return "coerced"
}

// Result is the coerced value. Cause is set on RawFallback when a conversion
// was attempted and failed.
type Result struct {
	Value   interface{}
	Outcome Outcome
	Cause   error
}

var (
	hexPattern    = regexp.MustCompile(`^(?:[0-9a-fA-F][0-9a-fA-F])+$`)
	base64Pattern = regexp.MustCompile(`^(?:[A-Za-z0-9+/]{4})*(?:[A-Za-z0-9+/]{2}==|[A-Za-z0-9+/]{3}=)$`)

	bytesType           = reflect.TypeOf([]byte(nil))
	timeType            = reflect.TypeOf(time.Time{})
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// Literal converts filter text to a value of the declared type. A nil
// declared type means the field is unknown: only null, true and false are
// recognized. Conversion failures fall back to the raw text.
func Literal(declared reflect.Type, text string) Result {
	r := convert(declared, text)
	if r.Outcome == RawFallback && r.Cause != nil {
		log.Debug("coerce %q to %s: falling back to text: %v", text, declared, r.Cause)
	}
	v, err := normalize(r.Value)
	if err != nil {
		return Result{Value: text, Outcome: RawFallback, Cause: err}
	}
	r.Value = v
	return r
}

// Value converts a Go value supplied by a caller, e.g. an element of an
// "in" list, to the declared type. Strings go through Literal.
func Value(declared reflect.Type, v interface{}) Result {
	if s, ok := v.(string); ok {
		return Literal(declared, s)
	}
	if declared != nil && v != nil && !reflect.TypeOf(v).AssignableTo(declared) {
		if converted, err := codec.Convert(declared, v); err == nil {
			v = converted
		}
	}
	n, err := normalize(v)
	if err != nil {
		return Result{Value: v, Outcome: RawFallback, Cause: err}
	}
	return Result{Value: n, Outcome: Coerced}
}

// Elem is the type a single predicate position holds: the element type for
// sequences other than byte slices.
func Elem(t reflect.Type) reflect.Type {
	if t == nil {
		return nil
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) && t.Elem().Kind() != reflect.Uint8 {
		return t.Elem()
	}
	return t
}

// normalize passes a value through the document codec. A predicate
// constrains one element position, so only the first element of a non-empty
// sequence is kept.
func normalize(v interface{}) (interface{}, error) {
	n, err := codec.Value(v)
	if err != nil {
		return nil, err
	}
	if a, ok := n.(bson.A); ok && len(a) > 0 {
		return a[0], nil
	}
	return n, nil
}

func convert(declared reflect.Type, text string) Result {
	switch text {
	case "null":
		return Result{Value: nil, Outcome: Coerced}
	case "true", "false":
		if declared == nil || declared.Kind() == reflect.Bool {
			return Result{Value: text == "true", Outcome: Coerced}
		}
	}
	if declared == nil {
		return Result{Value: text, Outcome: RawFallback}
	}

	for declared.Kind() == reflect.Ptr {
		declared = declared.Elem()
	}

	if isBytes(declared) {
		b, ok := Binary(text)
		if !ok {
			return Result{Value: text, Outcome: RawFallback}
		}
		if declared.Kind() == reflect.Array {
			if len(b) != declared.Len() {
				return Result{Value: text, Outcome: RawFallback, Cause: fmt.Errorf("%d bytes for %s", len(b), declared)}
			}
			arr := reflect.New(declared).Elem()
			reflect.Copy(arr, reflect.ValueOf(b))
			return Result{Value: arr.Interface(), Outcome: Coerced}
		}
		return Result{Value: b, Outcome: Coerced}
	}

	v, err := To(declared, text)
	if err != nil {
		return Result{Value: text, Outcome: RawFallback, Cause: err}
	}
	return Result{Value: v, Outcome: Coerced}
}

// Binary detects a hex or base64 encoded byte sequence, hex first.
func Binary(text string) ([]byte, bool) {
	if hexPattern.MatchString(text) {
		if b, err := hex.DecodeString(text); err == nil {
			return b, true
		}
	}
	if text != "" && base64Pattern.MatchString(text) {
		if b, err := base64.StdEncoding.DecodeString(text); err == nil {
			return b, true
		}
	}
	return nil, false
}

func isBytes(t reflect.Type) bool {
	if t == bytesType {
		return true
	}
	if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
		return true
	}
	// named arrays such as ObjectID and UUID parse their own text form
	return t.Kind() == reflect.Array && t.Elem().Kind() == reflect.Uint8 && !reflect.PointerTo(t).Implements(textUnmarshalerType)
}

// decimal strips leading zeros from a number literal so it is never read as
// octal. Literals with a 0x, 0o or 0b prefix are rejected.
func decimal(text string) (string, error) {
	s := strings.TrimSpace(text)
	sign := ""
	if s != "" && (s[0] == '-' || s[0] == '+') {
		sign, s = s[:1], s[1:]
	}
	if len(s) > 1 && s[0] == '0' && strings.IndexByte("xXoObB", s[1]) >= 0 {
		return "", fmt.Errorf("%q is not a decimal number", text)
	}
	digits := strings.TrimLeft(s, "0")
	if digits == "" && s != "" {
		digits = "0"
	}
	return sign + digits, nil
}

// To converts text to a value of type t.
func To(t reflect.Type, text string) (interface{}, error) {
	if t == timeType {
		return cast.ToTimeE(text)
	}
	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		ptr := reflect.New(t)
		if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(text)); err != nil {
			return nil, err
		}
		return ptr.Elem().Interface(), nil
	}

	var (
		v   interface{}
		err error
	)
	switch t.Kind() {
	case reflect.String:
		v = text
	case reflect.Bool:
		v, err = cast.ToBoolE(text)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if t == reflect.TypeOf(time.Duration(0)) {
			v, err = cast.ToDurationE(text)
			break
		}
		var d string
		if d, err = decimal(text); err == nil {
			v, err = cast.ToInt64E(d)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var d string
		if d, err = decimal(text); err == nil {
			v, err = cast.ToUint64E(d)
		}
	case reflect.Float32, reflect.Float64:
		var d string
		if d, err = decimal(text); err == nil {
			v, err = cast.ToFloat64E(d)
		}
	case reflect.Slice, reflect.Array:
		var elem interface{}
		if elem, err = To(t.Elem(), text); err != nil {
			return nil, err
		}
		ev := reflect.ValueOf(elem)
		if !ev.Type().AssignableTo(t.Elem()) {
			return nil, fmt.Errorf("cannot convert %q to %s", text, t)
		}
		if t.Kind() == reflect.Array {
			if t.Len() == 0 {
				return nil, fmt.Errorf("cannot convert %q to %s", text, t)
			}
			arr := reflect.New(t).Elem()
			arr.Index(0).Set(ev)
			return arr.Interface(), nil
		}
		s := reflect.MakeSlice(t, 1, 1)
		s.Index(0).Set(ev)
		return s.Interface(), nil
	case reflect.Interface:
		return text, nil
	case reflect.Ptr:
		return To(t.Elem(), text)
	default:
		return nil, fmt.Errorf("cannot convert %q to %s", text, t)
	}
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(v)
	if !rv.Type().ConvertibleTo(t) {
		return nil, fmt.Errorf("cannot convert %q to %s", text, t)
	}
	out := rv.Convert(t)
	if out.CanInt() && out.Int() != rv.Convert(reflect.TypeOf(int64(0))).Int() {
		return nil, fmt.Errorf("%q overflows %s", text, t)
	}
	if out.CanUint() && out.Uint() != rv.Convert(reflect.TypeOf(uint64(0))).Uint() {
		return nil, fmt.Errorf("%q overflows %s", text, t)
	}
	return out.Interface(), nil
}
