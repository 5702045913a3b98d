// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package memory

import (
	"bytes"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// type classes in BSON comparison order
const (
	classMinKey = iota
	classNull
	classNumber
	classString
	classDocument
	classArray
	classBinary
	classObjectID
	classBool
	classDate
	classTimestamp
	classRegex
	classMaxKey
	classOther
)

func classOf(v interface{}) int {
	switch v.(type) {
	case primitive.MinKey:
		return classMinKey
	case nil, primitive.Null, primitive.Undefined:
		return classNull
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, primitive.Decimal128:
		return classNumber
	case string, primitive.Symbol:
		return classString
	case bson.D, bson.M, map[string]interface{}:
		return classDocument
	case bson.A, []interface{}:
		return classArray
	case primitive.Binary, []byte:
		return classBinary
	case primitive.ObjectID:
		return classObjectID
	case bool:
		return classBool
	case primitive.DateTime, time.Time:
		return classDate
	case primitive.Timestamp:
		return classTimestamp
	case primitive.Regex:
		return classRegex
	case primitive.MaxKey:
		return classMaxKey
	}
	return classOther
}

// compareValues orders two values the way the server sorts them: first by
// type class, then by value within the class.
func compareValues(a, b interface{}) int {
	ca, cb := classOf(a), classOf(b)
	if ca != cb {
		return cmpInt(ca, cb)
	}
	switch ca {
	case classNumber:
		return compareNumbers(a, b)
	case classString:
		return strings.Compare(toString(a), toString(b))
	case classDocument:
		return compareDocuments(toDocument(a), toDocument(b))
	case classArray:
		return compareArrays(toArray(a), toArray(b))
	case classBinary:
		ba, sa := toBinary(a)
		bb, sb := toBinary(b)
		if len(ba) != len(bb) {
			return cmpInt(len(ba), len(bb))
		}
		if sa != sb {
			return cmpInt(int(sa), int(sb))
		}
		return bytes.Compare(ba, bb)
	case classObjectID:
		oa, ob := a.(primitive.ObjectID), b.(primitive.ObjectID)
		return bytes.Compare(oa[:], ob[:])
	case classBool:
		return cmpInt(boolInt(a.(bool)), boolInt(b.(bool)))
	case classDate:
		return cmpInt64(toMillis(a), toMillis(b))
	case classTimestamp:
		ta, tb := a.(primitive.Timestamp), b.(primitive.Timestamp)
		if ta.T != tb.T {
			return cmpInt64(int64(ta.T), int64(tb.T))
		}
		return cmpInt64(int64(ta.I), int64(tb.I))
	case classRegex:
		ra, rb := a.(primitive.Regex), b.(primitive.Regex)
		if c := strings.Compare(ra.Pattern, rb.Pattern); c != 0 {
			return c
		}
		return strings.Compare(ra.Options, rb.Options)
	}
	return 0
}

func compareNumbers(a, b interface{}) int {
	ia, aInt := toInt64(a)
	ib, bInt := toInt64(b)
	if aInt && bInt {
		return cmpInt64(ia, ib)
	}
	fa, fb := toFloat(a), toFloat(b)
	switch {
	case math.IsNaN(fa) && math.IsNaN(fb):
		return 0
	case math.IsNaN(fa):
		return -1
	case math.IsNaN(fb):
		return 1
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	}
	return 0
}

func compareDocuments(a, b bson.D) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i].Key, b[i].Key); c != 0 {
			return c
		}
		if c := compareValues(a[i].Value, b[i].Value); c != 0 {
			return c
		}
	}
	return cmpInt(len(a), len(b))
}

func compareArrays(a, b bson.A) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareValues(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmpInt(len(a), len(b))
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	}
	return 0, false
}

func toFloat(v interface{}) float64 {
	if i, ok := toInt64(v); ok {
		return float64(i)
	}
	switch n := v.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(n.String(), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case primitive.Symbol:
		return string(s)
	}
	return ""
}

func toDocument(v interface{}) bson.D {
	switch d := v.(type) {
	case bson.D:
		return d
	case bson.M:
		return mapToD(d)
	case map[string]interface{}:
		return mapToD(d)
	}
	return nil
}

func toArray(v interface{}) bson.A {
	switch a := v.(type) {
	case bson.A:
		return a
	case []interface{}:
		return a
	}
	return nil
}

func toBinary(v interface{}) ([]byte, byte) {
	switch b := v.(type) {
	case primitive.Binary:
		return b.Data, b.Subtype
	case []byte:
		return b, 0
	}
	return nil, 0
}

func toMillis(v interface{}) int64 {
	switch t := v.(type) {
	case primitive.DateTime:
		return int64(t)
	case time.Time:
		return t.UnixMilli()
	}
	return 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func mapToD(m map[string]interface{}) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d := make(bson.D, 0, len(m))
	for _, k := range keys {
		d = append(d, bson.E{Key: k, Value: m[k]})
	}
	return d
}
