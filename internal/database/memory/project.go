// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package memory

import (
	"fmt"
	"sort"

	"github.com/qolzam/docstore/internal/database/interfaces"
	"go.mongodb.org/mongo-driver/bson"
)

type projection struct {
	include   []string
	exclude   map[string]bool
	slices    map[string][2]int // skip, count; count < 0 means from the end
	keepID    bool
	inclusive bool
}

func parseProjection(spec bson.D) (*projection, error) {
	if len(spec) == 0 {
		return nil, nil
	}
	p := &projection{exclude: map[string]bool{}, slices: map[string][2]int{}, keepID: true}
	for _, e := range spec {
		if sub := toDocument(e.Value); sub != nil {
			if len(sub) != 1 || sub[0].Key != "$slice" {
				return nil, fmt.Errorf("%w: projection operator for %s", interfaces.ErrUnsupportedOperation, e.Key)
			}
			window, err := parseSlice(sub[0].Value)
			if err != nil {
				return nil, err
			}
			p.slices[e.Key] = window
			continue
		}
		switch {
		case e.Key == "_id":
			p.keepID = truthy(e.Value)
		case truthy(e.Value):
			p.include = append(p.include, e.Key)
			p.inclusive = true
		default:
			p.exclude[e.Key] = true
		}
	}
	if p.inclusive && len(p.exclude) > 0 {
		return nil, fmt.Errorf("%w: cannot mix inclusion and exclusion", interfaces.ErrInvalidFilter)
	}
	return p, nil
}

func parseSlice(v interface{}) ([2]int, error) {
	if n, ok := toInt64(v); ok {
		return [2]int{0, int(n)}, nil
	}
	if a := toArray(v); len(a) == 2 {
		skip, ok1 := toInt64(a[0])
		limit, ok2 := toInt64(a[1])
		if ok1 && ok2 && limit > 0 {
			return [2]int{int(skip), int(limit)}, nil
		}
	}
	return [2]int{}, fmt.Errorf("%w: invalid $slice", interfaces.ErrInvalidFilter)
}

func (p *projection) apply(doc bson.D) bson.D {
	if p == nil {
		return doc
	}
	var out bson.D
	if p.inclusive {
		for _, e := range doc {
			if e.Key == "_id" && p.keepID {
				out = append(out, e)
			}
		}
		for _, path := range p.include {
			if path == "_id" {
				continue
			}
			if values := lookup(doc, path); len(values) > 0 {
				out, _ = setPath(out, splitPath(path), cloneValue(values[0]))
			}
		}
		for path := range p.slices {
			if len(lookup(out, path)) > 0 {
				continue
			}
			if values := lookup(doc, path); len(values) > 0 {
				out, _ = setPath(out, splitPath(path), cloneValue(values[0]))
			}
		}
	} else {
		for _, e := range doc {
			if p.exclude[e.Key] || (e.Key == "_id" && !p.keepID) {
				continue
			}
			out = append(out, bson.E{Key: e.Key, Value: cloneValue(e.Value)})
		}
	}
	for path, window := range p.slices {
		values := lookup(out, path)
		if len(values) == 0 {
			continue
		}
		if arr := toArray(values[0]); arr != nil {
			out, _ = setPath(out, splitPath(path), sliceArray(arr, window))
		}
	}
	return out
}

// sliceArray implements $slice: n keeps the first n elements, -n the last n,
// [skip, n] a window.
func sliceArray(arr bson.A, window [2]int) bson.A {
	skip, count := window[0], window[1]
	if skip == 0 && count < 0 {
		start := len(arr) + count
		if start < 0 {
			start = 0
		}
		return append(bson.A{}, arr[start:]...)
	}
	if skip < 0 {
		skip = len(arr) + skip
		if skip < 0 {
			skip = 0
		}
	}
	if skip > len(arr) {
		skip = len(arr)
	}
	end := skip + count
	if end > len(arr) || count < 0 {
		end = len(arr)
	}
	return append(bson.A{}, arr[skip:end]...)
}

type sortKey struct {
	path string
	dir  int
}

func parseSort(spec bson.D) ([]sortKey, error) {
	keys := make([]sortKey, 0, len(spec))
	for _, e := range spec {
		n, ok := toInt64(e.Value)
		if !ok {
			if f, isFloat := e.Value.(float64); isFloat {
				n, ok = int64(f), true
			}
		}
		if !ok || (n != 1 && n != -1) {
			return nil, fmt.Errorf("%w: sort direction for %s must be 1 or -1", interfaces.ErrInvalidFilter, e.Key)
		}
		keys = append(keys, sortKey{path: e.Key, dir: int(n)})
	}
	return keys, nil
}

// sortValue picks the value a document sorts by: the smallest array element
// ascending, the largest descending
func sortValue(doc bson.D, key sortKey) interface{} {
	var candidates []interface{}
	for _, v := range lookup(doc, key.path) {
		if a := toArray(v); a != nil {
			candidates = append(candidates, a...)
			continue
		}
		candidates = append(candidates, v)
	}
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if cmp := compareValues(c, best); cmp*key.dir < 0 {
			best = c
		}
	}
	return best
}

func sortDocuments(docs []bson.D, keys []sortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, k := range keys {
			if c := compareValues(sortValue(docs[i], k), sortValue(docs[j], k)); c != 0 {
				return c*k.dir < 0
			}
		}
		return false
	})
}
