package store

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Lookup resolves a dotted field path inside a document
func Lookup(doc Document, field string) (interface{}, bool) {
	var current interface{} = map[string]interface{}(doc)
	for _, part := range strings.Split(field, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Matches reports whether doc satisfies every filter of q
func Matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		if !matchFilter(doc, f) {
			return false
		}
	}
	return true
}

// Apply filters, sorts and pages snapshots in memory
func Apply(snapshots []*Snapshot, q Query) []*Snapshot {
	out := make([]*Snapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if Matches(s.Data, q.Filters) {
			out = append(out, s)
		}
	}

	if len(q.OrderBy) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.OrderBy {
				a, _ := Lookup(out[i].Data, o.Field)
				b, _ := Lookup(out[j].Data, o.Field)
				c := Compare(a, b)
				if c == 0 {
					continue
				}
				if o.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return []*Snapshot{}
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out
}

func matchFilter(doc Document, f Filter) bool {
	value, found := Lookup(doc, f.Field)

	switch f.Operator {
	case OpEqual:
		return found && Compare(value, f.Value) == 0
	case OpNotEqual:
		return found && Compare(value, f.Value) != 0
	case OpLessThan:
		return found && orderable(value, f.Value) && Compare(value, f.Value) < 0
	case OpLessThanOrEqual:
		return found && orderable(value, f.Value) && Compare(value, f.Value) <= 0
	case OpGreaterThan:
		return found && orderable(value, f.Value) && Compare(value, f.Value) > 0
	case OpGreaterThanOrEqual:
		return found && orderable(value, f.Value) && Compare(value, f.Value) >= 0
	case OpIn:
		return found && containsValue(toSlice(f.Value), value)
	case OpNotIn:
		return found && !containsValue(toSlice(f.Value), value)
	case OpArrayContains:
		return found && containsValue(toSlice(value), f.Value)
	case OpArrayContainsAny:
		if !found {
			return false
		}
		items := toSlice(value)
		for _, candidate := range toSlice(f.Value) {
			if containsValue(items, candidate) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Compare orders two values. Numbers compare numerically across Go numeric
// types, times chronologically and strings lexically; mismatched kinds fall
// back to comparing their type names.
func Compare(a, b interface{}) int {
	a, b = normalize(a), normalize(b)
	if a != nil && b == nil {
		return 1
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			default:
				return 1
			}
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case nil:
		if b == nil {
			return 0
		}
		return -1
	}

	if reflect.DeepEqual(a, b) {
		return 0
	}
	return strings.Compare(fmt.Sprintf("%T", a), fmt.Sprintf("%T", b))
}

func orderable(a, b interface{}) bool {
	a, b = normalize(a), normalize(b)
	if _, ok := toFloat(a); ok {
		_, ok = toFloat(b)
		return ok
	}
	return reflect.TypeOf(a) == reflect.TypeOf(b)
}

// normalize converts driver time types such as BSON datetimes to time.Time
func normalize(v interface{}) interface{} {
	if t, ok := v.(interface{ Time() time.Time }); ok {
		return t.Time()
	}
	return v
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func toSlice(v interface{}) []interface{} {
	if v == nil {
		return nil
	}
	if s, ok := v.([]interface{}); ok {
		return s
	}
	if a, ok := primitiveArray(v); ok {
		return a
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func containsValue(items []interface{}, v interface{}) bool {
	for _, item := range items {
		if Compare(item, v) == 0 {
			return true
		}
	}
	return false
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Document:
		return m, true
	default:
		if pm, ok := primitiveMap(v); ok {
			return pm, true
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out, true
	}
}
