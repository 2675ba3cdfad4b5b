package cache

import (
	"encoding/json"
	"fmt"
	"path"
	"reflect"
	"sort"
	"strings"
	"time"
)

// KeySeparator delimits cache key segments. Keys look like
// "producer:42:shops" or "products:category=Légumes|search=".
const KeySeparator = ":"

// filterSeparator delimits canonical filter pairs inside a query key.
const filterSeparator = "|"

// KeyBuilder produces deterministic cache keys. Two callers describing the
// same logical query must obtain the same key, so filter serialization is
// canonical: field order is sorted, never insertion order.
type KeyBuilder interface {
	// EntityKey joins literal segments: EntityKey("producer", id, "shops").
	EntityKey(parts ...string) string
	// QueryKey builds a key from a fixed prefix plus a canonical
	// serialization of the filter parameters.
	QueryKey(prefix string, filters map[string]any) string
}

// MatchKey reports whether a key matches a glob pattern such as
// "producer:42:*" or "shops:*s-17*". Malformed patterns match nothing.
func MatchKey(pattern, key string) bool {
	ok, err := path.Match(pattern, key)
	return err == nil && ok
}

// defaultKeyBuilder implements KeyBuilder with reflection-assisted value
// serialization, falling back to JSON for complex types while keeping the
// output deterministic across runs.
type defaultKeyBuilder struct{}

// NewKeyBuilder creates the default key builder.
func NewKeyBuilder() KeyBuilder {
	return &defaultKeyBuilder{}
}

func (b *defaultKeyBuilder) EntityKey(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}

func (b *defaultKeyBuilder) QueryKey(prefix string, filters map[string]any) string {
	if len(filters) == 0 {
		return prefix
	}

	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+b.serializeValue(filters[name]))
	}

	return prefix + KeySeparator + strings.Join(pairs, filterSeparator)
}

// serializeValue renders a single filter value deterministically.
func (b *defaultKeyBuilder) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	switch tv := v.(type) {
	case time.Time:
		return tv.UTC().Format(time.RFC3339)
	case *time.Time:
		if tv == nil {
			return "nil"
		}
		return tv.UTC().Format(time.RFC3339)
	}

	rv := reflect.ValueOf(v)
	rt := reflect.TypeOf(v)

	switch rt.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		return b.serializeValue(rv.Elem().Interface())

	case reflect.Slice, reflect.Array:
		if rt.Kind() == reflect.Slice && rv.IsNil() {
			return "nil"
		}
		parts := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts[i] = b.serializeValue(rv.Index(i).Interface())
		}
		return "[" + strings.Join(parts, ",") + "]"

	case reflect.Map:
		if rv.IsNil() {
			return "nil"
		}
		return b.serializeMap(rv)

	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return fmt.Sprintf("%v", v)
	}

	return b.jsonFallback(v)
}

// serializeMap renders nested maps with sorted keys for determinism.
func (b *defaultKeyBuilder) serializeMap(rv reflect.Value) string {
	keys := make([]string, 0, rv.Len())
	byKey := make(map[string]reflect.Value, rv.Len())
	for _, k := range rv.MapKeys() {
		ks := b.serializeValue(k.Interface())
		keys = append(keys, ks)
		byKey[ks] = k
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, ks := range keys {
		pairs = append(pairs, ks+"="+b.serializeValue(rv.MapIndex(byKey[ks]).Interface()))
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

// jsonFallback serializes complex values as JSON. Marshal failure falls back
// to type information rather than panicking; stability beats perfection here.
func (b *defaultKeyBuilder) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "type:" + reflect.TypeOf(v).String()
	}
	return string(data)
}
