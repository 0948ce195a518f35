// Package format normalizes operation payloads into plain text that is safe
// to drop into a chat message.
package format

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Render converts an arbitrary payload into a chat-safe string. Byte slices
// are decoded as UTF-8, maps are rendered without surrounding braces,
// string slices become a bracketed comma-separated list, and plain strings
// pass through unchanged.
func Render(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case []string:
		return "[" + strings.Join(val, ", ") + "]"
	case fmt.Stringer:
		return val.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		return renderMap(rv)
	case reflect.Slice, reflect.Array:
		parts := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts = append(parts, Render(rv.Index(i).Interface()))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}

	return fmt.Sprintf("%+v", v)
}

// renderMap renders a map as "key: value" pairs without braces, keys in
// sorted order so output is stable.
func renderMap(rv reflect.Value) string {
	keys := make([]string, 0, rv.Len())
	values := make(map[string]string, rv.Len())
	for _, key := range rv.MapKeys() {
		rendered := fmt.Sprintf("%v", key.Interface())
		keys = append(keys, rendered)
		values[rendered] = Render(rv.MapIndex(key).Interface())
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+values[key])
	}
	return strings.Join(parts, ", ")
}
