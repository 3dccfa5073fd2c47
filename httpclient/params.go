package httpclient

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// EncodeParams serialises query parameters. Nested maps become key[sub]=v, slices of
// scalars key[]=v and slices of maps key[i][sub]=v. Nil values are skipped and map keys are
// emitted in sorted order.
func EncodeParams(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	var parts []string
	for _, k := range sortedKeys(params) {
		parts = appendParam(parts, escape(k), params[k])
	}
	return strings.Join(parts, "&")
}

func appendParam(parts []string, key string, value any) []string {
	if value == nil {
		return parts
	}

	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return parts
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return append(parts, key+"="+escape(string(rv.Bytes())))
		}
		for i := 0; i < rv.Len(); i++ {
			item := rv.Index(i)
			if isNil(item) {
				continue
			}
			if isComposite(item) {
				parts = appendParam(parts, key+"["+strconv.Itoa(i)+"]", item.Interface())
				continue
			}
			parts = append(parts, key+"[]="+escape(scalar(item)))
		}
		return parts
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		for _, mk := range keys {
			sub := escape(fmt.Sprint(mk.Interface()))
			parts = appendParam(parts, key+"["+sub+"]", rv.MapIndex(mk).Interface())
		}
		return parts
	default:
		return append(parts, key+"="+escape(scalar(rv)))
	}
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}

func isComposite(v reflect.Value) bool {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return true
	}
	return false
}

func scalar(v reflect.Value) string {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	return fmt.Sprint(v.Interface())
}

// escape matches encodeURIComponent closely enough for query strings: spaces become %20.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func appendQuery(rawURL, query string) string {
	if query == "" {
		return rawURL
	}
	if strings.Contains(rawURL, "?") {
		return rawURL + "&" + query
	}
	return rawURL + "?" + query
}
