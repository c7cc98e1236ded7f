// Package serializer converts a run mutation into a compact
// multipart-ready representation (spec.md §4.3): it encodes arbitrary
// user-supplied inputs/outputs/events into deterministic JSON and splits a
// run payload into a header plus its detachable fields.
package serializer

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Dumper lets a user type control its own serialized form, mirroring the
// "anything exposing a model-dump capability" rule in spec.md §4.3 (the
// Python SDK's pydantic .model_dump()).
type Dumper interface {
	LangSmithDump() map[string]any
}

// Marshal encodes v as deterministic JSON, applying the per-kind rules in
// spec.md §4.3: timestamps as ISO-8601 UTC, UUIDs as canonical strings,
// []byte as base64 (encoding/json's native behavior, left untouched),
// errors as {error, message}, Dumpers via their dumped map, and anything
// else exposing path/network/regex-shaped String() methods via that
// string form. Cyclic graphs are broken with "<cycle>" rather than
// recursing forever.
func Marshal(v any) ([]byte, error) {
	transformed := transform(v, map[uintptr]bool{})
	b, err := json.Marshal(transformed)
	if err == nil {
		return b, nil
	}
	// Fallback path: an encoder error reporting invalid UTF-8 is retried
	// with invalid sequences stripped from every string in the tree,
	// rather than failing the whole operation.
	if isUTF8Error(err) {
		return marshalLossy(transformed)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnserializable, err)
}

// ErrUnserializable marks a value that could not be encoded even after the
// fallback path (spec.md §7 Serialization errors — never fatal to the
// pipeline; callers log and elide the field).
var ErrUnserializable = errors.New("value could not be serialized")

func isUTF8Error(err error) bool {
	// encoding/json itself does not fail on invalid UTF-8 in a string (it
	// substitutes U+FFFD), which is why transform elides such bytes before
	// encoding; this only matches an error whose message reports invalid
	// UTF-8, the most portable signal available without reaching into
	// unexported stdlib types.
	return strings.Contains(err.Error(), "invalid UTF-8")
}

func marshalLossy(v any) ([]byte, error) {
	cleaned := stripInvalidStrings(v)
	return json.Marshal(cleaned)
}

func stripInvalidStrings(v any) any {
	switch val := v.(type) {
	case string:
		if utf8.ValidString(val) {
			return val
		}
		return strings.ToValidUTF8(val, "")
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = stripInvalidStrings(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = stripInvalidStrings(vv)
		}
		return out
	default:
		return v
	}
}

var stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()

// transform walks v, substituting the per-kind encodings spec.md §4.3
// requires, and returns a value safe to hand to encoding/json. seen tracks
// the addresses of maps/slices/pointers already on the current path so a
// self-referential structure is broken with "<cycle>" instead of
// recursing forever.
func transform(v any, seen map[uintptr]bool) any {
	if v == nil {
		return nil
	}

	switch val := v.(type) {
	case string:
		// Unpaired UTF-16 surrogate halves (possible when data crossed a
		// language boundary upstream) arrive as invalid UTF-8; elide them
		// instead of letting encoding/json turn them into U+FFFD.
		if utf8.ValidString(val) {
			return val
		}
		return strings.ToValidUTF8(val, "")
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case uuid.UUID:
		return val.String()
	case *uuid.UUID:
		if val == nil {
			return nil
		}
		return val.String()
	case []byte:
		return val // encoding/json base64-encodes []byte natively
	case error:
		return map[string]any{"error": errorTypeName(val), "message": val.Error()}
	case Dumper:
		return transform(val.LangSmithDump(), seen)
	case *net.IPNet:
		if val == nil {
			return nil
		}
		return val.String()
	case net.IP:
		return val.String()
	case *url.URL:
		if val == nil {
			return nil
		}
		return val.String()
	case *regexp.Regexp:
		if val == nil {
			return nil
		}
		return val.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		addr := rv.Pointer()
		if seen[addr] {
			return "<cycle>"
		}
		seen[addr] = true
		out := transform(rv.Elem().Interface(), seen)
		delete(seen, addr)
		return out

	case reflect.Map:
		addr := rv.Pointer()
		if addr != 0 {
			if seen[addr] {
				return "<cycle>"
			}
			seen[addr] = true
			defer delete(seen, addr)
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = transform(iter.Value().Interface(), seen)
		}
		return out

	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			break // byte slice, handled by the []byte case above or left to json
		}
		if rv.Kind() == reflect.Slice {
			addr := rv.Pointer()
			if addr != 0 {
				if seen[addr] {
					return "<cycle>"
				}
				seen[addr] = true
				defer delete(seen, addr)
			}
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = transform(rv.Index(i).Interface(), seen)
		}
		return out

	case reflect.Struct:
		// Struct implementing Stringer but not a recognized container:
		// path/network/regex-shaped values fall back to their string form
		// per spec.md §4.3.
		if rv.Type().Implements(stringerType) {
			return rv.Interface().(fmt.Stringer).String()
		}
		// Otherwise treat it as a plain record (the "data-class-like
		// record" rule): its exported fields become a map keyed by their
		// json tag names, each recursively transformed.
		return transformStructFields(rv, seen)
	}

	return v
}

func errorTypeName(err error) string {
	t := reflect.TypeOf(err)
	if t == nil {
		return "error"
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// transformStructFields walks exported fields via reflection so embedded
// exotic values (time.Time, uuid.UUID, nested structs) get the same
// treatment as map/slice elements. Field names come from the json tag's
// name part (or the Go field name); `json:"-"` fields are skipped. Tag
// options such as omitempty are not applied: an empty field is still
// emitted, as null or its zero value.
func transformStructFields(rv reflect.Value, seen map[uintptr]bool) any {
	rt := rv.Type()
	out := make(map[string]any, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if field.PkgPath != "" { // unexported
			continue
		}
		name := field.Name
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		if tag != "" {
			if idx := strings.IndexByte(tag, ','); idx >= 0 {
				if tag[:idx] != "" {
					name = tag[:idx]
				}
			} else {
				name = tag
			}
		}
		out[name] = transform(rv.Field(i).Interface(), seen)
	}
	return out
}
