package hasher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// NormalizeString applies NFC Unicode normalization.
func NormalizeString(s string) string {
	return norm.NFC.String(s)
}

type canonicalizer struct {
	volatile map[string]struct{}
}

func (c *canonicalizer) value(path string, v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case string:
		return canonicalString(NormalizeString(val)), nil
	case json.Number:
		return canonicalNumber(path, val)
	case float64:
		return canonicalFloat(path, val)
	case float32:
		return canonicalFloat(path, float64(val))
	case int:
		return []byte(strconv.FormatInt(int64(val), 10)), nil
	case int8:
		return []byte(strconv.FormatInt(int64(val), 10)), nil
	case int16:
		return []byte(strconv.FormatInt(int64(val), 10)), nil
	case int32:
		return []byte(strconv.FormatInt(int64(val), 10)), nil
	case int64:
		return []byte(strconv.FormatInt(val, 10)), nil
	case uint:
		return []byte(strconv.FormatUint(uint64(val), 10)), nil
	case uint8:
		return []byte(strconv.FormatUint(uint64(val), 10)), nil
	case uint16:
		return []byte(strconv.FormatUint(uint64(val), 10)), nil
	case uint32:
		return []byte(strconv.FormatUint(uint64(val), 10)), nil
	case uint64:
		return []byte(strconv.FormatUint(val, 10)), nil
	case time.Time:
		return canonicalString(val.UTC().Format(time.RFC3339Nano)), nil
	case map[string]any:
		return c.object(path, val)
	case []any:
		return c.array(path, val)
	case []string:
		items := make([]any, len(val))
		for i, s := range val {
			items[i] = s
		}
		return c.array(path, items)
	}
	return c.reflectValue(path, v)
}

// reflectValue handles typed maps, slices and structs by round-tripping through
// encoding/json, after rejecting kinds JSON cannot represent.
func (c *canonicalizer) reflectValue(path string, v any) ([]byte, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return nil, &SerializationError{Path: path, Reason: fmt.Sprintf("unsupported type %T", v)}
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return []byte("null"), nil
		}
		return c.value(path, rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, &SerializationError{Path: path, Reason: fmt.Sprintf("map key type %s is not a string", rv.Type().Key())}
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return c.object(path, out)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []byte("null"), nil
		}
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return c.array(path, items)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &SerializationError{Path: path, Reason: err.Error()}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, &SerializationError{Path: path, Reason: err.Error()}
	}
	return c.value(path, generic)
}

func (c *canonicalizer) object(path string, m map[string]any) ([]byte, error) {
	normalized := make(map[string]any, len(m))
	for k, v := range m {
		if _, skip := c.volatile[k]; skip {
			continue
		}
		nk := NormalizeString(k)
		if _, dup := normalized[nk]; dup {
			return nil, &SerializationError{Path: joinPath(path, nk), Reason: "duplicate key after normalization"}
		}
		normalized[nk] = v
	}

	keys := make([]string, 0, len(normalized))
	for k := range normalized {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(canonicalString(k))
		buf.WriteByte(':')
		valBytes, err := c.value(joinPath(path, k), normalized[k])
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *canonicalizer) array(path string, arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		valBytes, err := c.value(fmt.Sprintf("%s[%d]", path, i), v)
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// canonicalNumber gives json.Number the same form as the equivalent Go number,
// so "1.50", "1.5" and 1.5 hash identically.
func canonicalNumber(path string, n json.Number) ([]byte, error) {
	if i, err := n.Int64(); err == nil {
		return []byte(strconv.FormatInt(i, 10)), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, &SerializationError{Path: path, Reason: fmt.Sprintf("invalid number %q", n.String())}
	}
	return canonicalFloat(path, f)
}

// canonicalFloat writes integral values in integer form and everything else in
// the shortest round-trip representation.
func canonicalFloat(path string, f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &SerializationError{Path: path, Reason: "non-finite number"}
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return []byte(strconv.FormatInt(int64(f), 10)), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

// canonicalString writes a JSON string with UTF-8 preserved; only characters
// JSON requires to be escaped are escaped.
func canonicalString(s string) []byte {
	var buf bytes.Buffer
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r < 0x20:
			fmt.Fprintf(&buf, `\u%04x`, r)
		default:
			buf.WriteString(s[i : i+size])
		}
		i += size
	}
	buf.WriteByte('"')
	return buf.Bytes()
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
