package http

import (
	"bytes"
	"strconv"
)

// JSONKind is the type of a scanned JSON value
type JSONKind uint8

const (
	JSONString JSONKind = iota
	JSONNumber
	JSONBool
	JSONNull
)

func (k JSONKind) String() string {
	switch k {
	case JSONString:
		return "string"
	case JSONNumber:
		return "number"
	case JSONBool:
		return "bool"
	case JSONNull:
		return "null"
	default:
		return "unknown"
	}
}

// JSONValue is a top-level scalar from a flat JSON object body.
// Raw holds the unquoted string or the literal token text.
type JSONValue struct {
	Kind JSONKind
	Raw  string
}

// String returns the raw text of the value ("" for null).
func (v JSONValue) String() string {
	if v.Kind == JSONNull {
		return ""
	}
	return v.Raw
}

// Bool reports whether the value is the literal true.
func (v JSONValue) Bool() bool {
	return v.Kind == JSONBool && v.Raw == "true"
}

// Float64 parses a number value. Non-numbers return an error.
func (v JSONValue) Float64() (float64, error) {
	if v.Kind != JSONNumber {
		return 0, &strconv.NumError{Func: "Float64", Num: v.Raw, Err: strconv.ErrSyntax}
	}
	return strconv.ParseFloat(v.Raw, 64)
}

// IsNull reports whether the value is the literal null.
func (v JSONValue) IsNull() bool {
	return v.Kind == JSONNull
}

// scanFlatJSON extracts "key": value pairs from a flat JSON object.
//
// Strings are taken between quotes without escape handling. A key whose value
// opens an object or array is recorded as an empty string, and scanning
// continues inside the container, so nested keys surface at the top level.
// Nested structures are not supported.
func scanFlatJSON(raw []byte, out map[string]JSONValue) {
	pos := 0
	for pos < len(raw) {
		keyStart := indexByteFrom(raw, '"', pos)
		if keyStart == -1 {
			return
		}
		keyEnd := indexByteFrom(raw, '"', keyStart+1)
		if keyEnd == -1 {
			return
		}
		key := string(raw[keyStart+1 : keyEnd])

		colon := indexByteFrom(raw, ':', keyEnd)
		if colon == -1 {
			return
		}

		valStart := colon + 1
		for valStart < len(raw) && isJSONSpace(raw[valStart]) {
			valStart++
		}
		if valStart >= len(raw) {
			return
		}

		if raw[valStart] == '"' {
			valEnd := indexByteFrom(raw, '"', valStart+1)
			if valEnd == -1 {
				return
			}
			out[key] = JSONValue{Kind: JSONString, Raw: string(raw[valStart+1 : valEnd])}
			pos = valEnd + 1
			continue
		}

		if c := raw[valStart]; c == '{' || c == '[' {
			out[key] = JSONValue{Kind: JSONString}
			pos = valStart + 1
			continue
		}

		valEnd := valStart
		for valEnd < len(raw) && isLiteralByte(raw[valEnd]) {
			valEnd++
		}
		if valEnd > valStart {
			lit := string(raw[valStart:valEnd])
			out[key] = JSONValue{Kind: literalKind(lit), Raw: lit}
		}
		pos = valEnd
	}
}

func literalKind(lit string) JSONKind {
	switch lit {
	case "true", "false":
		return JSONBool
	case "null":
		return JSONNull
	default:
		return JSONNumber
	}
}

func indexByteFrom(b []byte, c byte, from int) int {
	if from >= len(b) {
		return -1
	}
	i := bytes.IndexByte(b[from:], c)
	if i == -1 {
		return -1
	}
	return from + i
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isLiteralByte(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
		c == '.' || c == '-' || c == '+'
}
