package handler

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
)

// inputLength sums the rendered length of every element's content field,
// measured in UTF-16 code units. Elements that are not objects count as empty.
func inputLength(items []json.RawMessage) (int, error) {
	total := 0
	for _, item := range items {
		var msg map[string]json.RawMessage
		if err := json.Unmarshal(item, &msg); err != nil {
			// strings, numbers, arrays and null have no content field
			continue
		}
		raw, ok := msg["content"]
		if !ok {
			continue
		}

		v, err := decodeValue(raw)
		if err != nil {
			return 0, err
		}
		if !truthy(v) {
			continue
		}
		total += utf16Len(render(v))
	}
	return total, nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// truthy treats null, false, zero and "" as absent content
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		f, err := strconv.ParseFloat(x.String(), 64)
		return err != nil || f != 0
	default:
		return true
	}
}

// render converts a decoded JSON value to the text a model would receive:
// arrays are comma joined with null elements empty, objects are opaque.
func render(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	case json.Number:
		return renderNumber(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = render(e)
		}
		return strings.Join(parts, ",")
	default:
		return "[object Object]"
	}
}

// renderNumber prints the shortest round-trip form, switching to exponent
// notation outside [1e-6, 1e21)
func renderNumber(n json.Number) string {
	f, err := strconv.ParseFloat(n.String(), 64)
	if math.IsInf(f, 0) {
		if f > 0 {
			return "Infinity"
		}
		return "-Infinity"
	}
	if err != nil {
		return n.String()
	}
	if f == 0 {
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	s := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "e")
	sign := exp[:1]
	exp = strings.TrimLeft(exp[1:], "0")
	return mantissa + "e" + sign + exp
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
