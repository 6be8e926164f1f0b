package assignment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// EmptyEncoded is the canonical encoding of a map without assignments.
const EmptyEncoded = "{}"

const separator = "|"

var shortKeys = map[Position]string{
	Plataforma:          "P",
	Microfono1:          "M1",
	Microfono2:          "M2",
	AcomodadorEntrada:   "AE",
	AcomodadorAuditorio: "AA",
	AudioVideo:          "AV",
}

var positionsByShortKey = func() map[string]Position {
	out := make(map[string]Position, len(shortKeys))
	for pos, key := range shortKeys {
		out[key] = pos
	}
	return out
}()

const (
	statusConfirmed = "1"
	statusRejected  = "0"
	statusPending   = "_"
)

// Encode serializes m into the compact wire form, e.g. {"P":"Dan|_"}.
// Keys are emitted in sorted order so equal maps encode identically.
func Encode(m Map) string {
	if len(m) == 0 {
		return EmptyEncoded
	}

	compact := make(map[string]string, len(m))
	for pos, a := range m {
		key, ok := shortKeys[pos]
		if !ok {
			key = string(pos)
		}
		compact[key] = a.Name + separator + statusChar(a.Confirmed)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(compact); err != nil {
		// map[string]string always encodes
		return EmptyEncoded
	}
	return strings.TrimRight(buf.String(), "\n")
}

// Decode parses any supported representation and never fails. Input that
// cannot be parsed yields an empty map.
func Decode(raw any) Map {
	m, _ := DecodeStrict(raw)
	return m
}

// DecodeStrict behaves like Decode but also reports why the input could not
// be parsed. The returned map is always non-nil.
func DecodeStrict(raw any) (Map, error) {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return Map{}, nil
	case Map:
		return v.Clone(), nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	case map[string]any:
		return decodeEntries(v), nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return Map{}, fmt.Errorf("assignment: unsupported value %T: %w", raw, err)
		}
		data = encoded
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return Map{}, nil
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Map{}, fmt.Errorf("assignment: parse: %w", err)
	}
	switch v := parsed.(type) {
	case nil:
		return Map{}, nil
	case map[string]any:
		return decodeEntries(v), nil
	default:
		return Map{}, fmt.Errorf("assignment: expected object, got %T", parsed)
	}
}

func decodeEntries(entries map[string]any) Map {
	out := make(Map, len(entries))
	for key, val := range entries {
		pos := expandKey(key)
		switch v := val.(type) {
		case nil:
			continue
		case map[string]any:
			// written before the compact form existed
			out[pos] = legacyAssignment(v)
		case string:
			// name|status; anything after a second separator is ignored
			parts := strings.SplitN(v, separator, 3)
			if len(parts) == 1 {
				out[pos] = Assignment{Name: v}
				continue
			}
			out[pos] = Assignment{Name: parts[0], Confirmed: parseStatus(parts[1])}
		default:
			out[pos] = Assignment{Name: fmt.Sprint(v)}
		}
	}
	return out
}

func legacyAssignment(v map[string]any) Assignment {
	var a Assignment
	switch name := v["name"].(type) {
	case string:
		a.Name = name
	case nil:
	default:
		a.Name = fmt.Sprint(name)
	}
	if confirmed, ok := v["confirmed"].(bool); ok {
		a.Confirmed = boolPtr(confirmed)
	}
	return a
}

func expandKey(key string) Position {
	if pos, ok := positionsByShortKey[key]; ok {
		return pos
	}
	return Position(key)
}

func statusChar(confirmed *bool) string {
	switch {
	case confirmed == nil:
		return statusPending
	case *confirmed:
		return statusConfirmed
	default:
		return statusRejected
	}
}

func parseStatus(code string) *bool {
	switch code {
	case statusConfirmed:
		return boolPtr(true)
	case statusRejected:
		return boolPtr(false)
	default:
		return nil
	}
}

func boolPtr(v bool) *bool {
	return &v
}
