package persistence

import (
	"fmt"
	"sort"
	"strconv"
)

// Apply filters, orders and limits docs in memory with the same semantics a
// remote backend pushes down to the server. The input slice is not modified.
func Apply(docs []Document, q Query) []Document {
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if matches(doc, q.Filters) {
			out = append(out, doc)
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a := out[i].Fields.String(q.OrderBy)
			b := out[j].Fields.String(q.OrderBy)
			if a == b {
				if q.Descending {
					return out[i].ID > out[j].ID
				}
				return out[i].ID < out[j].ID
			}
			if q.Descending {
				return a > b
			}
			return a < b
		})
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		if doc.Fields.String(f.Field) != f.Value {
			return false
		}
	}
	return true
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
