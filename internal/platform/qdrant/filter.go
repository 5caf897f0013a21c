package qdrant

import (
	"fmt"
	"sort"
	"strings"
)

// translateFilter maps the flat metadata filter used by the vector store
// boundary onto qdrant "must" conditions. Scalars become match.value, slices
// become match.any. Operator keys ($and, $or, ...) are not supported.
func translateFilter(qualifiedNS string, filter map[string]any) (map[string]any, error) {
	must := []any{matchCondition(payloadNamespaceKey, qualifiedNS)}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		k := strings.TrimSpace(key)
		if k == "" {
			continue
		}
		if strings.HasPrefix(k, "$") || k == payloadNamespaceKey || k == payloadVectorIDKey {
			return nil, opErr("filter_translate", OperationErrorUnsupportedFilter, fmt.Sprintf("filter key %q is not supported", k), nil)
		}
		switch v := filter[key].(type) {
		case []string:
			vals := make([]any, 0, len(v))
			for _, s := range v {
				vals = append(vals, s)
			}
			must = append(must, matchAnyCondition(k, vals))
		case []any:
			must = append(must, matchAnyCondition(k, v))
		case map[string]any:
			return nil, opErr("filter_translate", OperationErrorUnsupportedFilter, fmt.Sprintf("nested filter for %q is not supported", k), nil)
		default:
			must = append(must, matchCondition(k, v))
		}
	}
	return map[string]any{"must": must}, nil
}

func matchCondition(key string, value any) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"value": value}}
}

func matchAnyCondition(key string, values []any) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"any": values}}
}
