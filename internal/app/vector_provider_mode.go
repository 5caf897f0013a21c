package app

import (
	"fmt"
	"strings"
)

type VectorProvider string

const (
	VectorProviderMemory   VectorProvider = "memory"
	VectorProviderQdrant   VectorProvider = "qdrant"
	VectorProviderPGVector VectorProvider = "pgvector"
)

type VectorProviderConfigError struct {
	Provider string
}

func (e *VectorProviderConfigError) Error() string {
	if e == nil {
		return "invalid vector provider config"
	}
	return fmt.Sprintf("invalid vector provider config: unsupported VECTOR_PROVIDER %q (want memory, qdrant or pgvector)", e.Provider)
}

// ParseVectorProvider normalises VECTOR_PROVIDER. Empty selects memory.
func ParseVectorProvider(raw string) (VectorProvider, error) {
	switch p := VectorProvider(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return VectorProviderMemory, nil
	case VectorProviderMemory, VectorProviderQdrant, VectorProviderPGVector:
		return p, nil
	default:
		return "", &VectorProviderConfigError{Provider: raw}
	}
}
