package app

import (
	"errors"
	"testing"
)

func TestParseVectorProvider(t *testing.T) {
	cases := map[string]VectorProvider{
		"":         VectorProviderMemory,
		"memory":   VectorProviderMemory,
		" Qdrant ": VectorProviderQdrant,
		"PGVECTOR": VectorProviderPGVector,
	}
	for raw, want := range cases {
		got, err := ParseVectorProvider(raw)
		if err != nil || got != want {
			t.Fatalf("ParseVectorProvider(%q): want=%s got=%s err=%v", raw, want, got, err)
		}
	}

	_, err := ParseVectorProvider("pinecone")
	var cfgErr *VectorProviderConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Provider != "pinecone" {
		t.Fatalf("unsupported provider: got=%v", err)
	}
}
