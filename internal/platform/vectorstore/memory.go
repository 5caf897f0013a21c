package vectorstore

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
)

type memoryEntry struct {
	values   []float32
	norm     float64
	metadata map[string]any
}

// MemoryStore is an exact brute-force cosine index held in process memory.
// It is the default when no external vector provider is configured.
type MemoryStore struct {
	mu         sync.RWMutex
	dim        int
	namespaces map[string]map[string]memoryEntry
}

func NewMemoryStore(dim int) (*MemoryStore, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("memory vector store: invalid dimension %d", dim)
	}
	return &MemoryStore{dim: dim, namespaces: map[string]map[string]memoryEntry{}}, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	for _, v := range vectors {
		if strings.TrimSpace(v.ID) == "" {
			return fmt.Errorf("memory vector store upsert: vector id is required")
		}
		if len(v.Values) != s.dim {
			return DimensionError("memory vector store upsert", s.dim, len(v.Values))
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.namespaces[namespace]
	if ns == nil {
		ns = map[string]memoryEntry{}
		s.namespaces[namespace] = ns
	}
	for _, v := range vectors {
		values := make([]float32, len(v.Values))
		copy(values, v.Values)
		meta := make(map[string]any, len(v.Metadata))
		for k, val := range v.Metadata {
			meta[k] = val
		}
		ns[strings.TrimSpace(v.ID)] = memoryEntry{values: values, norm: norm(values), metadata: meta}
	}
	return nil
}

func (s *MemoryStore) QueryMatches(ctx context.Context, namespace string, q []float32, topK, poolSize int, filter map[string]any) ([]VectorMatch, error) {
	if len(q) != s.dim {
		return nil, DimensionError("memory vector store query", s.dim, len(q))
	}
	if topK <= 0 {
		topK = 10
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	qNorm := norm(q)

	s.mu.RLock()
	ns := s.namespaces[namespace]
	out := make([]VectorMatch, 0, len(ns))
	for id, e := range ns {
		if len(filter) > 0 && !MatchFilter(e.metadata, filter) {
			continue
		}
		out = append(out, VectorMatch{ID: id, Score: cosine(q, qNorm, e.values, e.norm)})
	}
	s.mu.RUnlock()

	SortMatches(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *MemoryStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.namespaces[namespace]
	for _, id := range ids {
		delete(ns, strings.TrimSpace(id))
	}
	return nil
}

// Len returns the number of vectors stored in namespace.
func (s *MemoryStore) Len(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces[namespace])
}

func norm(v []float32) float64 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, aNorm float64, b []float32, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	dot := 0.0
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (aNorm * bNorm)
}
