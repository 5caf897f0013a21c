package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDimensionMismatch is wrapped by every implementation when a vector's
// length differs from the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

type VectorMatch struct {
	ID    string
	Score float64
}

// VectorStore is the approximate nearest-neighbour index boundary.
type VectorStore interface {
	// Upsert inserts or replaces vectors by ID within namespace.
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	// QueryMatches returns at most topK IDs with similarity scores (higher is
	// better). poolSize bounds how many candidates the index examines.
	QueryMatches(ctx context.Context, namespace string, q []float32, topK, poolSize int, filter map[string]any) ([]VectorMatch, error)
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
}

// SortMatches orders by score descending, then ID ascending.
func SortMatches(matches []VectorMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
}

func DimensionError(op string, expected, got int) error {
	return fmt.Errorf("%s: %w: expected=%d got=%d", op, ErrDimensionMismatch, expected, got)
}

// MatchFilter reports whether metadata satisfies filter. A filter value that
// is a slice matches when any element equals the metadata value; scalars match
// on equality. Comparison is on the fmt rendering so "1" and 1 are equal.
func MatchFilter(metadata map[string]any, filter map[string]any) bool {
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		if !matchValue(got, want) {
			return false
		}
	}
	return true
}

func matchValue(got, want any) bool {
	switch w := want.(type) {
	case []string:
		for _, v := range w {
			if equalScalar(got, v) {
				return true
			}
		}
		return false
	case []any:
		for _, v := range w {
			if equalScalar(got, v) {
				return true
			}
		}
		return false
	default:
		return equalScalar(got, want)
	}
}

func equalScalar(a, b any) bool {
	return strings.TrimSpace(fmt.Sprint(a)) == strings.TrimSpace(fmt.Sprint(b))
}
