package pgvector

import (
	"strings"
	"testing"
)

func TestEncodeVector(t *testing.T) {
	if got := encodeVector([]float32{0.5, -1, 2}); got != "[0.5,-1,2]" {
		t.Fatalf("encodeVector: got=%s", got)
	}
	if got := encodeVector(nil); got != "[]" {
		t.Fatalf("encodeVector(nil): got=%s", got)
	}
}

func TestBuildQueryWithoutFilter(t *testing.T) {
	sql, args, err := buildQuery("candidate_embedding", "candidate_summary", "[1,0]", 10, nil)
	if err != nil {
		t.Fatalf("buildQuery: %v", err)
	}
	if !strings.Contains(sql, "ORDER BY embedding <=> $1::vector LIMIT $3") {
		t.Fatalf("sql: got=%s", sql)
	}
	if !strings.Contains(sql, "1 - (embedding <=> $1::vector) AS score") {
		t.Fatalf("score expression missing: %s", sql)
	}
	if len(args) != 3 || args[1] != "candidate_summary" || args[2] != 10 {
		t.Fatalf("args: got=%v", args)
	}
}

func TestBuildQueryWithFilter(t *testing.T) {
	sql, args, err := buildQuery("t", "ns", "[1]", 5, map[string]any{"kind": "x", "tags": []string{"a"}})
	if err != nil {
		t.Fatalf("buildQuery: %v", err)
	}
	if !strings.Contains(sql, "metadata->>$3 = $4") || !strings.Contains(sql, "metadata->>$5 = ANY($6)") {
		t.Fatalf("sql: got=%s", sql)
	}
	if len(args) != 7 || args[6] != 5 {
		t.Fatalf("args: got=%v", args)
	}
	if _, _, err := buildQuery("t", "ns", "[1]", 5, map[string]any{"x": map[string]any{}}); err == nil {
		t.Fatalf("expected nested filter error")
	}
}

func TestSchemaStatementsUseDimension(t *testing.T) {
	stmts := schemaStatements("candidate_embedding", 1536)
	if !strings.Contains(stmts[1], "vector(1536)") {
		t.Fatalf("table ddl: got=%s", stmts[1])
	}
	if !strings.Contains(stmts[2], "USING hnsw (embedding vector_cosine_ops)") {
		t.Fatalf("index ddl: got=%s", stmts[2])
	}
}

func TestIdentRe(t *testing.T) {
	if !identRe.MatchString("candidate_embedding") || identRe.MatchString("x; drop table y") {
		t.Fatalf("identRe misclassified")
	}
}
