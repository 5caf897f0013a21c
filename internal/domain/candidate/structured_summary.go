package candidate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StructuredSummary is the persisted generation result, one row per candidate.
type StructuredSummary struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CandidateID   string         `gorm:"column:candidate_id;not null;uniqueIndex" json:"candidate_id"`
	Model         string         `gorm:"column:model;not null" json:"model"`
	Structured    datatypes.JSON `gorm:"column:structured;not null" json:"structured"`
	EmbeddingText string         `gorm:"column:embedding_text;type:text;not null" json:"embedding_text"`
	Embedding     datatypes.JSON `gorm:"column:embedding;not null" json:"-"`
	EmbeddingDim  int            `gorm:"column:embedding_dim;not null" json:"embedding_dim"`
	CreatedAt     time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (StructuredSummary) TableName() string { return "candidate_summary" }

func (s *StructuredSummary) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// NewStructuredSummary builds the row for a freshly generated summary.
func NewStructuredSummary(candidateID, model string, summary *Summary, embeddingText string, embedding []float32) (*StructuredSummary, error) {
	structured, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	vec, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("encode embedding: %w", err)
	}
	return &StructuredSummary{
		CandidateID:   candidateID,
		Model:         model,
		Structured:    datatypes.JSON(structured),
		EmbeddingText: embeddingText,
		Embedding:     datatypes.JSON(vec),
		EmbeddingDim:  len(embedding),
	}, nil
}

// Summary decodes the stored structured object.
func (s *StructuredSummary) Summary() (*Summary, error) {
	var out Summary
	if err := json.Unmarshal(s.Structured, &out); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &out, nil
}

func (s *StructuredSummary) Vector() ([]float32, error) {
	var out []float32
	if len(s.Embedding) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(s.Embedding, &out); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	return out, nil
}
