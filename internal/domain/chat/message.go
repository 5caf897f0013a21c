package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ParseRole accepts exactly the two conversation roles, case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("chat: invalid role %q", s)
	}
	return r, nil
}

// ChatMessage is one immutable turn of a recruiter's conversation about a
// candidate. Order within a pair is (created_at, seq).
type ChatMessage struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RecruiterID string    `gorm:"column:recruiter_id;not null;index:idx_chat_message_pair,priority:1" json:"recruiter_id"`
	CandidateID string    `gorm:"column:candidate_id;not null;index:idx_chat_message_pair,priority:2" json:"candidate_id"`
	Role        Role      `gorm:"column:role;type:text;not null" json:"role"`
	Content     string    `gorm:"column:content;type:text;not null" json:"content"`
	Seq         int64     `gorm:"column:seq;not null;index:idx_chat_message_pair,priority:4" json:"seq"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime;index:idx_chat_message_pair,priority:3" json:"created_at"`
}

func (ChatMessage) TableName() string { return "chat_message" }

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if !m.Role.Valid() {
		return fmt.Errorf("chat: invalid role %q", m.Role)
	}
	if strings.TrimSpace(m.RecruiterID) == "" || strings.TrimSpace(m.CandidateID) == "" {
		return fmt.Errorf("chat: recruiter and candidate ids required")
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
