package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MessageRole defines the possible roles for a message
type MessageRole string

const (
	MessageRoleUser  MessageRole = "user"
	MessageRoleModel MessageRole = "model"
)

// Valid reports whether the role is one of the stored roles
func (r MessageRole) Valid() bool {
	return r == MessageRoleUser || r == MessageRoleModel
}

// Message represents a single turn in a conversation.
// Conversation order is creation order; there is no sequence column.
type Message struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"         json:"id"`
	ConversationID uuid.UUID      `gorm:"type:uuid;not null;index"                               json:"conversationId"`
	Role           MessageRole    `gorm:"size:10;not null;check:role IN ('user','model')"         json:"role"`
	Content        string         `gorm:"type:text"                                              json:"content"`
	HasImage       bool           `gorm:"not null;default:false"                                 json:"hasImage"`
	Metadata       datatypes.JSON `gorm:"type:jsonb"                                             json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// TableName specifies the table name for Message model
func (Message) TableName() string {
	return "messages"
}

// BeforeCreate hook to ensure ID is set
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// GenerationMetadata records which backend produced a model message
type GenerationMetadata struct {
	Model       string `json:"model,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
	Fallback    bool   `json:"fallback,omitempty"`
}

// IsZero reports whether no generation setting is recorded
func (g GenerationMetadata) IsZero() bool {
	return g == GenerationMetadata{}
}

// JSON encodes the metadata for the jsonb column. Zero metadata is stored as NULL.
func (g GenerationMetadata) JSON() datatypes.JSON {
	if g.IsZero() {
		return nil
	}
	bytes, err := json.Marshal(g)
	if err != nil {
		return nil
	}
	return datatypes.JSON(bytes)
}

// ParseGenerationMetadata decodes the metadata column, ignoring malformed values
func ParseGenerationMetadata(raw datatypes.JSON) GenerationMetadata {
	var g GenerationMetadata
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &g)
	}
	return g
}
