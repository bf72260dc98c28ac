package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Image points at a blob in object storage. The row never holds the image bytes.
type Image struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MessageID   uuid.UUID `gorm:"type:uuid;not null;index"                       json:"messageId"`
	StoragePath string    `gorm:"size:1000;not null"                             json:"storagePath"`
	// OriginalPath is only set for the conversation's initial image
	OriginalPath *string   `gorm:"size:1000" json:"originalPath,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TableName specifies the table name for Image model
func (Image) TableName() string {
	return "images"
}

// BeforeCreate hook to ensure ID is set
func (i *Image) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// BlobPaths returns every storage path referenced by the row
func (i Image) BlobPaths() []string {
	paths := []string{}
	if i.StoragePath != "" {
		paths = append(paths, i.StoragePath)
	}
	if i.OriginalPath != nil && *i.OriginalPath != "" && *i.OriginalPath != i.StoragePath {
		paths = append(paths, *i.OriginalPath)
	}
	return paths
}
