package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d4l-data4life/go-image-studio/pkg/models"
)

// Repository is the relational side of the persistence layer
type Repository interface {
	CreateConversation(ctx context.Context, conversation *models.Conversation) error
	// GetConversation returns ErrNotFound unless the conversation exists and is owned by userID
	GetConversation(ctx context.Context, id, userID uuid.UUID) (models.Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)
	TouchConversation(ctx context.Context, id uuid.UUID) error
	DeleteConversation(ctx context.Context, id uuid.UUID) error

	// ListMessages returns the messages of a conversation in creation order
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error)
	CreateMessage(ctx context.Context, message *models.Message) error
	DeleteMessages(ctx context.Context, conversationID uuid.UUID) error

	ListImages(ctx context.Context, messageIDs []uuid.UUID) ([]models.Image, error)
	CreateImage(ctx context.Context, image *models.Image) error
	DeleteImages(ctx context.Context, messageIDs []uuid.UUID) error
}

// GormRepository implements Repository on PostgreSQL
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a repository on top of db
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) CreateConversation(ctx context.Context, conversation *models.Conversation) error {
	return r.db.WithContext(ctx).Create(conversation).Error
}

func (r *GormRepository) GetConversation(ctx context.Context, id, userID uuid.UUID) (models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return conversation, ErrNotFound
	}
	return conversation, err
}

func (r *GormRepository) ListConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	conversations := []models.Conversation{}
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&conversations).Error
	return conversations, err
}

func (r *GormRepository) TouchConversation(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", time.Now()).Error
}

func (r *GormRepository) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Conversation{}).Error
}

func (r *GormRepository) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	messages := []models.Message{}
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

func (r *GormRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *GormRepository) DeleteMessages(ctx context.Context, conversationID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Delete(&models.Message{}).Error
}

func (r *GormRepository) ListImages(ctx context.Context, messageIDs []uuid.UUID) ([]models.Image, error) {
	images := []models.Image{}
	if len(messageIDs) == 0 {
		return images, nil
	}
	err := r.db.WithContext(ctx).
		Where("message_id IN ?", messageIDs).
		Order("created_at ASC").
		Find(&images).Error
	return images, err
}

func (r *GormRepository) CreateImage(ctx context.Context, image *models.Image) error {
	return r.db.WithContext(ctx).Create(image).Error
}

func (r *GormRepository) DeleteImages(ctx context.Context, messageIDs []uuid.UUID) error {
	if len(messageIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("message_id IN ?", messageIDs).Delete(&models.Image{}).Error
}
