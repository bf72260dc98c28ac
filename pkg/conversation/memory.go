package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/d4l-data4life/go-image-studio/pkg/models"
)

// MemoryRepository is an in-process Repository used in tests.
// Messages keep insertion order, matching creation-time ordering in the database.
type MemoryRepository struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]models.Conversation
	messages      []models.Message
	images        []models.Image

	// FailCreateConversation and FailCreateImage inject errors
	FailCreateConversation error
	FailCreateImage        error
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{conversations: map[uuid.UUID]models.Conversation{}}
}

func (r *MemoryRepository) CreateConversation(_ context.Context, conversation *models.Conversation) error {
	if r.FailCreateConversation != nil {
		return r.FailCreateConversation
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if conversation.ID == uuid.Nil {
		conversation.ID = uuid.New()
	}
	now := time.Now()
	conversation.CreatedAt, conversation.UpdatedAt = now, now
	r.conversations[conversation.ID] = *conversation
	return nil
}

func (r *MemoryRepository) GetConversation(_ context.Context, id, userID uuid.UUID) (models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok || c.UserID != userID {
		return models.Conversation{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepository) ListConversations(_ context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []models.Conversation{}
	for _, c := range r.conversations {
		if c.UserID == userID {
			result = append(result, c)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (r *MemoryRepository) TouchConversation(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conversations[id]; ok {
		c.UpdatedAt = time.Now()
		r.conversations[id] = c
	}
	return nil
}

func (r *MemoryRepository) DeleteConversation(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conversations, id)
	return nil
}

func (r *MemoryRepository) ListMessages(_ context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []models.Message{}
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			result = append(result, m)
		}
	}
	return result, nil
}

func (r *MemoryRepository) CreateMessage(_ context.Context, message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	message.CreatedAt = time.Now()
	r.messages = append(r.messages, *message)
	return nil
}

func (r *MemoryRepository) DeleteMessages(_ context.Context, conversationID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.messages[:0]
	for _, m := range r.messages {
		if m.ConversationID != conversationID {
			kept = append(kept, m)
		}
	}
	r.messages = kept
	return nil
}

func (r *MemoryRepository) ListImages(_ context.Context, messageIDs []uuid.UUID) ([]models.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := toSet(messageIDs)
	result := []models.Image{}
	for _, img := range r.images {
		if ids[img.MessageID] {
			result = append(result, img)
		}
	}
	return result, nil
}

func (r *MemoryRepository) CreateImage(_ context.Context, image *models.Image) error {
	if r.FailCreateImage != nil {
		return r.FailCreateImage
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if image.ID == uuid.Nil {
		image.ID = uuid.New()
	}
	image.CreatedAt = time.Now()
	r.images = append(r.images, *image)
	return nil
}

func (r *MemoryRepository) DeleteImages(_ context.Context, messageIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := toSet(messageIDs)
	kept := r.images[:0]
	for _, img := range r.images {
		if !ids[img.MessageID] {
			kept = append(kept, img)
		}
	}
	r.images = kept
	return nil
}

// Counts returns the number of message and image rows of a conversation
func (r *MemoryRepository) Counts(conversationID uuid.UUID) (messages int, images int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := map[uuid.UUID]bool{}
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			messages++
			ids[m.ID] = true
		}
	}
	for _, img := range r.images {
		if ids[img.MessageID] {
			images++
		}
	}
	return messages, images
}

// Images returns a copy of all image rows
func (r *MemoryRepository) Images() []models.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Image{}, r.images...)
}

func toSet(ids []uuid.UUID) map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
