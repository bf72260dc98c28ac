package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/d4l-data4life/go-image-studio/pkg/history"
	"github.com/d4l-data4life/go-image-studio/pkg/imageutil"
	"github.com/d4l-data4life/go-image-studio/pkg/models"
	"github.com/d4l-data4life/go-image-studio/pkg/storage"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// Sentinel errors for conversation persistence
var (
	// ErrNotFound indicates a missing conversation or one owned by another user
	ErrNotFound = errors.New("conversation not found or unauthorized")

	// ErrCreateFailed indicates the conversation row could not be created
	ErrCreateFailed = errors.New("failed to create conversation")

	// ErrInvalidRole indicates a history item with a role other than user or model
	ErrInvalidRole = errors.New("invalid history item role")
)

// ImageResolver turns a data URL or storage URL into image bytes
type ImageResolver interface {
	Resolve(ctx context.Context, ref string) (imageutil.Image, error)
}

// Service maps in-memory histories onto conversations, messages, images and blobs.
// Saves replace all messages of a conversation; concurrent saves of the same
// conversation are not coordinated and the last writer wins.
type Service struct {
	repo     Repository
	blobs    storage.BlobStore
	resolver ImageResolver
}

// NewService creates a persistence service
func NewService(repo Repository, blobs storage.BlobStore, resolver ImageResolver) *Service {
	return &Service{repo: repo, blobs: blobs, resolver: resolver}
}

// Summary is a conversation as listed to its owner
type Summary struct {
	models.Conversation
	MessageCount int `json:"messageCount"`
}

// List returns the conversations of userID, most recently updated first
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	return s.repo.ListConversations(ctx, userID)
}

// Get returns one conversation with its message count
func (s *Service) Get(ctx context.Context, id, userID uuid.UUID) (Summary, error) {
	conversation, err := s.repo.GetConversation(ctx, id, userID)
	if err != nil {
		return Summary{}, err
	}
	messages, err := s.repo.ListMessages(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Conversation: conversation, MessageCount: len(messages)}, nil
}

// CreateConversation inserts an empty conversation
func (s *Service) CreateConversation(ctx context.Context, userID uuid.UUID, title string) (models.Conversation, error) {
	if title == "" {
		title = models.DefaultConversationTitle
	}
	conversation := models.Conversation{UserID: userID, Title: title}
	if err := s.repo.CreateConversation(ctx, &conversation); err != nil {
		return models.Conversation{}, fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}
	return conversation, nil
}

// TouchConversation bumps the updated timestamp of a conversation owned by userID
func (s *Service) TouchConversation(ctx context.Context, id, userID uuid.UUID) error {
	if _, err := s.repo.GetConversation(ctx, id, userID); err != nil {
		return err
	}
	return s.repo.TouchConversation(ctx, id)
}

// CreateMessage appends a message and bumps the conversation timestamp
func (s *Service) CreateMessage(ctx context.Context, message *models.Message) error {
	if !message.Role.Valid() {
		return ErrInvalidRole
	}
	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return err
	}
	if err := s.repo.TouchConversation(ctx, message.ConversationID); err != nil {
		logging.LogErrorf(err, "Error updating conversation timestamp")
	}
	return nil
}

// UploadImage stores img as a blob and records it for messageID.
// The blob is removed again when the row cannot be written.
func (s *Service) UploadImage(ctx context.Context, messageID uuid.UUID, img imageutil.Image, isOriginal bool) (string, error) {
	path := storage.NewBlobPath()
	if err := s.blobs.Upload(ctx, path, img); err != nil {
		return "", err
	}

	row := models.Image{MessageID: messageID, StoragePath: path}
	if isOriginal {
		original := path
		row.OriginalPath = &original
	}
	if err := s.repo.CreateImage(ctx, &row); err != nil {
		if rmErr := s.blobs.Remove(ctx, path); rmErr != nil {
			logging.LogErrorf(rmErr, "Error cleaning up blob %s", path)
		}
		return "", err
	}
	return s.blobs.PublicURL(path), nil
}

// resolvedImage is an image part decoded ahead of the destructive part of a save
type resolvedImage struct {
	image imageutil.Image
	ok    bool
}

// SaveHistory replaces the stored messages of a conversation with items.
// Without existingID a new conversation is created, titled title or a title
// derived from the first prompt. Returns uuid.Nil and an error when the
// conversation cannot be created or is not owned by userID.
func (s *Service) SaveHistory(ctx context.Context, items []history.Item, title string, existingID, userID uuid.UUID) (uuid.UUID, error) {
	for _, item := range items {
		if !item.Role.Valid() {
			return uuid.Nil, ErrInvalidRole
		}
	}

	conversationID := existingID
	if existingID == uuid.Nil {
		if title == "" {
			title = history.DeriveTitle(items)
		}
		conversation, err := s.CreateConversation(ctx, userID, title)
		if err != nil {
			logging.LogErrorf(err, "Error converting and saving history")
			return uuid.Nil, err
		}
		conversationID = conversation.ID
	} else if _, err := s.repo.GetConversation(ctx, existingID, userID); err != nil {
		logging.LogErrorf(err, "Error converting and saving history")
		return uuid.Nil, err
	}

	// URL parts point at blobs that are about to be removed
	resolved := s.resolveImages(ctx, items)

	s.clearMessages(ctx, conversationID)
	if err := s.repo.TouchConversation(ctx, conversationID); err != nil {
		logging.LogErrorf(err, "Error updating conversation timestamp")
	}

	for i, item := range items {
		message := models.Message{
			ConversationID: conversationID,
			Role:           item.Role.MessageRole(),
			Content:        item.TextContent(),
			HasImage:       item.HasImage(),
		}
		if item.Metadata != nil {
			message.Metadata = item.Metadata.JSON()
		}
		if err := s.CreateMessage(ctx, &message); err != nil {
			logging.LogErrorf(err, "Error creating %s message", item.Role)
			continue
		}

		isOriginal := history.IsOriginal(items, i)
		for _, img := range resolved[i] {
			if !img.ok {
				continue
			}
			if _, err := s.UploadImage(ctx, message.ID, img.image, isOriginal); err != nil {
				logging.LogErrorf(err, "Error uploading image for %s message", item.Role)
			}
		}
	}

	logging.LogDebugf("Saved conversation %s with %d items", conversationID, len(items))
	return conversationID, nil
}

func (s *Service) resolveImages(ctx context.Context, items []history.Item) [][]resolvedImage {
	resolved := make([][]resolvedImage, len(items))
	for i, item := range items {
		for _, part := range item.Images() {
			img, err := s.resolver.Resolve(ctx, part.Image)
			if err != nil {
				logging.LogErrorf(err, "Error resolving image of %s message", item.Role)
				resolved[i] = append(resolved[i], resolvedImage{})
				continue
			}
			resolved[i] = append(resolved[i], resolvedImage{image: img, ok: true})
		}
	}
	return resolved
}

// clearMessages removes all messages, image rows and blobs of a conversation.
// Failures are logged, nothing is rolled back.
func (s *Service) clearMessages(ctx context.Context, conversationID uuid.UUID) {
	messages, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		logging.LogErrorf(err, "Error listing messages of conversation %s", conversationID)
		return
	}
	if len(messages) == 0 {
		return
	}
	messageIDs := make([]uuid.UUID, 0, len(messages))
	for _, m := range messages {
		messageIDs = append(messageIDs, m.ID)
	}

	images, err := s.repo.ListImages(ctx, messageIDs)
	if err != nil {
		logging.LogErrorf(err, "Error listing images of conversation %s", conversationID)
	}
	for _, img := range images {
		for _, path := range img.BlobPaths() {
			if err := s.blobs.Remove(ctx, path); err != nil {
				logging.LogErrorf(err, "Error removing blob %s", path)
			}
		}
	}
	if err := s.repo.DeleteImages(ctx, messageIDs); err != nil {
		logging.LogErrorf(err, "Error deleting images of conversation %s", conversationID)
	}
	if err := s.repo.DeleteMessages(ctx, conversationID); err != nil {
		logging.LogErrorf(err, "Error deleting messages of conversation %s", conversationID)
	}
}

// LoadHistory rebuilds the history of a conversation owned by userID.
// Images come back as public storage URLs flagged with IsImageURL.
func (s *Service) LoadHistory(ctx context.Context, id, userID uuid.UUID) ([]history.Item, error) {
	if _, err := s.repo.GetConversation(ctx, id, userID); err != nil {
		return nil, err
	}
	messages, err := s.repo.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}

	items := make([]history.Item, 0, len(messages))
	for _, message := range messages {
		item := history.Item{Role: history.Role(message.Role), Parts: []history.Part{}}
		if message.Content != "" {
			item.Parts = append(item.Parts, history.Part{Text: message.Content})
		}
		if message.HasImage {
			images, err := s.repo.ListImages(ctx, []uuid.UUID{message.ID})
			if err != nil {
				return nil, err
			}
			for _, img := range images {
				item.Parts = append(item.Parts, history.Part{
					Image:      s.blobs.PublicURL(img.StoragePath),
					IsImageURL: true,
				})
			}
		}
		if meta := models.ParseGenerationMetadata(message.Metadata); !meta.IsZero() {
			item.Metadata = &meta
		}
		items = append(items, item)
	}
	return items, nil
}

// Delete removes a conversation owned by userID together with its messages,
// image rows and blobs. Partial failures are logged and not rolled back.
func (s *Service) Delete(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	if _, err := s.repo.GetConversation(ctx, id, userID); err != nil {
		logging.LogErrorf(err, "Error deleting conversation %s", id)
		return false, err
	}
	s.clearMessages(ctx, id)
	if err := s.repo.DeleteConversation(ctx, id); err != nil {
		logging.LogErrorf(err, "Error deleting conversation %s", id)
		return false, err
	}
	logging.LogDebugf("Deleted conversation: %s", id)
	return true, nil
}
