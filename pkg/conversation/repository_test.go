package conversation_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d4l-data4life/go-image-studio/pkg/conversation"
	"github.com/d4l-data4life/go-image-studio/pkg/history"
	"github.com/d4l-data4life/go-image-studio/pkg/models"
	"github.com/d4l-data4life/go-image-studio/pkg/storage"

	"github.com/d4l-data4life/go-svc/pkg/db"
)

func TestGormRepositoryOwnership(t *testing.T) {
	models.InitializeTestDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := conversation.NewGormRepository(db.Get())
	owner, stranger := uuid.New(), uuid.New()

	conv := &models.Conversation{UserID: owner, Title: "Owned"}
	require.NoError(t, repo.CreateConversation(ctx, conv))
	require.NotEqual(t, uuid.Nil, conv.ID)

	got, err := repo.GetConversation(ctx, conv.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, "Owned", got.Title)

	_, err = repo.GetConversation(ctx, conv.ID, stranger)
	assert.ErrorIs(t, err, conversation.ErrNotFound)

	list, err := repo.ListConversations(ctx, stranger)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGormRepositoryMessagesAndImages(t *testing.T) {
	models.InitializeTestDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := conversation.NewGormRepository(db.Get())
	conv := &models.Conversation{UserID: uuid.New(), Title: "Messages"}
	require.NoError(t, repo.CreateConversation(ctx, conv))

	first := &models.Message{ConversationID: conv.ID, Role: models.MessageRoleUser, Content: "first"}
	require.NoError(t, repo.CreateMessage(ctx, first))
	second := &models.Message{
		ConversationID: conv.ID,
		Role:           models.MessageRoleModel,
		HasImage:       true,
		CreatedAt:      time.Now().Add(time.Second),
	}
	require.NoError(t, repo.CreateMessage(ctx, second))
	require.NoError(t, repo.CreateImage(ctx, &models.Image{MessageID: second.ID, StoragePath: "1-a"}))

	messages, err := repo.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "first", messages[0].Content)

	images, err := repo.ListImages(ctx, []uuid.UUID{first.ID, second.ID})
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "1-a", images[0].StoragePath)

	require.NoError(t, repo.DeleteImages(ctx, []uuid.UUID{second.ID}))
	require.NoError(t, repo.DeleteMessages(ctx, conv.ID))
	messages, err = repo.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestServiceOnPostgres(t *testing.T) {
	models.InitializeTestDB(t)
	defer db.Close()

	ctx := context.Background()
	blobs := storage.NewMemoryStore("")
	service := conversation.NewService(
		conversation.NewGormRepository(db.Get()),
		blobs,
		storage.NewResolver(blobs, time.Minute),
	)
	userID := uuid.New()

	id, err := service.SaveHistory(ctx, sampleHistory(), "", uuid.Nil, userID)
	require.NoError(t, err)

	items, err := service.LoadHistory(ctx, id, userID)
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, history.RoleUser, items[0].Role)

	deleted, err := service.Delete(ctx, id, userID)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Empty(t, blobs.Paths())
}
