package conversation_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d4l-data4life/go-image-studio/pkg/config"
	"github.com/d4l-data4life/go-image-studio/pkg/conversation"
	"github.com/d4l-data4life/go-image-studio/pkg/history"
	"github.com/d4l-data4life/go-image-studio/pkg/models"
	"github.com/d4l-data4life/go-image-studio/pkg/storage"
)

// Executed before test runs in this package (fails otherwise)
func TestMain(m *testing.M) {
	config.SetupEnv()
	config.SetupLogger()
	os.Exit(m.Run())
}

const (
	pngURL  = "data:image/png;base64,iVBORw0KGgo="
	jpegURL = "data:image/jpeg;base64,/9j/4AAQ"
)

type fixture struct {
	repo    *conversation.MemoryRepository
	blobs   *storage.MemoryStore
	service *conversation.Service
}

func newFixture() fixture {
	repo := conversation.NewMemoryRepository()
	blobs := storage.NewMemoryStore("")
	return fixture{
		repo:    repo,
		blobs:   blobs,
		service: conversation.NewService(repo, blobs, storage.NewResolver(blobs, time.Minute)),
	}
}

func sampleHistory() []history.Item {
	return []history.Item{
		{Role: history.RoleUser, Parts: []history.Part{{Image: jpegURL}, {Text: "make it blue"}}},
		{Role: history.RoleModel, Parts: []history.Part{{Text: "Here it is"}, {Image: pngURL}},
			Metadata: &models.GenerationMetadata{Model: "gemini"}},
		{Role: history.RoleUser, Parts: []history.Part{{Text: "now add a hat"}}},
		{Role: history.RoleModel, Parts: []history.Part{{Image: pngURL}}},
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	userID := uuid.New()
	items := sampleHistory()

	id, err := f.service.SaveHistory(ctx, items, "", uuid.Nil, userID)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	conv, err := f.service.Get(ctx, id, userID)
	require.NoError(t, err)
	assert.Equal(t, "make it blue", conv.Title)
	assert.Equal(t, 4, conv.MessageCount)

	loaded, err := f.service.LoadHistory(ctx, id, userID)
	require.NoError(t, err)
	require.Len(t, loaded, len(items))
	assert.Equal(t, history.CountText(items), history.CountText(loaded))
	assert.Equal(t, history.CountImages(items), history.CountImages(loaded))

	for i, item := range loaded {
		assert.Equal(t, items[i].Role, item.Role)
		assert.Equal(t, items[i].HasImage(), item.HasImage())
		for _, img := range item.Images() {
			assert.True(t, img.IsImageURL)
			assert.True(t, strings.HasPrefix(img.Image, "http://memory.local/images/"))
		}
	}
	// text parts come first, then images
	assert.Equal(t, "Here it is", loaded[1].Parts[0].Text)
	require.NotNil(t, loaded[1].Metadata)
	assert.Equal(t, "gemini", loaded[1].Metadata.Model)
	assert.Nil(t, loaded[0].Metadata)

	assert.Len(t, f.blobs.Paths(), 3)
}

func TestOriginalImageMarking(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	items := []history.Item{
		{Role: history.RoleUser, Parts: []history.Part{{Image: jpegURL}}},
		{Role: history.RoleUser, Parts: []history.Part{{Image: pngURL}}},
		{Role: history.RoleModel, Parts: []history.Part{{Image: pngURL}}},
		{Role: history.RoleUser, Parts: []history.Part{{Image: pngURL}}},
	}
	_, err := f.service.SaveHistory(ctx, items, "title", uuid.Nil, uuid.New())
	require.NoError(t, err)

	images := f.repo.Images()
	require.Len(t, images, 4)
	for i, img := range images {
		if i <= 1 {
			require.NotNil(t, img.OriginalPath, i)
			assert.Equal(t, img.StoragePath, *img.OriginalPath)
		} else {
			assert.Nil(t, img.OriginalPath, i)
		}
	}
}

func TestResaveReplacesMessagesAndBlobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	userID := uuid.New()

	id, err := f.service.SaveHistory(ctx, sampleHistory(), "", uuid.Nil, userID)
	require.NoError(t, err)
	firstBlobs := f.blobs.Paths()

	// reload and append a turn, as the client does
	loaded, err := f.service.LoadHistory(ctx, id, userID)
	require.NoError(t, err)
	loaded = append(loaded, history.Item{Role: history.RoleUser, Parts: []history.Part{{Text: "one more"}}})

	sameID, err := f.service.SaveHistory(ctx, loaded, "", id, userID)
	require.NoError(t, err)
	assert.Equal(t, id, sameID)

	messages, images := f.repo.Counts(id)
	assert.Equal(t, 5, messages)
	assert.Equal(t, 3, images)

	// URL parts were re-fetched before their old blobs were removed
	secondBlobs := f.blobs.Paths()
	assert.Len(t, secondBlobs, 3)
	for _, p := range firstBlobs {
		assert.NotContains(t, secondBlobs, p)
	}

	conv, err := f.service.Get(ctx, id, userID)
	require.NoError(t, err)
	assert.Equal(t, "make it blue", conv.Title)
}

func TestSaveOwnershipAndFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	owner := uuid.New()

	id, err := f.service.SaveHistory(ctx, sampleHistory(), "", uuid.Nil, owner)
	require.NoError(t, err)

	got, err := f.service.SaveHistory(ctx, sampleHistory(), "", id, uuid.New())
	assert.ErrorIs(t, err, conversation.ErrNotFound)
	assert.Equal(t, uuid.Nil, got)

	got, err = f.service.SaveHistory(ctx, sampleHistory(), "", uuid.New(), owner)
	assert.ErrorIs(t, err, conversation.ErrNotFound)
	assert.Equal(t, uuid.Nil, got)

	f.repo.FailCreateConversation = errors.New("db down")
	got, err = f.service.SaveHistory(ctx, sampleHistory(), "", uuid.Nil, owner)
	assert.ErrorIs(t, err, conversation.ErrCreateFailed)
	assert.Equal(t, uuid.Nil, got)

	f.repo.FailCreateConversation = nil
	bad := []history.Item{{Role: "assistant", Parts: []history.Part{{Text: "x"}}}}
	_, err = f.service.SaveHistory(ctx, bad, "", uuid.Nil, owner)
	assert.ErrorIs(t, err, conversation.ErrInvalidRole)
}

func TestSaveSkipsBrokenImages(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	items := []history.Item{
		{Role: history.RoleUser, Parts: []history.Part{{Text: "a"}, {Image: "https://elsewhere.example.com/x.png", IsImageURL: true}}},
		{Role: history.RoleModel, Parts: []history.Part{{Image: pngURL}}},
	}
	id, err := f.service.SaveHistory(ctx, items, "", uuid.Nil, uuid.New())
	require.NoError(t, err)

	messages, images := f.repo.Counts(id)
	assert.Equal(t, 2, messages)
	assert.Equal(t, 1, images)
}

func TestUploadImageCleansUpBlob(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.repo.FailCreateImage = errors.New("insert failed")

	img, err := storage.NewResolver(f.blobs, time.Minute).Resolve(ctx, pngURL)
	require.NoError(t, err)
	_, err = f.service.UploadImage(ctx, uuid.New(), img, false)
	assert.Error(t, err)
	assert.Empty(t, f.blobs.Paths())
}

func TestDeleteIsScoped(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	userID := uuid.New()

	keep, err := f.service.SaveHistory(ctx, sampleHistory(), "", uuid.Nil, userID)
	require.NoError(t, err)
	drop, err := f.service.SaveHistory(ctx, sampleHistory(), "", uuid.Nil, userID)
	require.NoError(t, err)
	assert.Len(t, f.blobs.Paths(), 6)

	ok, err := f.service.Delete(ctx, drop, uuid.New())
	assert.False(t, ok)
	assert.ErrorIs(t, err, conversation.ErrNotFound)

	ok, err = f.service.Delete(ctx, drop, userID)
	require.NoError(t, err)
	assert.True(t, ok)

	messages, images := f.repo.Counts(drop)
	assert.Zero(t, messages)
	assert.Zero(t, images)
	_, err = f.service.Get(ctx, drop, userID)
	assert.ErrorIs(t, err, conversation.ErrNotFound)

	messages, images = f.repo.Counts(keep)
	assert.Equal(t, 4, messages)
	assert.Equal(t, 3, images)
	assert.Len(t, f.blobs.Paths(), 3)
}

func TestListAndCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	userID := uuid.New()

	first, err := f.service.CreateConversation(ctx, userID, "")
	require.NoError(t, err)
	assert.Equal(t, "New Conversation", first.Title)
	time.Sleep(2 * time.Millisecond)
	second, err := f.service.CreateConversation(ctx, userID, "second")
	require.NoError(t, err)
	_, err = f.service.CreateConversation(ctx, uuid.New(), "other user")
	require.NoError(t, err)

	list, err := f.service.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, f.service.TouchConversation(ctx, first.ID, userID))
	list, err = f.service.List(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, list[0].ID)

	assert.ErrorIs(t, f.service.TouchConversation(ctx, first.ID, uuid.New()), conversation.ErrNotFound)

	err = f.service.CreateMessage(ctx, &models.Message{ConversationID: first.ID, Role: "system"})
	assert.ErrorIs(t, err, conversation.ErrInvalidRole)
}
