package history

import (
	"strings"
	"unicode/utf8"

	"github.com/d4l-data4life/go-image-studio/pkg/models"
)

// TitleLength is the number of characters of the first prompt used as conversation title
const TitleLength = 30

// Role of a history item
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is a fragment of a history item carrying text and/or an image.
// Image is a base64 data URL unless IsImageURL marks it as a remote storage URL.
type Part struct {
	Text       string `json:"text,omitempty"`
	Image      string `json:"image,omitempty"`
	IsImageURL bool   `json:"isImageUrl,omitempty"`
}

// Item is the in-memory representation of one message
type Item struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
	// Metadata records the generation settings of model items
	Metadata *models.GenerationMetadata `json:"metadata,omitempty"`
}

// TextContent joins all non-empty text parts with a single space
func (i Item) TextContent() string {
	texts := make([]string, 0, len(i.Parts))
	for _, p := range i.Parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}

// HasImage reports whether any part of the item carries an image
func (i Item) HasImage() bool {
	for _, p := range i.Parts {
		if p.Image != "" {
			return true
		}
	}
	return false
}

// Images returns the image-bearing parts in order
func (i Item) Images() []Part {
	images := []Part{}
	for _, p := range i.Parts {
		if p.Image != "" {
			images = append(images, p)
		}
	}
	return images
}

// MessageRole maps the history role onto the stored message role
func (r Role) MessageRole() models.MessageRole {
	return models.MessageRole(r)
}

// Valid reports whether the role can be stored
func (r Role) Valid() bool {
	return r.MessageRole().Valid()
}

// DeriveTitle returns the first 30 characters of the first user text part,
// or the default conversation title when there is none.
func DeriveTitle(items []Item) string {
	for _, item := range items {
		if item.Role != RoleUser {
			continue
		}
		for _, p := range item.Parts {
			if p.Text != "" {
				return truncate(p.Text, TitleLength)
			}
		}
		// only the first user item counts
		break
	}
	return models.DefaultConversationTitle
}

// IsOriginal reports whether images of the item at index are marked as the conversation's original
func IsOriginal(items []Item, index int) bool {
	return index <= 1 && index < len(items) && items[index].Role == RoleUser
}

// HasUserItem reports whether any item in the history was authored by the user
func HasUserItem(items []Item) bool {
	for _, item := range items {
		if item.Role == RoleUser {
			return true
		}
	}
	return false
}

// LastImage returns the most recent image in the history, searching backwards
func LastImage(items []Item) (Part, bool) {
	for i := len(items) - 1; i >= 0; i-- {
		parts := items[i].Parts
		for j := len(parts) - 1; j >= 0; j-- {
			if parts[j].Image != "" {
				return parts[j], true
			}
		}
	}
	return Part{}, false
}

// CountText returns the number of items with non-empty text
func CountText(items []Item) int {
	count := 0
	for _, item := range items {
		if item.TextContent() != "" {
			count++
		}
	}
	return count
}

// CountImages returns the number of image-bearing items
func CountImages(items []Item) int {
	count := 0
	for _, item := range items {
		if item.HasImage() {
			count++
		}
	}
	return count
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
