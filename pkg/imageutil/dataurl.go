package imageutil

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// DefaultMIMEType is assumed when a data URL carries no parseable MIME type
	DefaultMIMEType = "image/jpeg"
	// PNGMIMEType is the only format kept as-is when optimizing
	PNGMIMEType = "image/png"

	base64Marker = ";base64,"
)

var (
	ErrNotDataURL     = errors.New("not a base64 data URL")
	ErrInvalidPayload = errors.New("invalid base64 payload")
	ErrEmptyImage     = errors.New("image data is empty")
	ErrDecodeImage    = errors.New("failed to decode image")

	mimePattern = regexp.MustCompile(`data:([^;]+);base64,`)
)

// Image is a decoded image payload together with its MIME type
type Image struct {
	MIMEType string
	Data     []byte
}

// DataURL renders the image as data:<mime>;base64,<data>
func (i Image) DataURL() string {
	return BuildDataURL(i.MIMEType, base64.StdEncoding.EncodeToString(i.Data))
}

// BuildDataURL assembles a data URL from a MIME type and base64 payload
func BuildDataURL(mimeType, base64Data string) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64Data)
}

// IsDataURL reports whether s contains both the data: prefix and the base64 marker
func IsDataURL(s string) bool {
	return strings.Contains(s, "data:") && strings.Contains(s, base64Marker)
}

// IsRemoteURL reports whether s is an http(s) URL
func IsRemoteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// SplitDataURL returns the MIME type and the raw base64 payload of a data URL
func SplitDataURL(dataURL string) (mimeType string, base64Data string, err error) {
	if !IsDataURL(dataURL) {
		return "", "", ErrNotDataURL
	}
	idx := strings.Index(dataURL, base64Marker)
	base64Data = dataURL[idx+len(base64Marker):]

	mimeType = DefaultMIMEType
	if match := mimePattern.FindStringSubmatch(dataURL); len(match) == 2 {
		mimeType = match[1]
	}
	return mimeType, base64Data, nil
}

// ParseDataURL decodes a data URL into its bytes
func ParseDataURL(dataURL string) (Image, error) {
	mimeType, base64Data, err := SplitDataURL(dataURL)
	if err != nil {
		return Image{}, err
	}
	data, err := base64.StdEncoding.DecodeString(base64Data)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(data) == 0 {
		return Image{}, ErrEmptyImage
	}
	return Image{MIMEType: mimeType, Data: data}, nil
}

// DataURLSize estimates the decoded size in bytes of a data URL payload
func DataURLSize(dataURL string) int {
	idx := strings.Index(dataURL, ",")
	if idx == -1 || idx == len(dataURL)-1 {
		return 0
	}
	return len(dataURL[idx+1:]) * 3 / 4
}

// FormatFileSize renders a byte count as B, KB or MB
func FormatFileSize(bytes int) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	}
}
