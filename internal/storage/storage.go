package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Default expiry duration for presigned URLs
const DefaultPresignedURLExpiry = 15 * time.Minute

// FileStorage defines the interface for object storage operations.
type FileStorage interface {
	// GeneratePresignedUploadURL creates a temporary URL that allows PUT requests
	// for uploading an object directly to the storage provider.
	GeneratePresignedUploadURL(ctx context.Context, objectKey string, contentType string, expires time.Duration) (string, error)

	// GeneratePresignedDownloadURL creates a temporary URL that allows GET requests
	// for downloading/viewing an object directly from the storage provider.
	GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error)

	// DeleteObject removes an object from the storage provider.
	DeleteObject(ctx context.Context, objectKey string) error
}

// ZoneVideoKey builds a unique object key for a zone video upload,
// e.g. "zones/2/videos/<uuid>.mp4".
func ZoneVideoKey(zone int, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	return fmt.Sprintf("zones/%d/videos/%s%s", zone, uuid.NewString(), ext)
}

// IsZoneVideoKey reports whether key was produced by ZoneVideoKey for zone.
func IsZoneVideoKey(zone int, key string) bool {
	return strings.HasPrefix(key, fmt.Sprintf("zones/%d/videos/", zone)) && !strings.Contains(key, "..")
}
