package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"alcyxob/wellness-program/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestZoneVideoKey(t *testing.T) {
	key := ZoneVideoKey(3, "Breathing Intro.MP4")
	assert.True(t, strings.HasPrefix(key, "zones/3/videos/"))
	assert.True(t, strings.HasSuffix(key, ".mp4"))
	assert.True(t, IsZoneVideoKey(3, key))
	assert.False(t, IsZoneVideoKey(2, key))
	assert.False(t, IsZoneVideoKey(3, "zones/3/videos/../../secret"))
	assert.NotEqual(t, key, ZoneVideoKey(3, "Breathing Intro.MP4"))
}

func TestS3Storage_PresignsAgainstCustomEndpoint(t *testing.T) {
	fs, err := NewS3Storage(context.Background(), config.S3Config{
		Endpoint:        "http://localhost:9000",
		Region:          "us-east-1",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		BucketName:      "zone-videos",
	}, zap.NewNop())
	require.NoError(t, err)

	raw, err := fs.GeneratePresignedDownloadURL(context.Background(), "zones/1/videos/a.mp4", time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/zone-videos/zones/1/videos/a.mp4", u.Path)
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}
