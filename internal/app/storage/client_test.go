package storage

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) StorageService {
	t.Helper()
	t.Setenv("AWS_CONFIG_FILE", t.TempDir()+"/config")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", t.TempDir()+"/credentials")

	svc, err := NewStorageService(context.Background(), ServiceConfig{
		S3BucketName:      "chat-attachments",
		S3Endpoint:        "https://objects.example.test",
		S3AccessKeyID:     "test-key",
		S3SecretAccessKey: "test-secret",
	})
	require.NoError(t, err)
	return svc
}

func TestNewStorageService_RequiresBucket(t *testing.T) {
	_, err := NewStorageService(context.Background(), ServiceConfig{S3Endpoint: "https://objects.example.test"})
	require.Error(t, err)
}

func TestPresignUpload(t *testing.T) {
	req := require.New(t)
	svc := newTestService(t)

	raw, err := svc.PresignUpload(context.Background(), "attachments/alice/1.png", "image/png", 1024, 5*time.Minute)
	req.NoError(err)

	u, err := url.Parse(raw)
	req.NoError(err)
	req.Equal("objects.example.test", u.Host)
	req.Equal("/chat-attachments/attachments/alice/1.png", u.Path)
	req.Equal("300", u.Query().Get("X-Amz-Expires"))
}

func TestPresignDownload(t *testing.T) {
	req := require.New(t)
	svc := newTestService(t)

	raw, err := svc.PresignDownload(context.Background(), "attachments/bob/2.pdf", time.Minute)
	req.NoError(err)

	u, err := url.Parse(raw)
	req.NoError(err)
	req.Equal("/chat-attachments/attachments/bob/2.pdf", u.Path)
	req.Equal("60", u.Query().Get("X-Amz-Expires"))
	req.NotEmpty(u.Query().Get("X-Amz-Signature"))
}
