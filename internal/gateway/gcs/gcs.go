// Package gcs stores registration artifacts in Google Cloud Storage.
//
// Object layout (single bucket):
//
//	<category>/<ownerID>/<uuid>-<fileName>
//
// e.g. drivers/selfie_photo/6f1c.../0b8e...-selfie.jpg
//
// Public access is expected to come from bucket-level IAM (allUsers: Storage Object Viewer),
// so uploaded objects are readable without per-object ACL changes.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/mmynk/orderstate/internal/gateway"
	"github.com/mmynk/orderstate/internal/models"
)

// Ensure ArtifactStore implements gateway.ArtifactStore
var _ gateway.ArtifactStore = (*ArtifactStore)(nil)

// ArtifactStore uploads artifacts to a GCS bucket.
type ArtifactStore struct {
	Client *storage.Client
	Bucket string

	// PublicBaseURL prefixes returned references. Defaults to https://storage.googleapis.com.
	PublicBaseURL string
}

// New creates an ArtifactStore with its own storage client.
// credentialsFile may be empty to use application default credentials.
func New(ctx context.Context, bucket, credentialsFile string) (*ArtifactStore, error) {
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &ArtifactStore{
		Client:        client,
		Bucket:        strings.TrimSpace(bucket),
		PublicBaseURL: "https://storage.googleapis.com",
	}, nil
}

// Close closes the underlying client.
func (s *ArtifactStore) Close() error {
	if s == nil || s.Client == nil {
		return nil
	}
	return s.Client.Close()
}

func (s *ArtifactStore) bucket() (*storage.BucketHandle, error) {
	if s == nil || s.Client == nil {
		return nil, errors.New("gcs: storage client is nil")
	}
	if s.Bucket == "" {
		return nil, errors.New("gcs: bucket is empty")
	}
	return s.Client.Bucket(s.Bucket), nil
}

// UploadArtifact writes a under ObjectPath(category, ownerID, a.FileName) and returns its public URL.
func (s *ArtifactStore) UploadArtifact(ctx context.Context, a models.Artifact, category, ownerID string) (string, error) {
	bh, err := s.bucket()
	if err != nil {
		return "", err
	}
	if len(a.Data) == 0 {
		return "", fmt.Errorf("gcs: artifact %q is empty", a.FileName)
	}

	objectPath := ObjectPath(category, ownerID, a.FileName)
	w := bh.Object(objectPath).NewWriter(ctx)
	w.ContentType = a.ContentType
	if w.ContentType == "" {
		w.ContentType = "application/octet-stream"
	}
	w.CacheControl = "public, max-age=31536000"

	if _, err := w.Write(a.Data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write %s: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize %s: %w", objectPath, err)
	}

	return PublicURL(s.PublicBaseURL, s.Bucket, objectPath), nil
}

// ObjectPath builds the object name for an upload.
func ObjectPath(category, ownerID, fileName string) string {
	name := path.Base(strings.TrimSpace(fileName))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	return path.Join(
		strings.Trim(category, "/"),
		strings.Trim(ownerID, "/"),
		uuid.New().String()+"-"+name,
	)
}

// PublicURL builds a public object URL.
func PublicURL(baseURL, bucket, objectPath string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "https://storage.googleapis.com"
	}
	return fmt.Sprintf("%s/%s/%s", base, bucket, strings.TrimLeft(objectPath, "/"))
}
