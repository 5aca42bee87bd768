// Package storage holds the object-storage collaborator used for post images.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"path"
	"strings"

	_ "golang.org/x/image/webp"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/quillworks/quill/config"
	"github.com/quillworks/quill/models"
)

// ImageStorage is the collaborator contract the content service needs:
// upload returns full image metadata, delete is best-effort on the caller's
// side and just reports its error.
type ImageStorage interface {
	Upload(ctx context.Context, data []byte, filename string) (*models.ImageMeta, error)
	Delete(ctx context.Context, providerID string) error
}

const uploadFolder = "posts"

// MinIOStorage stores images in a MinIO (S3-compatible) bucket.
type MinIOStorage struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinIOStorage connects to MinIO and ensures the configured bucket exists.
func NewMinIOStorage(ctx context.Context, cfg config.AppConfig) (*MinIOStorage, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connect: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio bucket create: %w", err)
		}
	}

	publicURL := cfg.MinioPublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.MinioUseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s", scheme, cfg.MinioEndpoint)
	}

	return &MinIOStorage{
		client:    client,
		bucket:    cfg.MinioBucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}, nil
}

// Upload stores the image bytes under a unique object name and returns its
// metadata. Dimensions are probed from the image header; a file that does not
// decode as an image is rejected.
func (s *MinIOStorage) Upload(ctx context.Context, data []byte, filename string) (*models.ImageMeta, error) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if ext == "" {
		return nil, fmt.Errorf("missing file extension")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	contentType := mime.TypeByExtension("." + ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectName := fmt.Sprintf("%s/%s.%s", uploadFolder, uuid.NewString(), ext)
	_, err = s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType:  contentType,
			UserMetadata: map[string]string{"original-filename": path.Base(filename)},
		})
	if err != nil {
		return nil, fmt.Errorf("minio upload: %w", err)
	}

	return &models.ImageMeta{
		URL:        fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, objectName),
		ProviderID: objectName,
		Width:      cfg.Width,
		Height:     cfg.Height,
		SizeBytes:  int64(len(data)),
		Format:     format,
	}, nil
}

// Delete removes a stored object by its provider id.
func (s *MinIOStorage) Delete(ctx context.Context, providerID string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, providerID, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio delete %s: %w", providerID, err)
	}
	return nil
}
