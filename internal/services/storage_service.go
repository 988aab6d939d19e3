package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ObjectStorage stores artifacts and returns their public URL
type ObjectStorage interface {
	Upload(ctx context.Context, objectPath, contentType string, body []byte) (string, error)
}

// StorageService talks to a Supabase-compatible storage REST API
type StorageService struct {
	client  *resty.Client
	baseURL string
	bucket  string
}

// NewStorageService creates a storage client for one bucket
func NewStorageService(baseURL, serviceKey, bucket string) *StorageService {
	baseURL = strings.TrimRight(baseURL, "/")
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15*time.Second).
		SetAuthToken(serviceKey).
		SetHeader("apikey", serviceKey)

	return &StorageService{client: client, baseURL: baseURL, bucket: bucket}
}

// Upload writes body to objectPath, overwriting any previous object
func (s *StorageService) Upload(ctx context.Context, objectPath, contentType string, body []byte) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("%w: refusing to upload empty object %s", ErrExternalService, objectPath)
	}
	objectPath = strings.TrimLeft(objectPath, "/")

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetHeader("x-upsert", "true").
		SetBody(body).
		Post(fmt.Sprintf("/storage/v1/object/%s/%s", s.bucket, objectPath))
	if err != nil {
		return "", fmt.Errorf("%w: upload %s: %v", ErrExternalService, objectPath, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: upload %s: status %d: %s", ErrExternalService, objectPath, resp.StatusCode(), resp.String())
	}

	return s.PublicURL(objectPath), nil
}

// PublicURL is where a stored object can be fetched without credentials
func (s *StorageService) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, strings.TrimLeft(objectPath, "/"))
}
