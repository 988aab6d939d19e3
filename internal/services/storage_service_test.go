package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageService_Upload(t *testing.T) {
	var (
		gotPath   string
		gotAuth   string
		gotKey    string
		gotType   string
		gotUpsert string
		gotBody   []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("apikey")
		gotType = r.Header.Get("Content-Type")
		gotUpsert = r.Header.Get("x-upsert")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"Key":"comprobantes/receipts/a.png"}`))
	}))
	defer server.Close()

	s := NewStorageService(server.URL+"/", "service-key", "comprobantes")

	url, err := s.Upload(context.Background(), "/receipts/a.png", "image/png", []byte("png-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "/storage/v1/object/comprobantes/receipts/a.png", gotPath)
	assert.Equal(t, "Bearer service-key", gotAuth)
	assert.Equal(t, "service-key", gotKey)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, "true", gotUpsert)
	assert.Equal(t, []byte("png-bytes"), gotBody)
	assert.Equal(t, server.URL+"/storage/v1/object/public/comprobantes/receipts/a.png", url)
}

func TestStorageService_UploadRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"new row violates row-level security policy"}`))
	}))
	defer server.Close()

	s := NewStorageService(server.URL, "bad-key", "comprobantes")

	_, err := s.Upload(context.Background(), "receipts/a.png", "image/png", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExternalService))
	assert.Contains(t, err.Error(), "403")
}

func TestStorageService_EmptyBody(t *testing.T) {
	s := NewStorageService("http://127.0.0.1:1", "k", "b")

	_, err := s.Upload(context.Background(), "receipts/a.png", "image/png", nil)
	assert.True(t, errors.Is(err, ErrExternalService))
}
