package handlers

import (
	"context"
	"io"

	"noircafe-backend/firebase"
)

type mockStorage struct {
	UploadProductImageFn func(file io.Reader, filename, contentType string) (string, error)
	DeleteFileFn         func(objectPath string) error
	MirrorImageFn        func(imageURL, productID string) (string, error)
	DeleteFileCalls      []string
	MirrorCalls          []string
	UploadCallCount      int
}

func newMockStorage() *mockStorage {
	return &mockStorage{
		DeleteFileCalls: []string{},
	}
}

func (m *mockStorage) UploadProductImage(ctx context.Context, file io.Reader, filename, contentType string) (string, error) {
	m.UploadCallCount++
	if m.UploadProductImageFn != nil {
		return m.UploadProductImageFn(file, filename, contentType)
	}
	return "https://storage.googleapis.com/test-bucket/products/test_image.jpg", nil
}

func (m *mockStorage) DeleteFile(ctx context.Context, objectPath string) error {
	m.DeleteFileCalls = append(m.DeleteFileCalls, objectPath)
	if m.DeleteFileFn != nil {
		return m.DeleteFileFn(objectPath)
	}
	return nil
}

func (m *mockStorage) MirrorImage(ctx context.Context, imageURL, productID string) (string, error) {
	m.MirrorCalls = append(m.MirrorCalls, imageURL)
	if m.MirrorImageFn != nil {
		return m.MirrorImageFn(imageURL, productID)
	}
	return "https://storage.googleapis.com/test-bucket/products/" + productID + "_mirror.jpg", nil
}

// mockVerifier accepts the ID tokens registered in identities.
type mockVerifier struct {
	identities map[string]*firebase.Identity
	err        error
}

func (m *mockVerifier) Verify(ctx context.Context, idToken string) (*firebase.Identity, error) {
	if m.err != nil {
		return nil, m.err
	}
	identity, ok := m.identities[idToken]
	if !ok {
		return nil, firebase.ErrInvalidIDToken
	}
	return identity, nil
}
