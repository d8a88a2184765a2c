package firebase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StorageClient abstracts product image storage for dependency injection and testing.
type StorageClient interface {
	UploadProductImage(ctx context.Context, file io.Reader, filename, contentType string) (string, error)
	DeleteFile(ctx context.Context, objectPath string) error
	MirrorImage(ctx context.Context, imageURL, productID string) (string, error)
}

var ErrStorageNotConfigured = errors.New("firebase storage bucket not configured")

// BucketStorage stores objects in the app's Firebase Storage bucket.
type BucketStorage struct {
	app        *firebase.App
	bucket     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewStorageClient(app *firebase.App, bucket string, logger *zap.Logger) *BucketStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BucketStorage{
		app:        app,
		bucket:     bucket,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (s *BucketStorage) handle(ctx context.Context) (*storage.BucketHandle, error) {
	if s.app == nil || s.bucket == "" {
		return nil, ErrStorageNotConfigured
	}
	client, err := s.app.Storage(ctx)
	if err != nil {
		return nil, err
	}
	return client.Bucket(s.bucket)
}

// write streams r into objectPath, makes it public and returns its URL.
func (s *BucketStorage) write(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	bucket, err := s.handle(ctx)
	if err != nil {
		return "", err
	}

	obj := bucket.Object(objectPath)
	wc := obj.NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := io.Copy(wc, r); err != nil {
		wc.Close()
		return "", err
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload: %w", err)
	}

	if err := obj.ACL().Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
		s.logger.Warn("failed to set public ACL", zap.String("object", objectPath), zap.Error(err))
	}

	return PublicURL(s.bucket, objectPath), nil
}

func (s *BucketStorage) UploadProductImage(ctx context.Context, file io.Reader, filename, contentType string) (string, error) {
	objectPath := fmt.Sprintf("products/%d_%s", time.Now().Unix(), sanitizeFilename(filename))
	return s.write(ctx, objectPath, contentType, file)
}

func (s *BucketStorage) DeleteFile(ctx context.Context, objectPath string) error {
	bucket, err := s.handle(ctx)
	if err != nil {
		return err
	}
	if err := bucket.Object(objectPath).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", objectPath, err)
	}
	s.logger.Info("deleted file", zap.String("object", objectPath), zap.String("bucket", s.bucket))
	return nil
}

// MirrorImage copies a remote image into the bucket under the product's id.
func (s *BucketStorage) MirrorImage(ctx context.Context, imageURL, productID string) (string, error) {
	if err := validateExternalURL(imageURL); err != nil {
		return "", fmt.Errorf("URL validation failed for %s: %w", imageURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download image from %s: %w", imageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("URL %s returned non-image content-type %q", imageURL, contentType)
	}

	objectPath := fmt.Sprintf("products/%s_%s.jpg", sanitizeFilename(productID), uuid.New().String()[:8])
	return s.write(ctx, objectPath, contentType, resp.Body)
}

func PublicURL(bucket, objectPath string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, objectPath)
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// sanitizeFilename removes special characters from filenames and limits length.
func sanitizeFilename(filename string) string {
	sanitized := unsafeFilenameChars.ReplaceAllString(filename, "_")
	if len(sanitized) > 100 {
		sanitized = sanitized[:100]
	}
	if sanitized == "" || sanitized == "." || sanitized == ".." {
		sanitized = "file"
	}
	return sanitized
}

var privateRanges = []*net.IPNet{
	parseCIDR("10.0.0.0/8"),
	parseCIDR("172.16.0.0/12"),
	parseCIDR("192.168.0.0/16"),
	parseCIDR("127.0.0.0/8"),
	parseCIDR("169.254.0.0/16"),
	parseCIDR("0.0.0.0/8"),
	parseCIDR("::1/128"),
	parseCIDR("fc00::/7"),
	parseCIDR("fe80::/10"),
}

func isPrivateIP(ip net.IP) bool {
	for _, network := range privateRanges {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func parseCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("invalid CIDR: %s", cidr))
	}
	return network
}

// validateExternalURL rejects URLs that are not http(s) or that resolve to
// private addresses.
func validateExternalURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme %q is not allowed", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("URL has no hostname")
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("requests to localhost are not allowed")
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("failed to resolve hostname %q: %w", host, err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("URL resolves to private IP address %s", ip)
		}
	}
	return nil
}
