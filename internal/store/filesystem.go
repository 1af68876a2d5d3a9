package store

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileStore persists blobs onto the local filesystem and issues expiring
// retrieval URLs. It is intended for development and test environments where
// an object storage service is not available.
type FileStore struct {
	basePath string
	baseURL  string
	secret   []byte
	urlTTL   time.Duration
	now      func() time.Time
}

// FileStoreOptions configures a FileStore.
type FileStoreOptions struct {
	BasePath string
	BaseURL  string
	Secret   string
	URLTTL   time.Duration
	Now      func() time.Time
}

// NewFileStore initializes a FileStore rooted at opts.BasePath.
func NewFileStore(opts FileStoreOptions) (*FileStore, error) {
	basePath := strings.TrimSpace(opts.BasePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	ttl := opts.URLTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &FileStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		secret:   []byte(opts.Secret),
		urlTTL:   ttl,
		now:      now,
	}, nil
}

// Put persists the provided bytes at the given relative path and returns the
// canonicalized blob id. Paths are cleaned to prevent directory traversal.
func (s *FileStore) Put(ctx context.Context, path string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(path)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return cleanKey, nil
}

// TempURL returns a time-limited retrieval URL for the blob id. The expiry and
// signature ride along as query parameters; VerifyTempURL checks them on the
// serving side.
func (s *FileStore) TempURL(ctx context.Context, blobID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(blobID)
	if err != nil {
		return "", err
	}
	expires := s.now().Add(s.urlTTL).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.signKey(cleanKey, expires))
	return fmt.Sprintf("%s/%s?%s", s.baseURL, cleanKey, q.Encode()), nil
}

// VerifyTempURL checks the expiry and signature pair handed out by TempURL.
func (s *FileStore) VerifyTempURL(blobID, expiresParam, sig string) error {
	cleanKey, err := sanitizeKey(blobID)
	if err != nil {
		return err
	}
	expires, err := strconv.ParseInt(expiresParam, 10, 64)
	if err != nil {
		return errors.New("storage: invalid expiry")
	}
	if s.now().Unix() > expires {
		return errors.New("storage: url expired")
	}
	want := s.signKey(cleanKey, expires)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return errors.New("storage: signature mismatch")
	}
	return nil
}

// Open returns the on-disk path for a verified blob id.
func (s *FileStore) Open(blobID string) (string, error) {
	cleanKey, err := sanitizeKey(blobID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(cleanKey)), nil
}

func (s *FileStore) signKey(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

var _ BlobStore = (*FileStore)(nil)
