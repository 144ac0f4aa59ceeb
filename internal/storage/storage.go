package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store persists attachment payloads outside the database. Save returns an
// opaque reference later passed to Open and Delete.
type Store interface {
	Save(ctx context.Context, ticketID int, filename string, data []byte) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
}

// FilesystemStore lays attachments out as YYYY/MM/<ticket>/<uuid><ext> under a
// base directory. References are paths relative to the base directory.
type FilesystemStore struct {
	basePath string
}

func NewFilesystemStore(basePath string) (*FilesystemStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage base path: %w", err)
	}
	return &FilesystemStore{basePath: basePath}, nil
}

func (s *FilesystemStore) Save(_ context.Context, ticketID int, filename string, data []byte) (string, error) {
	now := time.Now()
	relDir := filepath.Join(now.Format("2006"), now.Format("01"), fmt.Sprintf("%d", ticketID))
	dir := filepath.Join(s.basePath, relDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create attachment directory: %w", err)
	}

	name := uuid.NewString() + sanitizeExtension(filename)
	ref := filepath.Join(relDir, name)
	if err := os.WriteFile(filepath.Join(s.basePath, ref), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}
	return ref, nil
}

func (s *FilesystemStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open attachment: %w", err)
	}
	return file, nil
}

func (s *FilesystemStore) Delete(_ context.Context, ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return nil
}

// resolve rejects references that would escape the base directory.
func (s *FilesystemStore) resolve(ref string) (string, error) {
	cleaned := filepath.Clean(ref)
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid attachment reference %q", ref)
	}
	return filepath.Join(s.basePath, cleaned), nil
}

func sanitizeExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 10 {
		return ""
	}
	for _, r := range ext {
		if r != '.' && !isExtensionRune(r) {
			return ""
		}
	}
	return ext
}

func isExtensionRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
