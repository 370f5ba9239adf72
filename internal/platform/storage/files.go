package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/gosimple/slug"
)

// Archive MIME types accepted for question attachments.
var allowedMIMETypes = map[string]bool{
	"application/zip":              true,
	"application/x-zip-compressed": true,
	"application/x-tar":            true,
	"application/gzip":             true,
	"application/x-gzip":           true,
	"application/x-7z-compressed":  true,
	"application/x-rar-compressed": true,
	"application/vnd.rar":          true,
}

func IsAllowedMIMEType(contentType string) bool {
	return allowedMIMETypes[contentType]
}

// FileStore writes question attachments under baseDir/<slug(title)>/<filename>.
type FileStore struct {
	baseDir string
}

func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

// Save stores an uploaded attachment and returns the path relative to the
// store root. The caller is responsible for removing the file if the
// enclosing database transaction rolls back.
func (s *FileStore) Save(questionTitle string, header *multipart.FileHeader) (string, error) {
	src, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("storage.Save open: %w", err)
	}
	defer src.Close()

	relPath := filepath.Join(slug.Make(questionTitle), filepath.Base(header.Filename))
	absPath := filepath.Join(s.baseDir, relPath)

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", fmt.Errorf("storage.Save mkdir: %w", err)
	}

	dst, err := os.Create(absPath)
	if err != nil {
		return "", fmt.Errorf("storage.Save create: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(absPath)
		return "", fmt.Errorf("storage.Save copy: %w", err)
	}
	return relPath, nil
}

// Remove deletes a stored attachment and its directory if now empty.
// Used both for post-commit deletes and compensating cleanup on rollback.
func (s *FileStore) Remove(relPath string) error {
	if relPath == "" {
		return nil
	}
	absPath := filepath.Join(s.baseDir, relPath)
	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage.Remove: %w", err)
	}
	os.Remove(filepath.Dir(absPath)) // best effort, fails while non-empty
	return nil
}

// Open returns a reader over a stored attachment for download streaming.
func (s *FileStore) Open(relPath string) (*os.File, error) {
	return os.Open(filepath.Join(s.baseDir, relPath))
}
