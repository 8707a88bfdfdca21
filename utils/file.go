package utils

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// FileStore keeps the attachment files of an application.
//
//go:generate mockgen -package=mocks -destination=mocks/mock_file_store.go childcare-enrollment/utils FileStore
type FileStore interface {
	// Save stores body under the application and returns the stored file name.
	Save(ctx context.Context, applicationID, filename, contentType string, body io.Reader) (string, error)
	// List returns the stored file names of an application, sorted.
	List(ctx context.Context, applicationID string) ([]string, error)
	// DeleteAll removes every file of an application.
	DeleteAll(ctx context.Context, applicationID string) error
}

// StoredName builds a collision-free, filesystem-safe name for an upload,
// e.g. "3f2a...-birth-certificate.pdf".
func StoredName(filename string) string {
	base := filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(base))
	stem := slug.Make(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" {
		stem = "file"
	}
	return uuid.NewString() + "-" + stem + ext
}

// LocalFileStore keeps attachments under Root/applications/<id>/.
type LocalFileStore struct {
	Root string
}

func NewLocalFileStore(root string) *LocalFileStore {
	return &LocalFileStore{Root: root}
}

// EnsureUploadDir creates the uploads directory if it doesn't exist
func (s *LocalFileStore) EnsureUploadDir() error {
	return os.MkdirAll(s.Root, os.ModePerm)
}

func (s *LocalFileStore) dir(applicationID string) string {
	return filepath.Join(s.Root, "applications", filepath.Base(applicationID))
}

func (s *LocalFileStore) Save(ctx context.Context, applicationID, filename, contentType string, body io.Reader) (string, error) {
	dir := s.dir(applicationID)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", err
	}

	name := StoredName(filename)
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, body); err != nil {
		return "", err
	}
	return name, nil
}

func (s *LocalFileStore) List(ctx context.Context, applicationID string) ([]string, error) {
	entries, err := os.ReadDir(s.dir(applicationID))
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *LocalFileStore) DeleteAll(ctx context.Context, applicationID string) error {
	return os.RemoveAll(s.dir(applicationID))
}
