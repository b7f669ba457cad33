// Package storage keeps candidate documents (resumes, transcripts, project
// files) on local disk or in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/pavelanni/cloudhire/internal/model"
)

// MaxUploadSize caps a single uploaded document.
const MaxUploadSize = 10 << 20

// ErrNotFound is returned by Get for a missing object.
var ErrNotFound = errors.New("object not found")

// FileStore stores and retrieves objects by bucket and key.
type FileStore interface {
	Put(ctx context.Context, bucket, key, contentType string, body io.Reader) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// URL returns a direct download URL, or "" when objects must be streamed
	// through the application.
	URL(ctx context.Context, bucket, key string) (string, error)
}

var buckets = map[model.FileKind]string{
	model.FileResume:     "resumes",
	model.FileTranscript: "transcripts",
	model.FileProject:    "projects",
}

// BucketFor returns the bucket holding files of the given kind.
func BucketFor(kind model.FileKind) (string, error) {
	b, ok := buckets[kind]
	if !ok {
		return "", fmt.Errorf("unknown file kind %q", kind)
	}
	return b, nil
}

// ObjectKey builds "<candidateID>/<uuid>.<ext>" for an uploaded file name.
func ObjectKey(candidateID int64, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("%d/%s%s", candidateID, uuid.NewString(), ext)
}

// LocalStore keeps objects under Root/<bucket>/<key>.
type LocalStore struct {
	Root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{Root: root}, nil
}

func (l *LocalStore) path(bucket, key string) (string, error) {
	clean := path.Clean("/" + key)
	if strings.Contains(bucket, "/") || bucket == "" || clean == "/" {
		return "", fmt.Errorf("invalid object location %s/%s", bucket, key)
	}
	return filepath.Join(l.Root, bucket, filepath.FromSlash(clean)), nil
}

// Put writes the object, creating parent directories.
func (l *LocalStore) Put(_ context.Context, bucket, key, _ string, body io.Reader) error {
	p, err := l.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Get reads the whole object.
func (l *LocalStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	p, err := l.path(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// URL always returns "": local files are served by the application.
func (l *LocalStore) URL(context.Context, string, string) (string, error) {
	return "", nil
}
