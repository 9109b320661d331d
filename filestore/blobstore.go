// Package filestore persists uploaded file blobs. Metadata lives in the
// object repository; this package only moves bytes. The filesystem store
// lays blobs out as <files_root>/<uuid>/<sanitized name> and writes them
// atomically (temp file + rename). An S3-backed store offers the same
// contract for bucket deployments.
package filestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sharedcode/grader"
)

// Directory/File permission.
const permission os.FileMode = 0o755

// BlobStore stores uploaded file content addressed by the owning File
// record's UUID. Write returns the path recorded on the File record; Read
// and Remove take that same path back.
type BlobStore interface {
	Write(ctx context.Context, id grader.UUID, name string, source io.Reader) (string, error)
	Read(ctx context.Context, path string) ([]byte, error)
	// Remove deletes the blob and its per-UUID container (directory or key prefix).
	Remove(ctx context.Context, path string) error
}

// SanitizeName reduces an uploaded filename to a safe single path element.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == string(os.PathSeparator) || name == "" {
		return "file"
	}
	return name
}

type blobStore struct {
	root   string
	fileIO FileIO
}

// NewBlobStore instantiates a blob store over the local filesystem rooted at
// the configured files root.
func NewBlobStore(filesRoot string, fileIO FileIO) BlobStore {
	if fileIO == nil {
		fileIO = NewFileIO()
	}
	return &blobStore{
		root:   filesRoot,
		fileIO: fileIO,
	}
}

func (b blobStore) Write(ctx context.Context, id grader.UUID, name string, source io.Reader) (string, error) {
	dir := filepath.Join(b.root, id.String())
	if err := b.fileIO.MkdirAll(ctx, dir, permission); err != nil {
		return "", err
	}
	fn := filepath.Join(dir, SanitizeName(name))

	// Write to a temp file in the same directory then rename, so a reader
	// never observes a half-written blob.
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", grader.Error{Code: grader.FileIOError, Err: err, UserData: fn}
	}
	if _, err := io.Copy(tmp, source); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", grader.Error{Code: grader.FileIOError, Err: err, UserData: fn}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", grader.Error{Code: grader.FileIOError, Err: err, UserData: fn}
	}
	if err := os.Rename(tmp.Name(), fn); err != nil {
		os.Remove(tmp.Name())
		return "", grader.Error{Code: grader.FileIOError, Err: err, UserData: fn}
	}
	return fn, nil
}

func (b blobStore) Read(ctx context.Context, path string) ([]byte, error) {
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(b.root)+string(os.PathSeparator)) {
		return nil, grader.Error{Code: grader.FileIOError, UserData: path,
			Err: fmt.Errorf("blob path escapes files root")}
	}
	return b.fileIO.ReadFile(ctx, path)
}

func (b blobStore) Remove(ctx context.Context, path string) error {
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(b.root)+string(os.PathSeparator)) {
		return grader.Error{Code: grader.FileIOError, UserData: path,
			Err: fmt.Errorf("blob path escapes files root")}
	}
	// Do nothing if file already not existent.
	if !b.fileIO.Exists(ctx, path) {
		return nil
	}
	// The per-UUID directory goes with the blob.
	return b.fileIO.RemoveAll(ctx, filepath.Dir(path))
}
