package filestore

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/sharedcode/grader"
)

// ZipEntry is one extractable file inside an uploaded archive.
type ZipEntry struct {
	// Name is the entry's base filename.
	Name string
	// Open yields the entry content.
	Open func() (io.ReadCloser, error)
}

// ZipEntries lists the regular files inside a zip archive. Directories are
// skipped; absolute entry paths and ".." traversal are rejected outright so
// a hostile archive cannot address anything outside its extraction target.
func ZipEntries(r io.ReaderAt, size int64) ([]ZipEntry, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, grader.Error{Code: grader.MalformedInput, Err: err}
	}
	var entries []ZipEntry
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := f.Name
		if strings.HasPrefix(name, "/") || strings.HasPrefix(name, "\\") {
			return nil, grader.Error{Code: grader.MalformedInput, UserData: name,
				Err: fmt.Errorf("archive entry has absolute path")}
		}
		clean := path.Clean(strings.ReplaceAll(name, "\\", "/"))
		if clean == ".." || strings.HasPrefix(clean, "../") {
			return nil, grader.Error{Code: grader.MalformedInput, UserData: name,
				Err: fmt.Errorf("archive entry escapes extraction root")}
		}
		entries = append(entries, ZipEntry{
			Name: path.Base(clean),
			Open: f.Open,
		})
	}
	return entries, nil
}

// ArchiveKey is the File key stamped on every record extracted from a zip.
func ArchiveKey(archiveName string) string {
	return "from_" + SanitizeName(archiveName)
}
