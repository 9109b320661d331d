package main

import (
	"testing"

	"github.com/sharedcode/grader"
)

func TestNewBlobStoreSelection(t *testing.T) {
	cfg := grader.DefaultConfig()
	cfg.FilesRoot = t.TempDir()

	// Empty and "fs" both select the filesystem backend.
	for _, sel := range []string{"", grader.FilesStoreFS} {
		cfg.FilesStore = sel
		if bs, err := newBlobStore(cfg); err != nil || bs == nil {
			t.Errorf("files_store %q = %v, %v", sel, bs, err)
		}
	}

	cfg.FilesStore = grader.FilesStoreS3
	cfg.FilesS3 = grader.S3StoreConfig{
		Endpoint: "http://127.0.0.1:9000",
		Region:   "us-east-1",
		Username: "minio",
		Password: "minio123",
		Bucket:   "grader-files",
	}
	if bs, err := newBlobStore(cfg); err != nil || bs == nil {
		t.Errorf("s3 backend = %v, %v", bs, err)
	}

	cfg.FilesStore = "tape"
	if _, err := newBlobStore(cfg); err == nil {
		t.Error("unknown backend did not error")
	}
}
