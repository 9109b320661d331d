package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	log "log/slog"

	"github.com/sharedcode/grader"
	"github.com/sharedcode/grader/engine"
	"github.com/sharedcode/grader/filestore"
	"github.com/sharedcode/grader/rest_api"
	"github.com/sharedcode/grader/store"
)

// @title Grader REST API
// @version 1.0
// @description Online grading service for programming assignments.
// @securityDefinitions.basic BasicAuth

func main() {
	configPath := flag.String("config", "", "path to a JSON config file; defaults apply when empty")
	addr := flag.String("addr", "localhost:8080", "listen address")
	flag.Parse()

	grader.ConfigureLogging()

	cfg := grader.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = grader.LoadConfig(*configPath); err != nil {
			log.Error("config load failed", "path", *configPath, "error", err)
			os.Exit(1)
		}
	}

	if _, err := store.OpenConnection(store.OptionsFor(
		cfg.Store.Host, cfg.Store.Port, cfg.Store.DB, cfg.Store.Password)); err != nil {
		log.Error("store connection failed", "error", err)
		os.Exit(1)
	}
	defer store.CloseConnection()

	blobs, err := newBlobStore(cfg)
	if err != nil {
		log.Error("blob store setup failed", "error", err)
		os.Exit(1)
	}
	srv := engine.NewServer(&cfg, store.NewClient(), blobs)
	srv.Start(context.Background())

	if err := rest_api.Main(*addr, srv); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// newBlobStore picks the blob backend from the files_store config switch.
func newBlobStore(cfg grader.Config) (filestore.BlobStore, error) {
	switch cfg.FilesStore {
	case "", grader.FilesStoreFS:
		return filestore.NewBlobStore(cfg.FilesRoot, nil), nil
	case grader.FilesStoreS3:
		client := filestore.Connect(filestore.S3Config{
			HostEndpointUrl: cfg.FilesS3.Endpoint,
			Region:          cfg.FilesS3.Region,
			Username:        cfg.FilesS3.Username,
			Password:        cfg.FilesS3.Password,
			Bucket:          cfg.FilesS3.Bucket,
		})
		return filestore.NewS3BlobStore(client, cfg.FilesS3.Bucket), nil
	}
	return nil, fmt.Errorf("unknown files_store %q", cfg.FilesStore)
}
