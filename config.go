package grader

import (
	"encoding/json"
	"os"
	"time"
)

// StoreConfig holds configuration for connecting to the Redis object store.
type StoreConfig struct {
	// Host is the hostname of the Redis server/cluster.
	Host string `json:"host"`
	// Port is the port of the Redis server/cluster.
	Port int `json:"port"`
	// DB is the database index to select.
	DB int `json:"db"`
	// Password is the password used to authenticate.
	Password string `json:"password,omitempty"`
}

// SandboxLimits holds the OS resource limits applied to every graded process.
type SandboxLimits struct {
	// CPUSeconds caps consumed CPU time.
	CPUSeconds int `json:"cpu"`
	// MemoryBytes caps the address space.
	MemoryBytes int64 `json:"mem"`
	// Processes caps the process/thread count, the fork bomb stopper.
	Processes int `json:"procs"`
	// OpenFiles caps open file descriptors.
	OpenFiles int `json:"fds"`
	// WallSeconds is the wall-clock watchdog; exceeding it yields retcode 124.
	WallSeconds int `json:"wall"`
}

// Wall returns the wall-clock limit as a duration.
func (l SandboxLimits) Wall() time.Duration {
	return time.Duration(l.WallSeconds) * time.Second
}

// MoodleConfig holds the Moodle web service endpoint and credentials used by
// the moodle reporter.
type MoodleConfig struct {
	Host     string `json:"host"`
	Username string `json:"username"`
	Password string `json:"password"`
	Service  string `json:"service"`
}

// Blob store backends selectable via Config.FilesStore.
const (
	FilesStoreFS = "fs"
	FilesStoreS3 = "s3"
)

// S3StoreConfig holds the bucket settings for the s3 blob backend. The
// endpoint may be AWS S3 or any compatible server such as minio.
type S3StoreConfig struct {
	Endpoint string `json:"endpoint"`
	Region   string `json:"region"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Bucket   string `json:"bucket"`
}

// Config is the process-wide grader service configuration.
type Config struct {
	Store StoreConfig `json:"store"`
	// FilesStore selects the blob backend, "fs" or "s3". Empty means "fs".
	FilesStore string `json:"files_store"`
	// FilesRoot is the base directory for uploaded file blobs (fs backend).
	FilesRoot string `json:"files_root"`
	// FilesS3 configures the s3 backend; read when FilesStore is "s3".
	FilesS3 S3StoreConfig `json:"files_s3"`
	// SandboxLimits applies to every spawned grader/submission process.
	SandboxLimits SandboxLimits `json:"sandbox_limits"`
	// WorkerCount is the number of parallel run workers.
	WorkerCount int `json:"worker_count"`
	// QueueDepth bounds the pending run queue; overflow refuses new runs.
	QueueDepth int `json:"queue_depth"`
	// Moodle configures the moodle reporter back-end.
	Moodle MoodleConfig `json:"reporter_moodle"`
}

// DefaultConfig returns a config suitable for a standalone dev deployment.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Host: "localhost",
			Port: 6379,
			DB:   4,
		},
		FilesStore: FilesStoreFS,
		FilesRoot:  "/var/lib/grader/files",
		SandboxLimits: SandboxLimits{
			CPUSeconds:  10,
			MemoryBytes: 512 * 1024 * 1024,
			Processes:   64,
			OpenFiles:   256,
			WallSeconds: 30,
		},
		WorkerCount: 4,
		QueueDepth:  128,
	}
}

// LoadConfig reads a JSON config file, layering it over DefaultConfig.
// Secrets can be supplied via the GRADER_STORE_PASSWORD, GRADER_MOODLE_PASSWORD
// and GRADER_S3_PASSWORD env vars which override the file values when set.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	ba, err := os.ReadFile(path)
	if err != nil {
		return c, Error{Code: FileIOError, Err: err, UserData: path}
	}
	if err := json.Unmarshal(ba, &c); err != nil {
		return c, Error{Code: MalformedInput, Err: err, UserData: path}
	}
	if v := os.Getenv("GRADER_STORE_PASSWORD"); v != "" {
		c.Store.Password = v
	}
	if v := os.Getenv("GRADER_MOODLE_PASSWORD"); v != "" {
		c.Moodle.Password = v
	}
	if v := os.Getenv("GRADER_S3_PASSWORD"); v != "" {
		c.FilesS3.Password = v
	}
	return c, nil
}
