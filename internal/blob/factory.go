package blob

import (
	"context"
	"fmt"
	"strings"

	"albuminome/internal/infra/blob/fs"
	memorystore "albuminome/internal/infra/blob/memory"
	infraS3 "albuminome/internal/infra/blob/s3"
)

// S3Config configures the S3 backend.
type S3Config = infraS3.Config

// Config selects and configures a backend.
type Config struct {
	Driver Driver   `yaml:"driver"`
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// Environment variables read by ApplyEnv.
const (
	EnvDriver     = "ALBUMINOME_BLOB_DRIVER"
	EnvFSRoot     = "ALBUMINOME_BLOB_FS_ROOT"
	EnvS3Bucket   = "ALBUMINOME_BLOB_S3_BUCKET"
	EnvS3Region   = "ALBUMINOME_BLOB_S3_REGION"
	EnvS3Endpoint = "ALBUMINOME_BLOB_S3_ENDPOINT"
	EnvS3PathSty  = "ALBUMINOME_BLOB_S3_PATH_STYLE"
)

// ApplyEnv overlays non-empty environment values onto cfg.
func (cfg Config) ApplyEnv(getenv func(string) string) Config {
	if v := getenv(EnvDriver); v != "" {
		cfg.Driver = Driver(v)
	}
	if v := getenv(EnvFSRoot); v != "" {
		cfg.FSRoot = v
	}
	if v := getenv(EnvS3Bucket); v != "" {
		cfg.S3.Bucket = v
	}
	if v := getenv(EnvS3Region); v != "" {
		cfg.S3.Region = v
	}
	if v := getenv(EnvS3Endpoint); v != "" {
		cfg.S3.Endpoint = v
	}
	if v := getenv(EnvS3PathSty); v != "" {
		cfg.S3.PathStyle = strings.EqualFold(v, "true")
	}
	return cfg
}

// Open constructs the configured backend. The filesystem driver is the
// default.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewFilesystem returns a store rooted at root.
func NewFilesystem(root string) (Store, error) { return fs.New(root) }

// NewMemory returns an in-process store.
func NewMemory() Store { return memorystore.New() }

// NewS3 returns an S3-backed store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) { return infraS3.New(ctx, cfg) }

// NewMockS3ForTests returns an S3 store backed by an emulated transport.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
