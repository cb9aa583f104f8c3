package config

import (
	"errors"
	"time"
)

// ResultCodec selects how transformed bitmaps are persisted in the result cache.
type ResultCodec string

const (
	CodecPNG  ResultCodec = "png"
	CodecJPEG ResultCodec = "jpeg"
	CodecZstd ResultCodec = "zstd"
)

// Config is the top-level configuration struct.  All fields have safe defaults
// so callers can start with Config{} and override only what they need.
type Config struct {
	// Worker pool controls.
	WorkerCount int // default: runtime.NumCPU()
	QueueSize   int // max queued requests before backpressure; default: 256

	// Retry of transient fetch failures.
	MaxRetries int
	RetryDelay time.Duration

	// Streaming / memory limits.
	MaxImageBytes int64 // 0 = no limit
	ChunkSize     int   // streaming chunk size in bytes; default 32 KiB

	// In-memory caches. 0 = derive from the process memory limit.
	MemoryCacheBytes int64
	BitmapPoolBytes  int64

	// Disk caches.
	ResultCache   DiskCacheConfig
	DownloadCache DiskCacheConfig
	ResultCodec   ResultCodec
	JPEGQuality   int // used when ResultCodec is jpeg

	// Fetchers.
	HTTP HTTPConfig
	S3   S3Config

	// Size used by the display size resolver when a request has no explicit size.
	DisplayWidth  int
	DisplayHeight int

	// Logging.
	LogLevel string // "debug", "info", "warn", "error"
}

// DiskCacheConfig configures one on-disk cache.
type DiskCacheConfig struct {
	Dir      string // empty = disabled
	MaxBytes int64
}

// HTTPConfig configures the http(s) fetcher.
type HTTPConfig struct {
	Timeout   time.Duration
	UserAgent string
}

// S3Config configures the s3:// fetcher.
type S3Config struct {
	Region          string
	Endpoint        string // optional custom endpoint (MinIO, etc.)
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		WorkerCount: 0, // resolved at runtime to NumCPU
		QueueSize:   256,
		MaxRetries:  2,
		RetryDelay:  200 * time.Millisecond,
		ChunkSize:   32 * 1024,
		ResultCache: DiskCacheConfig{
			MaxBytes: 200 * 1024 * 1024,
		},
		DownloadCache: DiskCacheConfig{
			MaxBytes: 300 * 1024 * 1024,
		},
		ResultCodec: CodecPNG,
		JPEGQuality: 90,
		HTTP: HTTPConfig{
			Timeout:   20 * time.Second,
			UserAgent: "image-loader",
		},
		DisplayWidth:  1080,
		DisplayHeight: 1920,
		LogLevel:      "info",
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if c.ChunkSize <= 0 {
		return errors.New("config: ChunkSize must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("config: MaxRetries must not be negative")
	}
	if c.MemoryCacheBytes < 0 || c.BitmapPoolBytes < 0 {
		return errors.New("config: cache sizes must not be negative")
	}
	if c.ResultCache.Dir != "" && c.ResultCache.MaxBytes <= 0 {
		return errors.New("config: ResultCache.MaxBytes must be positive")
	}
	if c.DownloadCache.Dir != "" && c.DownloadCache.MaxBytes <= 0 {
		return errors.New("config: DownloadCache.MaxBytes must be positive")
	}
	switch c.ResultCodec {
	case CodecPNG, CodecZstd:
	case CodecJPEG:
		if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
			return errors.New("config: JPEGQuality must be between 1 and 100")
		}
	default:
		return errors.New("config: ResultCodec must be one of png, jpeg, zstd")
	}
	if c.DisplayWidth <= 0 || c.DisplayHeight <= 0 {
		return errors.New("config: display size must be positive")
	}
	return nil
}
