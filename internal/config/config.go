// Package config builds the immutable per-run configuration. Values come
// from an optional .env file plus the process environment, are validated
// once at startup, and are passed into components by value; nothing below
// the CLI reads the environment directly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EncoderGPU = "h264_nvenc"
	EncoderCPU = "libx264"
)

// Shard identifies this process in a set of cooperating instances that
// statically partition the work list. Instances share no state.
type Shard struct {
	Index int
	Total int
}

type RunConfig struct {
	// Source blob store (S3-compatible).
	SourceBucket    string
	SourceRegion    string
	SourceEndpoint  string // optional, for R2/MinIO style endpoints
	SourceAccessKey string
	SourceSecretKey string

	// Flat "already converted" prefix checked before any fetch. Empty
	// disables the blob-side existence probe.
	ConvertedPrefix string

	// Destination hierarchy.
	DriveRootFolderID string
	DriveCredentials  string // service-account JSON path
	DriveEnabled      bool

	// Transcode.
	Encoder      string // ffmpeg -c:v value
	VideoBitrate string // e.g. "1000k"; empty lets the encoder decide

	// Local scratch space and failure ledger.
	WorkDir      string
	ErrorLogPath string

	// Inline work list (comma-separated source keys); the CLI may override
	// it from a flag or file.
	WorkList string

	Shard Shard
}

// Load reads the optional env file, then the environment, and applies
// defaults. A missing env file is only an error when it was requested
// explicitly.
func Load(envFile string, explicit bool) (RunConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if explicit || !os.IsNotExist(err) {
				return RunConfig{}, fmt.Errorf("load env file %s: %w", envFile, err)
			}
		}
	}

	cfg := RunConfig{
		SourceBucket:      os.Getenv("S3_BUCKET"),
		SourceRegion:      getenvDefault("S3_REGION", "us-east-1"),
		SourceEndpoint:    os.Getenv("S3_ENDPOINT"),
		SourceAccessKey:   os.Getenv("S3_ACCESS_KEY_ID"),
		SourceSecretKey:   os.Getenv("S3_SECRET_ACCESS_KEY"),
		ConvertedPrefix:   os.Getenv("S3_CONVERTED_PREFIX"),
		DriveRootFolderID: os.Getenv("DRIVE_ROOT_FOLDER_ID"),
		DriveCredentials:  os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		VideoBitrate:      getenvDefault("TARGET_BITRATE", "1000k"),
		WorkDir:           getenvDefault("WORK_DIR", "work"),
		ErrorLogPath:      getenvDefault("ERROR_LOG", "failed_items.log"),
		WorkList:          os.Getenv("WORK_LIST"),
	}
	cfg.DriveEnabled = cfg.DriveRootFolderID != ""

	encoder, err := ParseEncoder(getenvDefault("ENCODER", "cpu"))
	if err != nil {
		return RunConfig{}, err
	}
	cfg.Encoder = encoder

	shard, err := parseShardEnv()
	if err != nil {
		return RunConfig{}, err
	}
	cfg.Shard = shard

	return cfg, nil
}

// ParseEncoder maps the user-facing encoder choice to the ffmpeg codec name.
func ParseEncoder(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "cpu", "software", EncoderCPU:
		return EncoderCPU, nil
	case "gpu", "nvenc", EncoderGPU:
		return EncoderGPU, nil
	default:
		return "", fmt.Errorf("invalid encoder %q (expected cpu or gpu)", raw)
	}
}

func (c RunConfig) ValidateSource() error {
	if c.SourceBucket == "" {
		return fmt.Errorf("source bucket is required (S3_BUCKET)")
	}
	if c.SourceAccessKey == "" || c.SourceSecretKey == "" {
		return fmt.Errorf("source credentials are required (S3_ACCESS_KEY_ID / S3_SECRET_ACCESS_KEY)")
	}
	return nil
}

func parseShardEnv() (Shard, error) {
	shard := Shard{Index: 0, Total: 1}
	if v := strings.TrimSpace(os.Getenv("SHARD_INDEX")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Shard{}, fmt.Errorf("invalid SHARD_INDEX %q: %w", v, err)
		}
		shard.Index = n
	}
	if v := strings.TrimSpace(os.Getenv("SHARD_TOTAL")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Shard{}, fmt.Errorf("invalid SHARD_TOTAL %q: %w", v, err)
		}
		shard.Total = n
	}
	return shard, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
