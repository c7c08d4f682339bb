// Package filestore persists final run payloads and stems to a configured
// backend: the local filesystem or an S3-compatible bucket.
package filestore

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"aurax/internal/config"
	"aurax/internal/generation"
)

// Store writes payload bytes under a key and returns a reference to them.
type Store interface {
	Put(ctx context.Context, key string, payload generation.Payload) (string, error)
	Backend() string
}

// New builds the store selected by cfg.Storage. The "none" backend yields a
// nil Store, which callers treat as "keep payload references only".
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, nil
	}
	switch cfg.Storage.Backend {
	case config.StorageNone, "":
		return nil, nil
	case config.StorageLocal:
		return NewLocal(cfg.Storage.Dir)
	case config.StorageS3:
		return NewS3(ctx, S3Options{
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			Endpoint:  cfg.Storage.Endpoint,
			Prefix:    cfg.Storage.Prefix,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			PathStyle: cfg.Storage.PathStyle,
		})
	default:
		return nil, fmt.Errorf("filestore: unknown storage backend %q", cfg.Storage.Backend)
	}
}

// MasterKey names the final payload of a run.
func MasterKey(runID string, payload generation.Payload) string {
	return path.Join("runs", runID, "master"+Extension(payload.ContentType))
}

// StemKey names one separated stem of a run.
func StemKey(runID, stem string, payload generation.Payload) string {
	return path.Join("runs", runID, "stems", sanitize(stem)+Extension(payload.ContentType))
}

// Extension maps an audio content type to a file extension.
func Extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mediaType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	case "audio/ogg":
		return ".ogg"
	default:
		return ".bin"
	}
}

func contentTypeOrDefault(payload generation.Payload) string {
	if payload.ContentType != "" {
		return payload.ContentType
	}
	return "application/octet-stream"
}

func sanitize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "stem"
	}
	return b.String()
}
