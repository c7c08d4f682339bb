package filestore_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"aurax/internal/config"
	"aurax/internal/filestore"
	"aurax/internal/generation"
)

func TestKeysAndExtensions(t *testing.T) {
	wav := generation.Payload{ContentType: "audio/wav"}
	if got := filestore.MasterKey("r1", wav); got != "runs/r1/master.wav" {
		t.Fatalf("MasterKey = %q", got)
	}
	if got := filestore.StemKey("r1", "Lead Vocals", generation.Payload{ContentType: "audio/mpeg"}); got != "runs/r1/stems/lead_vocals.mp3" {
		t.Fatalf("StemKey = %q", got)
	}
	if got := filestore.Extension("audio/flac; rate=44100"); got != ".flac" {
		t.Fatalf("Extension = %q", got)
	}
	if got := filestore.Extension(""); got != ".bin" {
		t.Fatalf("Extension(empty) = %q", got)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = config.StorageNone
	store, err := filestore.New(context.Background(), &cfg)
	if err != nil || store != nil {
		t.Fatalf("none backend should yield nil store, got %v, %v", store, err)
	}

	cfg.Storage.Backend = config.StorageLocal
	cfg.Storage.Dir = t.TempDir()
	store, err = filestore.New(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("New(local) failed: %v", err)
	}
	if store.Backend() != config.StorageLocal {
		t.Fatalf("backend = %s", store.Backend())
	}

	cfg.Storage.Backend = "ftp"
	if _, err := filestore.New(context.Background(), &cfg); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLocalPutWritesFile(t *testing.T) {
	root := t.TempDir()
	store, err := filestore.NewLocal(root)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	payload := generation.Payload{Data: []byte("RIFF"), ContentType: "audio/wav"}
	ref, err := store.Put(context.Background(), filestore.MasterKey("run-1", payload), payload)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if ref != filepath.Join(root, "runs", "run-1", "master.wav") {
		t.Fatalf("ref = %q", ref)
	}
	data, err := os.ReadFile(ref)
	if err != nil || string(data) != "RIFF" {
		t.Fatalf("stored data = %q, %v", data, err)
	}

	if _, err := store.Put(context.Background(), "empty.wav", generation.Payload{}); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestS3PutUploadsObject(t *testing.T) {
	var (
		mu       sync.Mutex
		uploaded = map[string]string{}
		types    = map[string]string{}
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			uploaded[r.URL.Path] = string(body)
			types[r.URL.Path] = r.Header.Get("Content-Type")
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer server.Close()

	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "missing-config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "missing-credentials"))

	store, err := filestore.NewS3(context.Background(), filestore.S3Options{
		Bucket:    "tracks",
		Region:    "us-east-1",
		Endpoint:  server.URL,
		Prefix:    "aurax",
		AccessKey: "key",
		SecretKey: "secret",
		PathStyle: true,
	})
	if err != nil {
		t.Fatalf("NewS3 failed: %v", err)
	}

	payload := generation.Payload{Data: []byte("ID3"), ContentType: "audio/mpeg"}
	ref, err := store.Put(context.Background(), filestore.MasterKey("run-9", payload), payload)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if ref != "s3://tracks/aurax/runs/run-9/master.mp3" {
		t.Fatalf("ref = %q", ref)
	}
	mu.Lock()
	defer mu.Unlock()
	if got := uploaded["/tracks/aurax/runs/run-9/master.mp3"]; got != "ID3" {
		t.Fatalf("uploaded objects = %v", uploaded)
	}
	if got := types["/tracks/aurax/runs/run-9/master.mp3"]; got != "audio/mpeg" {
		t.Fatalf("content type = %q", got)
	}
}
