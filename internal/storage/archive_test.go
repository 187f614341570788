package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeObjectStorage struct {
	objects   map[string][]byte
	uploadErr error
}

func newFakeObjectStorage() *fakeObjectStorage {
	return &fakeObjectStorage{objects: make(map[string][]byte)}
}

func (f *fakeObjectStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeObjectStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjectStorage) GetURL(key string) string {
	return "https://cdn.example.com/" + key
}

func (f *fakeObjectStorage) Delete(ctx context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeObjectStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := f.objects[key]
	return ok, nil
}

func writeTempPhoto(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPhotoArchive_Archive(t *testing.T) {
	store := newFakeObjectStorage()
	archive := NewPhotoArchive(store)

	path := writeTempPhoto(t, "gym.png", []byte("fake image bytes"))
	url := archive.Archive(context.Background(), path)
	if url == "" {
		t.Fatal("expected a URL for a successful archive")
	}
	if !strings.HasPrefix(url, "https://cdn.example.com/photos/") {
		t.Errorf("unexpected url: %s", url)
	}
	if !strings.HasSuffix(url, ".png") {
		t.Errorf("expected original extension kept, got %s", url)
	}
	if len(store.objects) != 1 {
		t.Fatalf("expected one stored object, got %d", len(store.objects))
	}
}

func TestPhotoArchive_UploadFailureIsSwallowed(t *testing.T) {
	store := newFakeObjectStorage()
	store.uploadErr = errors.New("bucket unavailable")
	archive := NewPhotoArchive(store)

	path := writeTempPhoto(t, "gym.jpg", []byte("fake image bytes"))
	if url := archive.Archive(context.Background(), path); url != "" {
		t.Errorf("expected empty URL on upload failure, got %s", url)
	}
}

func TestPhotoArchive_Disabled(t *testing.T) {
	archive := NewPhotoArchive(nil)
	if archive.Enabled() {
		t.Error("nil store must disable the archive")
	}
	if url := archive.Archive(context.Background(), "anything"); url != "" {
		t.Errorf("disabled archive must return empty URL, got %s", url)
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"a.png":  "image/png",
		"a.webp": "image/webp",
		"a.gif":  "image/gif",
		"a.jpg":  "image/jpeg",
		"a.JPEG": "image/jpeg",
		"a":      "image/jpeg",
	}
	for path, want := range tests {
		if got := contentTypeFor(path); got != want {
			t.Errorf("contentTypeFor(%q): expected %s, got %s", path, want, got)
		}
	}
}
