// Package media stores uploaded assets and hands back durable URLs. The
// rest of the system only ever persists the returned URL; storage internals
// stay behind this interface.
package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Asset kinds.
const (
	KindImage = "image"
	KindVideo = "video"
)

type Store interface {
	Save(ctx context.Context, r io.Reader, folder, kind string) (url string, err error)
}

// DiskStore writes assets under a local directory served as static files.
type DiskStore struct {
	Dir     string
	BaseURL string
}

func NewDiskStore(dir, baseURL string) *DiskStore {
	return &DiskStore{Dir: dir, BaseURL: baseURL}
}

func (s *DiskStore) Save(ctx context.Context, r io.Reader, folder, kind string) (string, error) {
	if kind != KindImage && kind != KindVideo {
		return "", fmt.Errorf("unsupported asset kind %q", kind)
	}
	dir := filepath.Join(s.Dir, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	name := uuid.NewString()
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return s.BaseURL + "/" + folder + "/" + name, nil
}
