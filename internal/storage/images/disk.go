package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var ErrInvalidName = errors.New("invalid image name")

// Disk keeps images in a local directory served under urlPrefix.
type Disk struct {
	dir       string
	urlPrefix string
}

func NewDisk(dir, urlPrefix string) (*Disk, error) {
	const op = "storage.images.NewDisk"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Disk{dir: dir, urlPrefix: urlPrefix}, nil
}

func (d *Disk) Dir() string {
	return d.dir
}

func (d *Disk) Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	const op = "storage.images.Disk.Save"

	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidName)
	}

	f, err := os.OpenFile(filepath.Join(d.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return joinURL(d.urlPrefix, name), nil
}
