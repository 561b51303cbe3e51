package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/garnizeh/staffdir/pkg/repository"
)

var (
	_ repository.AssetStore  = (*LocalStore)(nil)
	_ repository.AssetReader = (*LocalStore)(nil)
)

// LocalStore keeps assets as files under a root directory. Archived assets
// move to root/archive.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("asset root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, archiveDir), 0o755); err != nil {
		return nil, fmt.Errorf("create asset root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(ref string) (string, error) {
	if ref == "" || ref == "." || ref == ".." || ref == archiveDir || strings.ContainsAny(ref, `/\`) {
		return "", fmt.Errorf("invalid ref %q: %w", ref, repository.ErrAssetNotFound)
	}
	return filepath.Join(s.root, ref), nil
}

func (s *LocalStore) write(p string, data []byte) error {
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (s *LocalStore) CreateAsset(ctx context.Context, data []byte, mimeType, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := newRef(name, mimeType)
	p, err := s.path(ref)
	if err != nil {
		return "", err
	}
	if err := s.write(p, data); err != nil {
		return "", fmt.Errorf("write asset: %w", err)
	}
	return ref, nil
}

func (s *LocalStore) UpdateAsset(ctx context.Context, ref string, data []byte, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := s.path(ref)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("update %s: %w", ref, repository.ErrAssetNotFound)
		}
		return "", err
	}
	if err := s.write(p, data); err != nil {
		return "", fmt.Errorf("write asset: %w", err)
	}
	return ref, nil
}

func (s *LocalStore) RenameAsset(ctx context.Context, ref, newName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	dst := filepath.Join(s.root, archiveDir, sanitize(newName)+"-"+ref)
	if err := os.Rename(p, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("archive %s: %w", ref, repository.ErrAssetNotFound)
		}
		return fmt.Errorf("archive %s: %w", ref, err)
	}
	return nil
}

func (s *LocalStore) OpenAsset(ctx context.Context, ref string) (io.ReadCloser, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	p, err := s.path(ref)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("open %s: %w", ref, repository.ErrAssetNotFound)
		}
		return nil, "", err
	}
	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, "", err
	}
	return f, http.DetectContentType(head[:n]), nil
}
