package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/garnizeh/staffdir/internal/db"
)

// copyFile copies src to dst through a temporary file in dst's directory so
// dst is either the old or the new file, never a partial one.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".staffctl-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// backup writes a copy of the workbook and a consistent snapshot of the jobs
// database into dir. A missing jobs database is skipped.
func backup(ctx context.Context, workbookPath, jobsPath, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var written []string

	wbDst := filepath.Join(dir, filepath.Base(workbookPath))
	if err := copyFile(workbookPath, wbDst); err != nil {
		return nil, fmt.Errorf("backup workbook: %w", err)
	}
	written = append(written, wbDst)

	if _, err := os.Stat(jobsPath); errors.Is(err, fs.ErrNotExist) {
		return written, nil
	}
	d, err := db.New(ctx, jobsPath)
	if err != nil {
		return written, err
	}
	defer d.Close()

	dbDst := filepath.Join(dir, filepath.Base(jobsPath))
	if err := os.Remove(dbDst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return written, err
	}
	if _, err := d.Exec(ctx, `VACUUM INTO ?`, dbDst); err != nil {
		return written, fmt.Errorf("backup jobs database: %w", err)
	}
	return append(written, dbDst), nil
}

// restore copies the files saved by backup from dir over the live ones. The
// server must be stopped.
func restore(workbookPath, jobsPath, dir string) ([]string, error) {
	var restored []string

	wbSrc := filepath.Join(dir, filepath.Base(workbookPath))
	if err := copyFile(wbSrc, workbookPath); err != nil {
		return nil, fmt.Errorf("restore workbook: %w", err)
	}
	restored = append(restored, workbookPath)

	dbSrc := filepath.Join(dir, filepath.Base(jobsPath))
	if _, err := os.Stat(dbSrc); errors.Is(err, fs.ErrNotExist) {
		return restored, nil
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(jobsPath + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return restored, err
		}
	}
	if err := copyFile(dbSrc, jobsPath); err != nil {
		return restored, fmt.Errorf("restore jobs database: %w", err)
	}
	return append(restored, jobsPath), nil
}
