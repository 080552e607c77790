package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	filePerm = 0o644
	dirPerm  = 0o755
)

// ReadFile returns the whole file. A missing file fails with ErrNotFound.
func (p *LocalProvider) ReadFile(ctx context.Context, id, path string) ([]byte, error) {
	full, err := p.ResolvePath(ctx, id, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// WriteFile writes data, creating parent directories as needed. With
// opts.Append the data is appended; a non-zero opts.Mode is applied after
// the write.
func (p *LocalProvider) WriteFile(ctx context.Context, id, path string, data []byte, opts WriteOptions) error {
	full, err := p.ResolvePath(ctx, id, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), dirPerm); err != nil {
		return fmt.Errorf("creating parent of %s: %w", path, err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if opts.Append {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(full, flags, filePerm)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}

	if opts.Mode != 0 {
		if err := os.Chmod(full, fs.FileMode(opts.Mode).Perm()); err != nil {
			return fmt.Errorf("chmod %s: %w", path, err)
		}
	}
	return nil
}

// ListFiles returns the immediate children of a directory, sorted by name.
// A missing directory yields an empty list. Entries are described with
// lstat, so symlinks are reported rather than followed.
func (p *LocalProvider) ListFiles(ctx context.Context, id, path string) ([]FileEntry, error) {
	full, err := p.ResolvePath(ctx, id, path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []FileEntry{}, nil
		}
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}

	out := make([]FileEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Lstat.
			continue
		}
		out = append(out, FileEntry{
			Name:    e.Name(),
			IsDir:   e.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}

// Mkdirs creates the full directory chain. Existing directories are fine.
func (p *LocalProvider) Mkdirs(ctx context.Context, id, path string) error {
	full, err := p.ResolvePath(ctx, id, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, dirPerm); err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	return nil
}
