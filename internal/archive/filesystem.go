package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileSystemArchive stores snapshots as files:
//
//	<root>/
//	  snapshots/
//	    <key>.db
//	    <key>.version
type FileSystemArchive struct {
	name string
	root string
	dir  string
}

var _ Archive = (*FileSystemArchive)(nil)

// NewFileSystemArchive creates the directory layout under root.
func NewFileSystemArchive(name, root string) (*FileSystemArchive, error) {
	dir := filepath.Join(root, "snapshots")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileSystemArchive{name: name, root: root, dir: dir}, nil
}

func (a *FileSystemArchive) Name() string { return a.name }

func (a *FileSystemArchive) PutSnapshot(_ context.Context, key string, r io.Reader, size int64, version int64) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := a.writeFile(filepath.Join(a.dir, key+".db"), r, size); err != nil {
		return err
	}
	versionPath := filepath.Join(a.dir, key+".version")
	return os.WriteFile(versionPath, []byte(strconv.FormatInt(version, 10)), 0644)
}

func (a *FileSystemArchive) GetSnapshot(_ context.Context, key string, w io.Writer) error {
	if err := validateKey(key); err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(a.dir, key+".db"))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", key, ErrSnapshotNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	return nil
}

// SnapshotVersion returns 0 if no version file exists.
func (a *FileSystemArchive) SnapshotVersion(_ context.Context, key string) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	data, err := os.ReadFile(filepath.Join(a.dir, key+".version"))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading version file: %w", err)
	}
	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

func (a *FileSystemArchive) ValidateSetup(context.Context) error {
	for _, dir := range []string{a.root, a.dir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("archive directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("archive path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes r to destPath through a temp file and rename.
func (a *FileSystemArchive) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := checkSize(expectedSize, written); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
