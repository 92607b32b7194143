// Package archive stores versioned snapshots of the ledger database away
// from the machine running it.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// Archive stores one snapshot per key together with a version marker.
type Archive interface {
	Name() string

	// PutSnapshot replaces the snapshot under key. size is the number of
	// bytes that will be read from r.
	PutSnapshot(ctx context.Context, key string, r io.Reader, size int64, version int64) error

	// GetSnapshot writes the snapshot under key to w.
	GetSnapshot(ctx context.Context, key string, w io.Writer) error

	// SnapshotVersion returns the version stored with key, 0 if none.
	SnapshotVersion(ctx context.Context, key string) (int64, error)

	// ValidateSetup verifies that the archive is reachable.
	ValidateSetup(ctx context.Context) error
}

func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("invalid snapshot key %q", key)
	}
	return nil
}

func checkSize(expected, got int64) error {
	if got != expected {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expected, got)
	}
	return nil
}
