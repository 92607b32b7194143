package archive

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dca-go/internal/config"
)

func archives(t *testing.T) map[string]Archive {
	t.Helper()
	fs, err := NewFileSystemArchive("fs", filepath.Join(t.TempDir(), "archive"))
	if err != nil {
		t.Fatalf("NewFileSystemArchive() error = %v", err)
	}
	return map[string]Archive{
		"memory":     NewMemoryArchive("mem"),
		"filesystem": fs,
		"s3":         NewS3ArchiveWithClient("s3", "snapshots", "dca/", newFakeS3("snapshots")),
	}
}

func TestArchive_PutAndGetSnapshot(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		content string
	}{
		{"small snapshot", "ledger bytes"},
		{"empty snapshot", ""},
		{"large snapshot", strings.Repeat("x", 100000)},
	}

	for kind, a := range archives(t) {
		for _, tt := range tests {
			t.Run(kind+"/"+tt.name, func(t *testing.T) {
				err := a.PutSnapshot(ctx, "program", strings.NewReader(tt.content), int64(len(tt.content)), 7)
				if err != nil {
					t.Fatalf("PutSnapshot() error = %v", err)
				}

				var buf bytes.Buffer
				if err := a.GetSnapshot(ctx, "program", &buf); err != nil {
					t.Fatalf("GetSnapshot() error = %v", err)
				}
				if buf.String() != tt.content {
					t.Errorf("GetSnapshot() returned %d bytes, want %d", buf.Len(), len(tt.content))
				}

				version, err := a.SnapshotVersion(ctx, "program")
				if err != nil {
					t.Fatalf("SnapshotVersion() error = %v", err)
				}
				if version != 7 {
					t.Errorf("SnapshotVersion() = %d, want 7", version)
				}
			})
		}
	}
}

func TestArchive_Missing(t *testing.T) {
	ctx := context.Background()
	for kind, a := range archives(t) {
		t.Run(kind, func(t *testing.T) {
			var buf bytes.Buffer
			if err := a.GetSnapshot(ctx, "absent", &buf); !errors.Is(err, ErrSnapshotNotFound) {
				t.Errorf("GetSnapshot() error = %v, want ErrSnapshotNotFound", err)
			}
			version, err := a.SnapshotVersion(ctx, "absent")
			if err != nil || version != 0 {
				t.Errorf("SnapshotVersion() = %d, %v; want 0, nil", version, err)
			}
		})
	}
}

func TestArchive_SizeMismatch(t *testing.T) {
	ctx := context.Background()
	for kind, a := range archives(t) {
		t.Run(kind, func(t *testing.T) {
			err := a.PutSnapshot(ctx, "program", strings.NewReader("test"), 14, 1)
			if err == nil {
				t.Error("PutSnapshot() expected error for size mismatch, got nil")
			}
			version, _ := a.SnapshotVersion(ctx, "program")
			if version != 0 {
				t.Errorf("SnapshotVersion() = %d after failed put, want 0", version)
			}
		})
	}
}

func TestArchive_InvalidKey(t *testing.T) {
	ctx := context.Background()
	for kind, a := range archives(t) {
		t.Run(kind, func(t *testing.T) {
			for _, key := range []string{"", "../escape", "a/b"} {
				if err := a.PutSnapshot(ctx, key, strings.NewReader("x"), 1, 1); err == nil {
					t.Errorf("PutSnapshot(%q) expected error", key)
				}
			}
		})
	}
}

func TestFileSystemArchive_Layout(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "archive")
	a, err := NewFileSystemArchive("fs", root)
	if err != nil {
		t.Fatalf("NewFileSystemArchive() error = %v", err)
	}
	if err := a.PutSnapshot(ctx, "program", strings.NewReader("db"), 2, 42); err != nil {
		t.Fatalf("PutSnapshot() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "snapshots", "program.version"))
	if err != nil {
		t.Fatalf("reading version file: %v", err)
	}
	if string(data) != "42" {
		t.Errorf("version file = %q, want 42", data)
	}
	if err := a.ValidateSetup(ctx); err != nil {
		t.Errorf("ValidateSetup() error = %v", err)
	}
}

func TestS3Archive_ObjectKeys(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3("bucket")
	a := NewS3ArchiveWithClient("s3", "bucket", "/backups/dca/", client)

	if err := a.PutSnapshot(ctx, "program", strings.NewReader("db"), 2, 3); err != nil {
		t.Fatalf("PutSnapshot() error = %v", err)
	}
	for _, key := range []string{"bucket/backups/dca/program.db", "bucket/backups/dca/program.version"} {
		if _, ok := client.objects[key]; !ok {
			t.Errorf("object %s not written", key)
		}
	}
}

func TestS3Archive_ValidateSetup(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3("present")

	if err := NewS3ArchiveWithClient("s3", "present", "", client).ValidateSetup(ctx); err != nil {
		t.Errorf("ValidateSetup() error = %v", err)
	}
	if err := NewS3ArchiveWithClient("s3", "absent", "", client).ValidateSetup(ctx); err == nil {
		t.Error("ValidateSetup() expected error for missing bucket")
	}
}

func TestNewArchiveFromConfig(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		cfg     config.ArchiveConfig
		wantErr bool
	}{
		{"memory archive", config.ArchiveConfig{Type: "memory", Name: "m"}, false},
		{"filesystem archive", config.ArchiveConfig{Type: "filesystem", Name: "f", FSRoot: t.TempDir()}, false},
		{"filesystem archive without root", config.ArchiveConfig{Type: "filesystem", Name: "f"}, true},
		{"s3 archive without bucket", config.ArchiveConfig{Type: "s3", Name: "s"}, true},
		{
			"s3 archive with static credentials",
			config.ArchiveConfig{
				Type:              "s3",
				Name:              "s",
				S3Bucket:          "bucket",
				S3Region:          "us-east-1",
				S3Endpoint:        "http://localhost:9000",
				S3AccessKeyID:     "key",
				S3SecretAccessKey: "secret",
			},
			false,
		},
		{"unknown archive type", config.ArchiveConfig{Type: "tape"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewArchiveFromConfig(ctx, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewArchiveFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && got != nil {
				t.Error("NewArchiveFromConfig() should return nil on error")
			}
			if !tt.wantErr && got.Name() != tt.cfg.Name {
				t.Errorf("Name() = %q, want %q", got.Name(), tt.cfg.Name)
			}
		})
	}
}
