package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loftlabs/loft/internal/config"
	"github.com/loftlabs/loft/internal/errors"
)

func TestValidatePathRejections(t *testing.T) {
	baseDir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{name: "empty", path: ""},
		{name: "traversal", path: filepath.Join(DefaultExportsDir(baseDir), "..", "x.jsonl")},
		{name: "wrong extension", path: filepath.Join(DefaultExportsDir(baseDir), "x.txt")},
		{name: "subdirectory", path: filepath.Join(DefaultExportsDir(baseDir), "sub", "x.jsonl")},
		{name: "outside allowed dirs", path: filepath.Join(t.TempDir(), "x.jsonl")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path, PathCheckWrite, &config.Config{}, baseDir)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("ValidatePath(%q) error = %v, want ErrInvalidRequest", tt.path, err)
			}
		})
	}
}

func TestValidatePathExportsDir(t *testing.T) {
	baseDir := t.TempDir()
	if err := os.MkdirAll(DefaultExportsDir(baseDir), 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	path := filepath.Join(DefaultExportsDir(baseDir), "ok.jsonl")
	if err := ValidatePath(path, PathCheckWrite, &config.Config{}, baseDir); err != nil {
		t.Errorf("ValidatePath(exports dir) error = %v", err)
	}
}

func TestValidatePathAllowedPaths(t *testing.T) {
	baseDir := t.TempDir()
	allowed := t.TempDir()

	cfg := &config.Config{AllowedPaths: []string{allowed}}
	path := filepath.Join(allowed, "ok.jsonl")
	if err := ValidatePath(path, PathCheckWrite, cfg, baseDir); err != nil {
		t.Errorf("ValidatePath(allowed path) error = %v", err)
	}

	// Relative allowed_paths entries are ignored.
	cfg = &config.Config{AllowedPaths: []string{"relative/dir"}}
	if err := ValidatePath(path, PathCheckWrite, cfg, baseDir); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("ValidatePath with relative allowed path error = %v, want ErrInvalidRequest", err)
	}
}

func TestValidatePathUnsafeMode(t *testing.T) {
	baseDir := t.TempDir()
	elsewhere := t.TempDir()

	cfg := &config.Config{AllowUnsafePaths: true}
	path := filepath.Join(elsewhere, "anywhere.jsonl")
	if err := ValidatePath(path, PathCheckWrite, cfg, baseDir); err != nil {
		t.Errorf("ValidatePath(unsafe mode) error = %v", err)
	}

	// Read mode still requires the file to exist.
	if err := ValidatePath(path, PathCheckRead, cfg, baseDir); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("ValidatePath(unsafe read, missing) error = %v, want ErrNotFound", err)
	}
}

func TestValidatePathRejectsSymlink(t *testing.T) {
	baseDir := t.TempDir()
	if err := os.MkdirAll(DefaultExportsDir(baseDir), 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	target := filepath.Join(DefaultExportsDir(baseDir), "target.jsonl")
	if err := os.WriteFile(target, []byte("{}\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	link := filepath.Join(DefaultExportsDir(baseDir), "link.jsonl")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if err := ValidatePath(link, PathCheckWrite, &config.Config{}, baseDir); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("ValidatePath(symlink) error = %v, want ErrInvalidRequest", err)
	}
}

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Demo", want: "Demo"},
		{in: "a/b\\c", want: "a-b-c"},
		{in: "../../etc", want: "etc"},
		{in: "spaces here", want: "spaces-here"},
	}

	for _, tt := range tests {
		if got := sanitizeForFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeForFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
