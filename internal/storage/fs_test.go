package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func testFS(t *testing.T) (*FS, string) {
	t.Helper()
	root := t.TempDir()
	f, err := NewFS(root)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return f, root
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestListDocumentFilesOnly(t *testing.T) {
	f, root := testFS(t)
	write(t, root, "a.md", "alpha")
	write(t, root, "sub/b.txt", "beta")
	write(t, root, "c.png", "binary")
	write(t, root, "d.go", "code")

	metas, err := f.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("len = %d, want 2 (only .md and .txt)", len(metas))
	}
	paths := map[string]bool{}
	for _, m := range metas {
		paths[m.Path] = true
		if m.Checksum == "" {
			t.Errorf("checksum missing for %s", m.Path)
		}
		if m.UpdatedAt.IsZero() {
			t.Errorf("modtime missing for %s", m.Path)
		}
	}
	if !paths["a.md"] || !paths[filepath.Join("sub", "b.txt")] {
		t.Errorf("paths = %v", paths)
	}
}

func TestReadRelative(t *testing.T) {
	f, root := testFS(t)
	write(t, root, "note.md", "hello")

	data, err := f.Read("note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("data = %q", data)
	}
}

func TestReadTraversalBlocked(t *testing.T) {
	f, _ := testFS(t)

	for _, p := range []string{"../outside.md", "../../etc/passwd", "/etc/passwd"} {
		if _, err := f.Read(p); err == nil {
			t.Errorf("Read(%q) should be rejected", p)
		}
	}
}

func TestNewFSRejectsMissingRoot(t *testing.T) {
	if _, err := NewFS(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Error("NewFS on missing dir should fail")
	}
}

func TestIsDocFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"a.md", true},
		{"A.MD", true},
		{"b.txt", true},
		{"c.png", false},
		{"noext", false},
		{"dir/nested.md", true},
	}
	for _, tt := range tests {
		if got := IsDocFile(tt.path); got != tt.want {
			t.Errorf("IsDocFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
