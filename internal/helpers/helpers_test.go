package helpers

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFingerprintFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.cbz")
	b := filepath.Join(dir, "renamed.cbz")
	c := filepath.Join(dir, "c.cbz")
	if err := os.WriteFile(a, []byte("same content"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("same content"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(c, []byte("other content"), 0600); err != nil {
		t.Fatal(err)
	}

	fa, err := FingerprintFile(a)
	if err != nil {
		t.Fatalf("FingerprintFile(a) error: %v", err)
	}
	fb, _ := FingerprintFile(b)
	fc, _ := FingerprintFile(c)

	if len(fa) != 64 {
		t.Errorf("fingerprint length = %d, want 64", len(fa))
	}
	if fa != fb {
		t.Errorf("identical content gave different fingerprints: %s vs %s", fa, fb)
	}
	if fa == fc {
		t.Errorf("different content gave the same fingerprint %s", fa)
	}

	if _, err := FingerprintFile(filepath.Join(dir, "missing.cbz")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestBytesToSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes uint64
		want  string
	}{
		{"Zero bytes", 0, "0B"},
		{"Bytes", 500, "500.00B"},
		{"Kilobytes", 1024, "1.00KB"},
		{"Kilobytes fractional", 1536, "1.50KB"},
		{"Megabytes", 1024 * 1024, "1.00MB"},
		{"Gigabytes", 1024 * 1024 * 1024, "1.00GB"},
		{"Terabytes", 1024 * 1024 * 1024 * 1024, "1.00TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BytesToSize(tt.bytes)
			if got != tt.want {
				t.Errorf("BytesToSize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestCheckAndMakeDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := CheckAndMakeDir(dir); err != nil {
		t.Fatalf("CheckAndMakeDir error: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("directory %s was not created", dir)
	}
	if err := CheckAndMakeDir(dir); err != nil {
		t.Errorf("CheckAndMakeDir on existing directory: %v", err)
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := CheckAndMakeDir(file); err == nil {
		t.Error("expected error when the path is a regular file")
	}
}
