package fileutils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomicSameDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.bin")

	data := []byte{0x89, 'P', 'N', 'G', 0x00, '\n', 0xFF}
	if err := WriteFileAtomicSameDir(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(b) != string(data) {
		t.Fatalf("content mismatch: %v", b)
	}

	// Overwriting replaces the whole file, no partial leftovers.
	if err := WriteFileAtomicSameDir(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	b, _ = os.ReadFile(path)
	if string(b) != "x" {
		t.Fatalf("content after rewrite: %q", string(b))
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("leftover files: %v", entries)
	}
}

func TestYAMLRoundtrip(t *testing.T) {
	t.Parallel()

	type world struct {
		Name       string            `yaml:"name"`
		Characters map[string]string `yaml:"characters"`
	}

	path := filepath.Join(t.TempDir(), "world.yaml")
	want := world{Name: "Duskmere", Characters: map[string]string{"Alice": "A brave warrior"}}
	if err := WriteYAMLFileAtomic(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}

	var got world
	if err := ReadYAMLFile(path, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Name != want.Name || got.Characters["Alice"] != want.Characters["Alice"] {
		t.Fatalf("got %+v", got)
	}

	if err := ReadYAMLFile(filepath.Join(t.TempDir(), "missing.yaml"), &got); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := Truncate("  hello  ", 10); got != "hello" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello…" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("hello", 0); got != "hello" {
		t.Fatalf("got %q", got)
	}
}
