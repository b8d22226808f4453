package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"crateforge/internal/apperror"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestScanFindsSupportedFilesRecursively(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.wav"), 1024)
	writeFile(t, filepath.Join(dir, "nested", "b.mp3"), 1024)
	writeFile(t, filepath.Join(dir, "notes.txt"), 1024)

	res, err := Scan(Request{Directories: []string{dir}, Recursive: true})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(res.Files) != 2 {
		t.Fatalf("expected 2 candidate files, got %d: %v", len(res.Files), res.Files)
	}
}

func TestScanIsDeterministicallyOrdered(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "z.wav"), 1024)
	writeFile(t, filepath.Join(dir, "a.wav"), 1024)
	writeFile(t, filepath.Join(dir, "m.wav"), 1024)

	res, err := Scan(Request{Directories: []string{dir}})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	for i := 1; i < len(res.Files); i++ {
		if res.Files[i-1] >= res.Files[i] {
			t.Errorf("expected lexicographic order, got %v", res.Files)
		}
	}
}

func TestScanMissingRootFailsNotFound(t *testing.T) {
	_, err := Scan(Request{Directories: []string{"/does/not/exist/anywhere"}})
	if apperror.CodeOf(err) != apperror.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestScanNonRecursiveSkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "top.wav"), 1024)
	writeFile(t, filepath.Join(dir, "nested", "deep.wav"), 1024)

	res, err := Scan(Request{Directories: []string{dir}, Recursive: false})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(res.Files) != 1 {
		t.Fatalf("expected 1 file without recursion, got %d: %v", len(res.Files), res.Files)
	}
}

func TestScanExcludePatternWins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "keep.wav"), 1024)
	writeFile(t, filepath.Join(dir, "skip_demo.wav"), 1024)

	res, err := Scan(Request{Directories: []string{dir}, ExcludePatterns: []string{"skip_*"}})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(res.Files) != 1 || filepath.Base(res.Files[0]) != "keep.wav" {
		t.Fatalf("expected only keep.wav, got %v", res.Files)
	}
}

func TestScanSizeFilters(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tiny.wav"), 100)
	writeFile(t, filepath.Join(dir, "big.wav"), 4096)

	res, err := Scan(Request{Directories: []string{dir}, MinSizeKB: 2})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(res.Files) != 1 || filepath.Base(res.Files[0]) != "big.wav" {
		t.Fatalf("expected only big.wav past the min-size filter, got %v", res.Files)
	}
}

func TestScanDeduplicatesExplicitAndDiscoveredPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.wav")
	writeFile(t, path, 1024)

	res, err := Scan(Request{Directories: []string{dir}, FilePaths: []string{path}})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(res.Files) != 1 {
		t.Fatalf("expected deduplication to collapse to 1 file, got %d: %v", len(res.Files), res.Files)
	}
}

func TestScanTooDeepFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "level1", "level2", "a.wav"), 1024)

	_, err := Scan(Request{Directories: []string{dir}, Recursive: true, MaxDepth: 1})
	if apperror.CodeOf(err) != apperror.InvalidArgument {
		t.Fatalf("expected InvalidArgument for too-deep scan, got %v", err)
	}
}
