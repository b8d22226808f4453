// ABOUTME: Directory walk, pattern filter, and duplicate suppression for candidate audio files
// ABOUTME: Produces a deterministic, lexicographically-ordered stream of canonical paths

// Package scanner discovers candidate audio files under a set of roots,
// applying extension/size/pattern filters and bounding recursion depth.
package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"crateforge/internal/apperror"
)

// DefaultMaxDepth bounds recursion so a symlink cycle or pathological tree
// can't run the scan forever.
const DefaultMaxDepth = 32

// DefaultSupportedExtensions are the container formats the pipeline accepts.
var DefaultSupportedExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".wav":  true,
	".m4a":  true,
	".ogg":  true,
	".aiff": true,
}

// Request describes one scan: explicit directories and/or files, and the
// filters a candidate file must satisfy.
type Request struct {
	Directories     []string
	FilePaths       []string
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	MaxDepth         int
	MinSizeKB        int64
	MaxSizeMB        int64
	SupportedFormats map[string]bool
}

// Warning is a non-fatal problem encountered while scanning, e.g. an
// unreadable subdirectory. It never stops the scan.
type Warning struct {
	Path    string
	Message string
}

// Result is the finished scan: a deterministic list of candidate files plus
// any warnings collected along the way.
type Result struct {
	Files    []string
	Warnings []Warning
}

func (r Request) maxDepth() int {
	if r.MaxDepth > 0 {
		return r.MaxDepth
	}

	return DefaultMaxDepth
}

func (r Request) supportedFormats() map[string]bool {
	if r.SupportedFormats != nil {
		return r.SupportedFormats
	}

	return DefaultSupportedExtensions
}

func (r Request) includePatterns() []string {
	if len(r.IncludePatterns) > 0 {
		return r.IncludePatterns
	}

	return []string{"*"}
}

// Scan walks every directory and explicit file in req and returns the
// deduplicated, sorted set of candidate files. A missing root directory or
// explicit file fails the whole scan with NotFound; an unreadable
// subdirectory is recorded as a Warning and skipped.
func Scan(req Request) (Result, error) {
	seen := make(map[string]bool)
	var files []string
	var warnings []Warning

	for _, dir := range req.Directories {
		canon, err := canonicalize(dir)
		if err != nil {
			return Result{}, apperror.NotFoundf("scan root does not exist: %s", dir)
		}

		found, dirWarnings, err := walkDir(canon, req, 0)
		if err != nil {
			return Result{}, err
		}

		warnings = append(warnings, dirWarnings...)

		for _, f := range found {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}

	for _, path := range req.FilePaths {
		canon, err := canonicalize(path)
		if err != nil {
			return Result{}, apperror.NotFoundf("file does not exist: %s", path)
		}

		if !seen[canon] && matches(canon, req) {
			seen[canon] = true
			files = append(files, canon)
		}
	}

	sort.Strings(files)

	return Result{Files: files, Warnings: warnings}, nil
}

// canonicalize resolves symlinks once at the root, matching the contract
// that deeper symlinks are never followed (cycle prevention).
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}

	return resolved, nil
}

func walkDir(root string, req Request, depth int) ([]string, []Warning, error) {
	if depth > req.maxDepth() {
		return nil, nil, apperror.InvalidArgumentf("too deep: recursion exceeded max depth %d at %s", req.maxDepth(), root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, []Warning{{Path: root, Message: err.Error()}}, nil
	}

	var files []string
	var warnings []Warning

	for _, entry := range entries {
		full := filepath.Join(root, entry.Name())

		if entry.IsDir() {
			if !req.Recursive {
				continue
			}

			sub, subWarnings, err := walkDir(full, req, depth+1)
			if err != nil {
				return nil, nil, err
			}

			files = append(files, sub...)
			warnings = append(warnings, subWarnings...)
			continue
		}

		if matches(full, req) {
			files = append(files, full)
		}
	}

	return files, warnings, nil
}

func matches(path string, req Request) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if !req.supportedFormats()[ext] {
		return false
	}

	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	sizeKB := info.Size() / 1024
	if req.MinSizeKB > 0 && sizeKB < req.MinSizeKB {
		return false
	}

	if req.MaxSizeMB > 0 && info.Size() > req.MaxSizeMB*1024*1024 {
		return false
	}

	base := filepath.Base(path)

	included := false
	for _, pattern := range req.includePatterns() {
		if ok, _ := filepath.Match(pattern, base); ok {
			included = true
			break
		}
	}

	if !included {
		return false
	}

	for _, pattern := range req.ExcludePatterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return false
		}
	}

	return true
}
