package ingest

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// modelExtensions are the artifact payload types flattened to the folder
// root. Material and buffer companions travel with their models.
var modelExtensions = map[string]struct{}{
	".glb":  {},
	".gltf": {},
	".obj":  {},
	".fbx":  {},
	".stl":  {},
	".ply":  {},
	".usdz": {},
	".mtl":  {},
	".bin":  {},
}

var previewExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
}

func isModelFile(name string) bool {
	_, ok := modelExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

func isPreviewImage(name string) bool {
	_, ok := previewExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

func isArchive(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".zip")
}

// extractArchive unpacks the archive into destDir. Entries escaping the
// destination are rejected.
func extractArchive(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	for _, entry := range reader.File {
		if err := extractEntry(entry, destDir); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(entry *zip.File, destDir string) error {
	cleaned := filepath.Clean(entry.Name)
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return fmt.Errorf("archive entry %q escapes destination", entry.Name)
	}
	target := filepath.Join(destDir, cleaned)

	if entry.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", cleaned, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent for %q: %w", cleaned, err)
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open entry %q: %w", cleaned, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create file %q: %w", cleaned, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("write file %q: %w", cleaned, err)
	}
	return dst.Close()
}

// flatten moves model files found in nested subfolders up to the destination
// root, then removes now-empty directories best-effort. Returns the paths of
// directories that could not be removed.
func flatten(destDir string) ([]string, error) {
	var nested []string
	err := filepath.WalkDir(destDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Dir(path) == destDir {
			return nil
		}
		if isModelFile(d.Name()) {
			nested = append(nested, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan destination: %w", err)
	}

	for _, path := range nested {
		target := filepath.Join(destDir, filepath.Base(path))
		if _, statErr := os.Stat(target); statErr == nil {
			// A root-level file with the same name wins.
			continue
		}
		if err := os.Rename(path, target); err != nil {
			return nil, fmt.Errorf("move %q to root: %w", filepath.Base(path), err)
		}
	}

	return removeEmptyDirs(destDir), nil
}

// removeEmptyDirs prunes empty subdirectories of destDir, deepest first.
// Failures are collected, not fatal.
func removeEmptyDirs(destDir string) []string {
	var dirs []string
	_ = filepath.WalkDir(destDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != destDir {
			dirs = append(dirs, path)
		}
		return nil
	})

	var failed []string
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dirs[i]); err != nil {
			failed = append(failed, dirs[i])
		}
	}
	return failed
}

// attachSidecars moves preview images sitting in the watch root (not yet
// inside any destination folder) into destDir when they were modified within
// the window. These are screenshots taken during capture; recency associates
// them with this artifact.
func attachSidecars(watchRoot, destDir string, window time.Duration) ([]string, error) {
	entries, err := os.ReadDir(watchRoot)
	if err != nil {
		return nil, fmt.Errorf("read watch root: %w", err)
	}

	cutoff := time.Now().Add(-window)
	var moved []string
	for _, entry := range entries {
		if entry.IsDir() || !isPreviewImage(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().Before(cutoff) {
			continue
		}
		src := filepath.Join(watchRoot, entry.Name())
		dst := filepath.Join(destDir, entry.Name())
		if err := os.Rename(src, dst); err != nil {
			return moved, fmt.Errorf("move sidecar %q: %w", entry.Name(), err)
		}
		moved = append(moved, dst)
	}
	return moved, nil
}

// folderNonEmpty reports whether the directory contains at least one entry.
func folderNonEmpty(path string) bool {
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) > 0
}
