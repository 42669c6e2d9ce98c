package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

const checksumFile = ".checksums"

// ChecksumManifest is the on-disk .checksums format: BLAKE3 hashes of the
// config files in one directory, keyed by base name.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// LockReport describes what GenerateChecksums wrote.
type LockReport struct {
	ChecksumPaths []string
	Files         map[string]string
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// HashFiles returns one digest over the contents of paths, in order. The
// reloader compares digests to ignore writes that change nothing.
func HashFiles(paths []string) (string, error) {
	h := blake3.New()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		_, _ = h.Write([]byte(path))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write(data)
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}
	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}
	return nil
}

// GenerateChecksums writes a .checksums manifest next to each of files.
// With dryRun set nothing is written.
func GenerateChecksums(files []string, dryRun bool) (*LockReport, error) {
	byDir := make(map[string]*ChecksumManifest)
	report := &LockReport{Files: make(map[string]string, len(files))}
	now := time.Now().UTC().Format(time.RFC3339)

	for _, path := range files {
		hash, err := ComputeBlake3Hash(path)
		if err != nil {
			return nil, fmt.Errorf("failed to hash %s: %w", path, err)
		}
		report.Files[path] = hash

		dir := filepath.Dir(path)
		m, ok := byDir[dir]
		if !ok {
			m = &ChecksumManifest{Version: 1, GeneratedAt: now, Hashes: make(map[string]string)}
			byDir[dir] = m
		}
		m.Hashes[filepath.Base(path)] = hash
	}

	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		target := filepath.Join(dir, checksumFile)
		report.ChecksumPaths = append(report.ChecksumPaths, target)
		if dryRun {
			continue
		}
		data, err := yaml.Marshal(byDir[dir])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal checksums: %w", err)
		}
		if err := os.WriteFile(target, data, 0o600); err != nil {
			return nil, fmt.Errorf("failed to write checksums: %w", err)
		}
	}
	return report, nil
}

// LoadChecksums reads the .checksums file from a config directory. A missing
// file yields an error wrapping os.ErrNotExist.
func LoadChecksums(configDir string) (*ChecksumManifest, error) {
	checksumPath := filepath.Join(configDir, checksumFile)

	data, err := os.ReadFile(checksumPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	return &manifest, nil
}
