package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExportStore keeps rendered export artifacts on local disk, one flat file
// per finished job named <jobID>_<filename>. The job ID prefix ties each
// artifact back to its export_jobs row so download resolution and cleanup
// need nothing beyond the record and the directory listing.
type ExportStore struct {
	baseDir string
}

// NewExportStore ensures the artifact directory exists and returns a handle.
func NewExportStore(baseDir string) (*ExportStore, error) {
	if baseDir == "" {
		baseDir = "./exports"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create export artifact directory: %w", err)
	}
	return &ExportStore{baseDir: baseDir}, nil
}

// SaveArtifact writes a rendered export under its job-scoped name and
// returns the stored name for embedding in the signed download URL.
func (s *ExportStore) SaveArtifact(jobID, filename string, data []byte) (string, error) {
	name := jobID + "_" + filename
	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export artifact: %w", err)
	}
	return name, nil
}

// Open returns a read-only handle for a stored artifact.
func (s *ExportStore) Open(name string) (*os.File, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export artifact: %w", err)
	}
	return file, nil
}

// Remove deletes a stored artifact if present.
func (s *ExportStore) Remove(name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove export artifact: %w", err)
	}
	return nil
}

// CleanupOlderThan removes artifacts past the retention TTL and returns the
// removed names. The store is flat, so a directory listing covers it.
func (s *ExportStore) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("list export artifacts: %w", err)
	}

	removed := make([]string, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat export artifact: %w", err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.baseDir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove expired artifact: %w", err)
		}
		removed = append(removed, entry.Name())
	}
	return removed, nil
}

// resolve maps a stored name to its on-disk path. Artifact names come back
// in from signed download tokens, so anything that is not a plain file name
// inside the store is rejected.
func (s *ExportStore) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.IsAbs(name) || strings.ContainsAny(name, `/\`) || name != filepath.Clean(name) {
		return "", fmt.Errorf("invalid export artifact name %q", name)
	}
	return filepath.Join(s.baseDir, name), nil
}
