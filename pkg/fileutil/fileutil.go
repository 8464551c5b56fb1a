package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rohmanhakim/pdf-discovery-engine/pkg/failure"
)

// GetFileExtension extracts the file extension from a path, or empty string if none
func GetFileExtension(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	// Remove the leading dot
	return strings.TrimPrefix(ext, ".")
}

// EnsureDir check if a given directory plus the following path exist, then create one if not
func EnsureDir(dir string, path ...string) failure.ClassifiedError {
	targetPath := []string{dir}
	targetPath = append(targetPath, path...)

	assetsDir := filepath.Join(targetPath...)
	if err := os.MkdirAll(assetsDir, 0755); err != nil {
		return &FileError{
			Message:   fmt.Sprintf("%v", err),
			Retryable: false,
			Cause:     ErrCausePathError,
		}
	}
	return nil
}

// AtomicWriteFile writes data to path by first writing to a sibling temp
// file in the same directory, then renaming it into place. A reader can
// never observe a partially-written file at path: it sees either the
// previous contents or the complete new contents.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) failure.ClassifiedError {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return &FileError{
			Message:   fmt.Sprintf("create temp file: %v", err),
			Retryable: true,
			Cause:     ErrCauseWriteError,
		}
	}
	tmpPath := tmp.Name()

	if _, writeErr := tmp.Write(data); writeErr != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &FileError{
			Message:   fmt.Sprintf("write temp file: %v", writeErr),
			Retryable: true,
			Cause:     ErrCauseWriteError,
		}
	}
	if syncErr := tmp.Sync(); syncErr != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &FileError{
			Message:   fmt.Sprintf("sync temp file: %v", syncErr),
			Retryable: true,
			Cause:     ErrCauseWriteError,
		}
	}
	if closeErr := tmp.Close(); closeErr != nil {
		os.Remove(tmpPath)
		return &FileError{
			Message:   fmt.Sprintf("close temp file: %v", closeErr),
			Retryable: true,
			Cause:     ErrCauseWriteError,
		}
	}
	if chmodErr := os.Chmod(tmpPath, perm); chmodErr != nil {
		os.Remove(tmpPath)
		return &FileError{
			Message:   fmt.Sprintf("chmod temp file: %v", chmodErr),
			Retryable: true,
			Cause:     ErrCauseWriteError,
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &FileError{
			Message:   fmt.Sprintf("rename temp file into place: %v", err),
			Retryable: true,
			Cause:     ErrCauseRenameError,
		}
	}
	return nil
}
