package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilePath rejects paths with traversal components or control
// characters before they reach the filesystem. Absolute paths are
// allowed; config and database files usually live outside the working
// directory.
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("path contains a null byte")
	}

	cleanPath := filepath.Clean(path)
	if cleanPath == ".." || strings.HasPrefix(cleanPath, "../") ||
		strings.Contains(cleanPath, "/../") || strings.HasSuffix(cleanPath, "/..") {
		return fmt.Errorf("path contains directory traversal: %s", path)
	}
	return nil
}
