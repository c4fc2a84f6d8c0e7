// Package security validates file paths supplied on the command line or
// over HTTP before anything is written to them.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory reports an error if filePath, once cleaned and
// with symlinks resolved, lies outside dir. For paths that do not exist yet
// the nearest existing ancestor is resolved instead, so a symlinked parent
// cannot be used to escape.
func ValidatePathWithinDirectory(filePath, dir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory path: %w", err)
	}
	canonicalDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalDir, resolveExisting(absPath))
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", filePath, dir)
	}
	return nil
}

// resolveExisting resolves symlinks in the longest existing prefix of p.
func resolveExisting(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	for dir := filepath.Dir(p); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, _ := filepath.Rel(dir, p)
			return filepath.Join(resolved, rel)
		}
		if dir == filepath.Dir(dir) {
			return p
		}
	}
}

// ValidateOutputPath accepts paths under the temp directory or the working
// directory. Reports, backups and replay output go through it.
func ValidateOutputPath(filePath string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	dirs := []string{os.TempDir(), cwd}
	for _, dir := range dirs {
		if ValidatePathWithinDirectory(filePath, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("path %s must be within one of %v", filePath, dirs)
}

// SanitizeFilename maps s to a safe file name component: runs of characters
// other than ASCII letters, digits, '.', '_' and '-' become one underscore,
// leading and trailing dots and underscores are dropped, and the result is
// capped at 128 bytes.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	pendingUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '.' || r == '_' || r == '-'
		if !ok {
			if !pendingUnderscore {
				b.WriteByte('_')
				pendingUnderscore = true
			}
			continue
		}
		b.WriteRune(r)
		pendingUnderscore = false
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
