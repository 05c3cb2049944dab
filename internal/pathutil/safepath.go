// Package pathutil resolves user-supplied file locations for the call log.
//
// Call-log files may be configured by the user, so every path is confined
// to the configured state directory after symlink resolution.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapesBase is returned when a path resolves outside its base directory.
var ErrEscapesBase = errors.New("path escapes base directory")

// DefaultStateDir returns the directory used for call-log files when none
// is configured: $XDG_STATE_HOME/datacommons-mcp, falling back to
// ~/.local/state/datacommons-mcp.
func DefaultStateDir() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "datacommons-mcp")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "datacommons-mcp")
	}
	return filepath.Join(home, ".local", "state", "datacommons-mcp")
}

// ExpandHome replaces a leading "~" with the user's home directory and
// expands environment variables.
func ExpandHome(p string) string {
	if p == "" {
		return p
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return os.ExpandEnv(p)
}

// ResolveWithin resolves userPath against baseDir and guarantees the result
// stays inside baseDir once symlinks are followed. Neither the target nor
// baseDir has to exist yet; the deepest existing ancestor is resolved and
// the remainder is re-attached.
//
// Relative paths are joined with baseDir. Absolute paths are accepted only
// if they land inside baseDir.
func ResolveWithin(baseDir, userPath string) (string, error) {
	if strings.TrimSpace(userPath) == "" {
		return "", errors.New("path is empty or whitespace-only")
	}
	if strings.ContainsRune(userPath, 0) {
		return "", errors.New("path contains null byte")
	}

	candidate := userPath
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(baseDir, candidate)
	}

	resolved, err := resolvePartial(filepath.Clean(candidate))
	if err != nil {
		return "", err
	}
	base, err := resolvePartial(filepath.Clean(baseDir))
	if err != nil {
		return "", fmt.Errorf("resolve base directory: %w", err)
	}

	rel, err := filepath.Rel(base, resolved)
	if err != nil {
		return "", fmt.Errorf("compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrEscapesBase, userPath)
	}
	return resolved, nil
}

// resolvePartial follows symlinks for the longest existing prefix of p.
func resolvePartial(p string) (string, error) {
	var tail []string
	cur := p
	for {
		if _, err := os.Lstat(cur); err == nil {
			real, err := filepath.EvalSymlinks(cur)
			if err != nil {
				return "", fmt.Errorf("resolve symlinks: %w", err)
			}
			for i := len(tail) - 1; i >= 0; i-- {
				real = filepath.Join(real, tail[i])
			}
			return real, nil
		} else if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return "", errors.New("no existing parent directory found")
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}
