// Package pathutil holds the path-normalization and path-safety helpers
// shared by the host walker, the host watcher, and the client sync engine.
// Every relative path that crosses the wire uses the forward-slash form
// normalized here; platform separators only appear at the filesystem edge.
package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
)

// ToSlash converts a platform-native relative path to the canonical
// forward-slash wire form. Idempotent: an already-forward-slash path passes
// through unchanged.
func ToSlash(rel string) string {
	return strings.ReplaceAll(rel, "\\", "/")
}

// ToPlatform converts a canonical forward-slash wire path to the current
// platform's native separator, for filesystem calls.
func ToPlatform(rel string) string {
	if filepath.Separator == '/' {
		return rel
	}
	return strings.ReplaceAll(rel, "/", string(filepath.Separator))
}

// SafeJoin resolves rel (a canonical forward-slash relative path received
// over the wire) against root and returns the absolute destination, refusing
// any path that would escape root.
//
// spec.md's data model states a relative path "never contains .. or leading
// slash" as an invariant, but nothing upstream enforces that on the wire —
// a malicious or buggy peer could still send "../../etc/passwd". SafeJoin is
// the enforcement point, adapted from the blocked-path containment check the
// teacher used to keep VM mounts off sensitive host directories: here the
// "blocked" side is simply "anything outside of root".
func SafeJoin(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty relative path")
	}
	if strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, "\\") {
		return "", fmt.Errorf("relative path %q must not start with a path separator", rel)
	}

	native := ToPlatform(rel)
	dest := filepath.Join(root, native)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving project root: %w", err)
	}
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return "", fmt.Errorf("resolving destination: %w", err)
	}

	if !isUnderOrEqual(absDest, absRoot) {
		return "", fmt.Errorf("path %q escapes project root", rel)
	}

	return absDest, nil
}

// isUnderOrEqual reports whether testPath is basePath or nested under it.
func isUnderOrEqual(testPath, basePath string) bool {
	if testPath == basePath {
		return true
	}
	baseWithSep := basePath
	if !strings.HasSuffix(baseWithSep, string(filepath.Separator)) {
		baseWithSep += string(filepath.Separator)
	}
	return strings.HasPrefix(testPath, baseWithSep)
}

// ExpandUser expands a leading "~" to the user's home directory and returns
// a cleaned absolute path.
func ExpandUser(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand path: %w", err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to make path absolute: %w", err)
	}
	return filepath.Clean(abs), nil
}
