package types

import (
	"fmt"
	"strings"
)

// ValidatePath checks that p is a well-formed project path: non-empty
// segments joined by "/", no leading or trailing separator, no "." or ".."
// segments and no backslashes.
func ValidatePath(p string) error {
	if p == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.ContainsRune(p, '\\') {
		return fmt.Errorf("%w: %q contains a backslash", ErrInvalidPath, p)
	}
	if strings.ContainsRune(p, 0) {
		return fmt.Errorf("%w: %q contains a NUL byte", ErrInvalidPath, p)
	}
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "":
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, p)
		case ".", "..":
			return fmt.Errorf("%w: %q has a relative segment", ErrInvalidPath, p)
		}
	}
	return nil
}

// SplitPath splits a validated path into its segments.
func SplitPath(p string) []string {
	return strings.Split(p, "/")
}

// ParentPaths returns every proper ancestor of p, outermost first:
// "a/b/c.js" -> ["a", "a/b"].
func ParentPaths(p string) []string {
	parts := SplitPath(p)
	out := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		out = append(out, strings.Join(parts[:i], "/"))
	}
	return out
}

// IsDescendant reports whether p lies below dir.
func IsDescendant(p, dir string) bool {
	return strings.HasPrefix(p, dir+"/")
}

// CheckPathConflict reports an ErrConflict when adding a record of type t at
// p to existing would break the file tree: the same path already exists, a
// file sits where p needs a directory, or p is a file where existing records
// need a directory. The record with id skipID is ignored (rename).
func CheckPathConflict(existing []FileRecord, p string, t FileType, skipID string) error {
	parents := make(map[string]struct{})
	for _, dir := range ParentPaths(p) {
		parents[dir] = struct{}{}
	}
	for _, f := range existing {
		if f.ID == skipID {
			continue
		}
		if f.Path == p {
			return fmt.Errorf("%w: %s", ErrConflict, p)
		}
		if _, ok := parents[f.Path]; ok && f.IsFile() {
			return fmt.Errorf("%w: %s is a file", ErrConflict, f.Path)
		}
		if t == FileTypeFile && IsDescendant(f.Path, p) {
			return fmt.Errorf("%w: %s is a directory", ErrConflict, p)
		}
	}
	return nil
}
