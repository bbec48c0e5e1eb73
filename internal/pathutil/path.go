// Package pathutil provides path manipulation for slash-separated entry names.
package pathutil

import (
	"path"
	"strings"
)

// Clean normalizes a slash-separated name: backslashes become slashes, and
// leading slashes and "." elements are dropped. The root is ".".
func Clean(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.TrimLeft(path.Clean("/"+name), "/")
	if name == "" {
		return "."
	}
	return name
}

// DirPrefix converts a path to its directory prefix form.
// For ".", returns "" (empty prefix matches all).
// For other paths, appends "/" to match children.
func DirPrefix(name string) string {
	if name == "." {
		return ""
	}
	return name + "/"
}

// Child extracts the immediate child name from a full path given a prefix.
// Returns the child name and whether it's a subdirectory (has more path components).
// If path doesn't have the prefix, behavior is undefined.
func Child(path, prefix string) (name string, isSubDir bool) {
	relPath := strings.TrimPrefix(path, prefix)
	if idx := strings.Index(relPath, "/"); idx >= 0 {
		return relPath[:idx], true
	}
	return relPath, false
}
