package fs

import (
	"strings"
)

// Paths inside a tar stream are always '/'-separated, whatever the host OS.
// Nothing here may use `path/filepath`; and `path.Clean` is also off limits,
// because it would rewrite names (e.g. "./a" -> "a") that must be matched
// byte-for-byte against other headers from the same stream.

// TrimSlash strips trailing separators, except from a path which is nothing but separators.
func TrimSlash(p string) string {
	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" && p != "" {
		return "/"
	}
	return trimmed
}

// Dirname returns the parent directory of a tar path, without a trailing separator.
// The second return is false when the path has no parent (e.g. "file" or "dir/").
func Dirname(p string) (string, bool) {
	p = TrimSlash(p)
	if p == "/" {
		return "", false
	}
	i := strings.LastIndexByte(p, '/')
	switch {
	case i < 0:
		return "", false
	case i == 0:
		return "/", true
	default:
		return TrimSlash(p[:i]), true
	}
}

/*
	Ancestors lists every directory path leading to and including dir,
	ordered root-to-leaf.

	"a/b/c" yields ["a", "a/b", "a/b/c"];
	"/a/b" yields ["/", "/a", "/a/b"];
	"./a" yields [".", "./a"].
*/
func Ancestors(dir string) []string {
	dir = TrimSlash(dir)
	if dir == "" {
		return nil
	}
	var result []string
	if dir[0] == '/' {
		result = append(result, "/")
		if dir == "/" {
			return result
		}
	}
	for i := 1; i < len(dir); i++ {
		if dir[i] == '/' && dir[i-1] != '/' {
			result = append(result, dir[:i])
		}
	}
	return append(result, dir)
}
