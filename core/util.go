package core

import (
	"path"
	"strings"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// FileExt returns the lowercased extension of fileName without the leading dot,
// cut at its first character that is not an ASCII letter or digit.
func FileExt(fileName string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fileName), "."))
	if i := strings.IndexFunc(ext, func(r rune) bool {
		return !(('a' <= r && r <= 'z') || ('0' <= r && r <= '9'))
	}); i >= 0 {
		ext = ext[:i]
	}
	return ext
}

// ContainsString reports whether s is in list.
func ContainsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
