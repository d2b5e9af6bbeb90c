// Package pathutil validates slash separated object key prefixes.
package pathutil

import (
	"strings"

	"github.com/keithlinneman/sitecontent/internal/xerrors"
)

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// CleanKeyPrefix trims surrounding slashes from an object key prefix and
// rejects prefixes that could address keys outside the intended tree.
func CleanKeyPrefix(p string) (string, error) {
	p = strings.Trim(p, "/")
	if p == "" {
		return "", nil
	}
	if HasDotSegments(p) {
		return "", xerrors.Newf("key prefix %q contains dot segments", p)
	}
	if strings.Contains(p, "//") {
		return "", xerrors.Newf("key prefix %q contains empty segments", p)
	}
	return p, nil
}
