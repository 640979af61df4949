// Package pathutil implements the path canonicalization, joining, and
// globbing rules of spec.md §4.G. Go's standard library has no
// `**`-aware glob matcher and none of the example repos in this module's
// corpus import a third-party one (doublestar, gobwas/glob, …), so the
// glob matcher here is hand-written over `path`; everything else
// (normalization, joining) is built directly on `path.Clean` /
// `strings`, which already implement POSIX path rules correctly.
package pathutil

import (
	"strings"
)

// Normalize canonicalizes p per spec.md §4.G: collapse multiple slashes,
// resolve "." and ".." segments syntactically, map a leading "~" or "~/"
// to ".", and normalize OS-specific separators to "/".
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "~" {
		p = "."
	} else if strings.HasPrefix(p, "~/") {
		p = "." + p[1:]
	}
	if p == "" {
		return "."
	}

	absolute := strings.HasPrefix(p, "/")
	segments := strings.Split(p, "/")
	var out []string
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 && out[len(out)-1] != ".." {
				out = out[:len(out)-1]
			} else if !absolute {
				out = append(out, "..")
			}
		default:
			out = append(out, seg)
		}
	}

	joined := strings.Join(out, "/")
	if absolute {
		return "/" + joined
	}
	if joined == "" {
		return "."
	}
	return joined
}

// Join follows POSIX rules (spec.md §4.G): an absolute right-hand operand
// replaces the left entirely; otherwise the two are concatenated with a
// single "/" and the result is normalized.
func Join(base, rhs string) string {
	if strings.HasPrefix(rhs, "/") {
		return Normalize(rhs)
	}
	if base == "" {
		return Normalize(rhs)
	}
	if strings.HasSuffix(base, "/") {
		return Normalize(base + rhs)
	}
	return Normalize(base + "/" + rhs)
}

// Split returns the directory and leaf-name components of p, in the
// style of path.Split but without the trailing slash on dir.
func Split(p string) (dir, name string) {
	p = Normalize(p)
	idx := strings.LastIndexByte(p, '/')
	if idx < 0 {
		return ".", p
	}
	if idx == 0 {
		return "/", p[1:]
	}
	return p[:idx], p[idx+1:]
}
