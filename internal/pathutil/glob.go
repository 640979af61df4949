package pathutil

import "path"

// Entry is one directory entry as seen by the glob/search walker.
type Entry struct {
	Name  string
	IsDir bool
}

// FS is the minimal filesystem surface the glob and recursive-search
// utilities consume (spec.md §4.G: "the recursive search component
// consumes the filesystem interface only, so it works identically on
// client or server").
type FS interface {
	ReadDir(path string) ([]Entry, error)
}

// Glob expands pattern (rooted at root, `/`-separated, supporting `*`,
// `?`, and `**`) against fs, descending at most maxDepth directory
// levels in total (every descent counts, whether for a `**` or for an
// ordinary segment) to bound runaway recursion on adversarial or cyclic
// trees.
func Glob(fs FS, root, pattern string, maxDepth int) ([]string, error) {
	segments := splitPattern(pattern)
	var results []string
	if err := globWalk(fs, Normalize(root), segments, maxDepth, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func splitPattern(pattern string) []string {
	normalized := Normalize(pattern)
	if normalized == "." || normalized == "/" {
		return nil
	}
	start := 0
	if len(normalized) > 0 && normalized[0] == '/' {
		start = 1
	}
	var segments []string
	seg := ""
	for i := start; i < len(normalized); i++ {
		if normalized[i] == '/' {
			segments = append(segments, seg)
			seg = ""
			continue
		}
		seg += string(normalized[i])
	}
	if seg != "" {
		segments = append(segments, seg)
	}
	return segments
}

func globWalk(fs FS, base string, segments []string, depth int, results *[]string) error {
	if len(segments) == 0 {
		*results = append(*results, base)
		return nil
	}
	seg := segments[0]
	rest := segments[1:]

	if seg == "**" {
		if err := globWalk(fs, base, rest, depth, results); err != nil {
			return err
		}
		if depth <= 0 {
			return nil
		}
		entries, err := fs.ReadDir(base)
		if err != nil {
			return nil
		}
		for _, e := range entries {
			if e.IsDir {
				if err := globWalk(fs, Join(base, e.Name), segments, depth-1, results); err != nil {
					return err
				}
			}
		}
		return nil
	}

	entries, err := fs.ReadDir(base)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		matched, err := path.Match(seg, e.Name)
		if err != nil {
			return err
		}
		if !matched {
			continue
		}
		full := Join(base, e.Name)
		if len(rest) == 0 {
			*results = append(*results, full)
		} else if e.IsDir {
			if depth <= 0 {
				continue
			}
			if err := globWalk(fs, full, rest, depth-1, results); err != nil {
				return err
			}
		}
	}
	return nil
}

// Search recursively walks fs from root, returning every path for which
// match returns true. Shared with Glob's filesystem abstraction so it
// behaves identically whether called against the client adapter's cache
// or the server's safe filesystem.
func Search(fs FS, root string, maxDepth int, match func(Entry, string) bool) ([]string, error) {
	var results []string
	err := searchWalk(fs, Normalize(root), maxDepth, match, &results)
	return results, err
}

func searchWalk(fs FS, base string, depth int, match func(Entry, string) bool, results *[]string) error {
	entries, err := fs.ReadDir(base)
	if err != nil {
		return err
	}
	for _, e := range entries {
		full := Join(base, e.Name)
		if match(e, full) {
			*results = append(*results, full)
		}
		if e.IsDir && depth > 0 {
			if err := searchWalk(fs, full, depth-1, match, results); err != nil {
				return err
			}
		}
	}
	return nil
}
