package registry

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/cases"
)

// foldCase returns the case-folded form of s. A Caser keeps state, so each
// call gets its own.
func foldCase(s string) string {
	return cases.Fold().String(s)
}

// Location identifies a launch call: a normalized slash path and a 1-based
// line. File comparison is case-insensitive.
type Location struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// Key returns the case-folded map key of l.
func (l Location) Key() string {
	return fmt.Sprintf("%s:%d", foldCase(l.File), l.Line)
}

// Equal reports whether l and o name the same call site.
func (l Location) Equal(o Location) bool {
	return l.Line == o.Line && foldCase(l.File) == foldCase(o.File)
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// SameFile reports whether a and b are the same normalized file.
func SameFile(a, b string) bool {
	return foldCase(a) == foldCase(b)
}

// Normalizer turns on-disk paths into location file names of the form
// "<prefix>/<root-relative slash path>".
type Normalizer struct {
	// Root is the absolute project directory.
	Root string
	// Prefix is the fixed project prefix, usually the module path.
	Prefix string
}

// Normalize maps p to its location file name. Paths under Root become
// Prefix joined with the relative path. Other paths are cut at the last
// occurrence of the prefix, compared case-insensitively. Anything else is
// returned as a cleaned slash path.
func (n Normalizer) Normalize(p string) string {
	if p == "" {
		return ""
	}
	p = toSlash(p)
	prefix := strings.Trim(toSlash(n.Prefix), "/")

	if root := strings.TrimSuffix(toSlash(n.Root), "/"); root != "" {
		if hasPrefixFold(p, root+"/") {
			return join(prefix, p[len(root)+1:])
		}
	}
	if prefix != "" {
		if hasPrefixFold(p, prefix+"/") {
			return path.Clean(p)
		}
		if i := lastIndexFold(p, "/"+prefix+"/"); i >= 0 {
			return path.Clean(p[i+1:])
		}
		if !path.IsAbs(p) && !isVolumePath(p) {
			return join(prefix, p)
		}
	}
	return path.Clean(p)
}

// Relative strips the prefix from a location file name.
func (n Normalizer) Relative(file string) string {
	prefix := strings.Trim(toSlash(n.Prefix), "/")
	if prefix != "" && hasPrefixFold(file, prefix+"/") {
		return file[len(prefix)+1:]
	}
	return file
}

// Resolve maps a location file name back to a slash path under Root.
func (n Normalizer) Resolve(file string) string {
	rel := n.Relative(file)
	root := strings.TrimSuffix(toSlash(n.Root), "/")
	if root == "" {
		return rel
	}
	return root + "/" + rel
}

func join(prefix, rel string) string {
	rel = path.Clean(strings.TrimPrefix(rel, "./"))
	if prefix == "" {
		return rel
	}
	return prefix + "/" + rel
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

func isVolumePath(p string) bool {
	return len(p) >= 2 && p[1] == ':'
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}

func lastIndexFold(s, sub string) int {
	for i := len(s) - len(sub); i >= 0; i-- {
		if strings.EqualFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}
