package coord

import (
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// Resolve maps the root-relative components of a file path to a target.
//
// Layout:
//
//	name                      experiment (no leaf)
//	name/command.json         run metadata
//	name/file                 global step, category = stem(file)
//	name/<digits>/.../file    step <digits>, category = rest without extension
//	name/dir/.../file         global step, category = dir/.../stem(file)
//
// Only the extension of the last component is stripped.
func Resolve(parts []string) Target {
	switch len(parts) {
	case 0:
		return Target{Type: TargetNone}
	case 1:
		return Target{Type: TargetExperiment, Name: parts[0]}
	case 2:
		if parts[1] == RunMetadataFile {
			return Target{Type: TargetRunMetadata, Name: parts[0]}
		}
		return Target{Type: TargetLeaf, Name: parts[0], Step: Global, Category: StripExt(parts[1])}
	}

	t := resolveNested(parts)
	t.Category = StripExt(t.Category)
	return t
}

// ResolveDir maps the root-relative components of a directory.
//
// Directory names are never stripped since they may contain dots. A numeric
// second component addresses the whole step and yields an empty category.
func ResolveDir(parts []string) Target {
	switch len(parts) {
	case 0:
		return Target{Type: TargetNone}
	case 1:
		return Target{Type: TargetExperiment, Name: parts[0]}
	}
	return resolveNested(parts)
}

func resolveNested(parts []string) Target {
	name, first, rest := parts[0], parts[1], parts[2:]
	if step, ok := StepDir(first); ok {
		return Target{Type: TargetLeaf, Name: name, Step: step, Category: strings.Join(rest, "/")}
	}
	return Target{Type: TargetLeaf, Name: name, Step: Global, Category: strings.Join(parts[1:], "/")}
}

// StepDir reports whether a directory name denotes a step and returns it.
func StepDir(name string) (Step, bool) {
	if !isDigits(name) {
		return Step{}, false
	}
	n, err := strconv.Atoi(name)
	if err != nil {
		// Too large for an int; treated as an ordinary directory.
		return Step{}, false
	}
	return StepAt(n), true
}

// IsStepDir reports whether name consists only of decimal digits that form
// a valid step index.
func IsStepDir(name string) bool {
	_, ok := StepDir(name)
	return ok
}

// StripExt removes the extension of the last path component.
func StripExt(p string) string {
	base := path.Base(p)
	// A leading dot is a hidden file, not an extension.
	i := strings.LastIndexByte(base, '.')
	if i <= 0 {
		return p
	}
	return p[:len(p)-(len(base)-i)]
}

// Split turns a slash-separated relative path into components, dropping
// empty and "." segments.
func Split(rel string) []string {
	if rel == "" || rel == "." {
		return nil
	}
	raw := strings.Split(rel, "/")
	parts := raw[:0]
	for _, p := range raw {
		if p == "" || p == "." {
			continue
		}
		parts = append(parts, p)
	}
	return parts
}

// RelParts returns the components of p relative to root, or false when p
// is outside root. The root itself yields no components.
func RelParts(root, p string) ([]string, bool) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return nil, false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, false
	}
	return Split(filepath.ToSlash(rel)), true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
