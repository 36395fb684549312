// Package coord defines the coordinate space of the run store and the
// path resolver that maps files under the watched root onto it.
//
// A coordinate is the tuple (kind, experiment, step, category). The
// resolver is shared by the initial scan and the live watcher so that both
// routes address exactly the same leaves.
//
// Example usage:
//
//	t := coord.Resolve([]string{"exp1", "7", "loss.json"})
//	if t.Type == coord.TargetLeaf {
//	    fmt.Println(t.Name, t.Step, t.Category) // exp1 7 loss
//	}
package coord

import (
	"strconv"
)

// Kind is the content type of a stored artifact.
type Kind string

// Artifact kinds.
const (
	KindScalars  Kind = "scalars"
	KindImages   Kind = "images"
	KindTexts    Kind = "texts"
	KindLogs     Kind = "logs"
	KindMarkdown Kind = "markdown"
)

// AllKinds lists every kind in a stable order.
var AllKinds = []Kind{KindScalars, KindImages, KindTexts, KindLogs, KindMarkdown}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindScalars, KindImages, KindTexts, KindLogs, KindMarkdown:
		return true
	default:
		return false
	}
}

// Step is either the global sentinel or a non-negative iteration index.
//
// The zero value is the global step.
type Step struct {
	n       int
	stepped bool
}

// Global is the run-wide step.
var Global = Step{}

// StepAt returns the step for iteration n.
//
// A negative n yields an invalid step that the store rejects.
func StepAt(n int) Step {
	return Step{n: n, stepped: true}
}

// IsGlobal reports whether s is the global step.
func (s Step) IsGlobal() bool {
	return !s.stepped
}

// Index returns the iteration index and false for the global step.
func (s Step) Index() (int, bool) {
	if !s.stepped {
		return 0, false
	}
	return s.n, true
}

// Valid reports whether s is global or a non-negative index.
func (s Step) Valid() bool {
	return !s.stepped || s.n >= 0
}

// String renders "global" or the decimal index.
func (s Step) String() string {
	if !s.stepped {
		return GlobalName
	}
	return strconv.Itoa(s.n)
}

// GlobalName is the textual form of the global step.
const GlobalName = "global"

// ParseStep parses "global" or a non-negative decimal integer.
func ParseStep(s string) (Step, error) {
	if s == GlobalName {
		return Global, nil
	}
	if !isDigits(s) {
		return Step{}, &StepError{Value: s}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Step{}, &StepError{Value: s}
	}
	return StepAt(n), nil
}

// Coordinate addresses one leaf value in the store.
type Coordinate struct {
	Kind     Kind
	Name     string
	Step     Step
	Category string
}

// TargetType tags the result of resolving a path.
type TargetType int

// Resolution results.
const (
	// TargetNone is returned for paths that address nothing (the root itself).
	TargetNone TargetType = iota

	// TargetExperiment is a top-level experiment directory.
	TargetExperiment

	// TargetRunMetadata is the experiment's run metadata file.
	TargetRunMetadata

	// TargetLeaf is a (name, step, category) location for artifact values.
	TargetLeaf
)

// String returns a human-readable target type.
func (t TargetType) String() string {
	switch t {
	case TargetNone:
		return "none"
	case TargetExperiment:
		return "experiment"
	case TargetRunMetadata:
		return "run-metadata"
	case TargetLeaf:
		return "leaf"
	default:
		return "unknown"
	}
}

// Target is the tagged result of Resolve and ResolveDir.
type Target struct {
	Type     TargetType
	Name     string
	Step     Step
	Category string
}

// Coordinate returns the leaf coordinate for kind k.
func (t Target) Coordinate(k Kind) Coordinate {
	return Coordinate{Kind: k, Name: t.Name, Step: t.Step, Category: t.Category}
}

// RunMetadataFile is the per-experiment run metadata file name.
const RunMetadataFile = "command.json"
