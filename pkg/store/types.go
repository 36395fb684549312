// Package store holds the in-memory mirror of the watched run directory.
//
// The store is a tree of typed nodes:
//
//	experiment -> kind -> category -> {global leaf, step -> leaf}
//
// plus an optional run metadata slot per experiment. Every leaf carries two
// values: the full payload and its size-bounded substitute. Both views are
// therefore always identical in structure; they differ only in leaf values.
//
// All mutations go through Update, which holds one write lock for the whole
// callback and publishes a single change notification afterwards.
//
// Example usage:
//
//	st := store.New(store.Config{})
//	err := st.Update(func(tx *store.Tx) error {
//	    tx.AddExperiment("exp1")
//	    return tx.SetLeaf(coord.KindScalars, "exp1", coord.StepAt(3), "loss",
//	        map[string]any{"value": 0.25}, false)
//	})
package store

import (
	"encoding/json"
	"time"

	"github.com/0xmhha/runmirror/pkg/coord"
)

// Item is an opaque artifact payload whose shape depends on its kind.
//
// Items are shared between the store and its snapshots and must be treated
// as immutable once stored.
type Item = any

// DefaultReferenceURL is the template used for truncated values.
const DefaultReferenceURL = "/api/{kind}/{name}/{step}/{category}"

// Config contains store configuration.
type Config struct {
	// ReferenceURL is the template for the URL stored in place of a
	// truncated payload. Placeholders: {kind}, {name}, {step}, {category}.
	// Default: DefaultReferenceURL.
	ReferenceURL string
}

// Filter selects what Remove drops.
type Filter struct {
	// Name is the experiment. Empty clears the whole store.
	Name string

	// Step selects the step to drop. Nil drops the entire experiment.
	Step *coord.Step

	// Category restricts removal to one category. Empty matches all.
	Category string

	// Kinds restricts removal to the listed kinds. Empty matches all.
	Kinds []coord.Kind

	// MatchPrefix treats Category as a directory: it matches the category
	// itself and every category nested below it.
	MatchPrefix bool
}

// Notification is delivered to subscribers after a committed change.
type Notification struct {
	// Seq increases by one for every published change.
	Seq uint64

	// At is when the change was committed.
	At time.Time
}

// Snapshot is a point-in-time copy of the store's structure.
type Snapshot map[string]Experiment

// Experiment is the snapshot of one experiment.
type Experiment struct {
	// Command is the run metadata, nil when absent.
	Command Item

	// Kinds maps each kind to its categories. Never nil.
	Kinds map[coord.Kind]map[string]Category
}

// Category is the snapshot of one category.
type Category struct {
	Global    Item
	HasGlobal bool
	Steps     map[int]Item
}

// MarshalJSON renders an experiment with kinds and command as siblings.
func (e Experiment) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Kinds)+1)
	for kind, categories := range e.Kinds {
		out[string(kind)] = categories
	}
	if e.Command != nil {
		out["command"] = e.Command
	}
	return json.Marshal(out)
}

// MarshalJSON renders a category as {global?, steps?}.
func (c Category) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 2)
	if c.HasGlobal {
		out["global"] = c.Global
	}
	if len(c.Steps) > 0 {
		out["steps"] = c.Steps
	}
	return json.Marshal(out)
}
