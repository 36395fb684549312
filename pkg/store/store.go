package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/0xmhha/runmirror/pkg/coord"
)

type leaf struct {
	full      Item
	truncated Item
}

type categoryNode struct {
	global *leaf
	steps  map[int]*leaf
}

func (c *categoryNode) empty() bool {
	return c.global == nil && len(c.steps) == 0
}

// drop removes the value for step and reports whether one existed.
func (c *categoryNode) drop(step coord.Step) bool {
	n, stepped := step.Index()
	if !stepped {
		if c.global == nil {
			return false
		}
		c.global = nil
		return true
	}
	if _, ok := c.steps[n]; !ok {
		return false
	}
	delete(c.steps, n)
	return true
}

type kindNode struct {
	categories map[string]*categoryNode
}

// categoryOrInsert returns the category node, creating it if absent.
func (k *kindNode) categoryOrInsert(name string) *categoryNode {
	c, ok := k.categories[name]
	if !ok {
		c = &categoryNode{steps: make(map[int]*leaf)}
		k.categories[name] = c
	}
	return c
}

type experimentNode struct {
	command Item
	kinds   map[coord.Kind]*kindNode
}

// kindOrInsert returns the kind node, creating it if absent.
func (e *experimentNode) kindOrInsert(kind coord.Kind) *kindNode {
	k, ok := e.kinds[kind]
	if !ok {
		k = &kindNode{categories: make(map[string]*categoryNode)}
		e.kinds[kind] = k
	}
	return k
}

// Store is the hierarchical run store.
type Store struct {
	mu          sync.RWMutex
	experiments map[string]*experimentNode
	reference   string

	broadcaster *broadcaster
}

// New creates an empty store.
func New(cfg Config) *Store {
	if cfg.ReferenceURL == "" {
		cfg.ReferenceURL = DefaultReferenceURL
	}

	return &Store{
		experiments: make(map[string]*experimentNode),
		reference:   cfg.ReferenceURL,
		broadcaster: newBroadcaster(),
	}
}

// Tx is a mutation scope handed to Update callbacks.
//
// A Tx must not be retained after the callback returns.
type Tx struct {
	s       *Store
	touched bool
}

// Update runs fn under the store's write lock. If fn changed anything, a
// single notification is published after the lock is released.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	tx := &Tx{s: s}
	err := fn(tx)
	s.mu.Unlock()

	if tx.touched {
		s.broadcaster.publish()
	}
	return err
}

// Changed reports whether the callback has modified the store so far.
func (tx *Tx) Changed() bool {
	return tx.touched
}

// experimentOrInsert returns the experiment node, creating it if absent.
func (tx *Tx) experimentOrInsert(name string) *experimentNode {
	e, ok := tx.s.experiments[name]
	if !ok {
		e = &experimentNode{kinds: make(map[coord.Kind]*kindNode)}
		tx.s.experiments[name] = e
		tx.touched = true
	}
	return e
}

// AddExperiment ensures the experiment exists.
func (tx *Tx) AddExperiment(name string) {
	tx.experimentOrInsert(name)
}

// SetLeaf writes value at the coordinate. When truncate is set, the
// truncated view receives a reference to the coordinate instead.
func (tx *Tx) SetLeaf(kind coord.Kind, name string, step coord.Step, category string, value Item, truncate bool) error {
	if !step.Valid() {
		return &coord.StepError{Value: step.String()}
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if name == "" {
		return ErrEmptyName
	}

	l := &leaf{full: value, truncated: value}
	if truncate {
		l.truncated = tx.s.referenceFor(kind, name, step, category)
	}

	c := tx.experimentOrInsert(name).kindOrInsert(kind).categoryOrInsert(category)
	if n, stepped := step.Index(); stepped {
		c.steps[n] = l
	} else {
		c.global = l
	}
	tx.touched = true
	return nil
}

// Get returns the full value at the coordinate.
func (tx *Tx) Get(kind coord.Kind, name string, step coord.Step, category string) (Item, bool) {
	return tx.s.lookup(kind, name, step, category)
}

// SetRunMetadata stores the experiment's run metadata.
func (tx *Tx) SetRunMetadata(name string, value Item) {
	tx.experimentOrInsert(name).command = value
	tx.touched = true
}

// ClearRunMetadata drops the experiment's run metadata. A missing
// experiment is left missing.
func (tx *Tx) ClearRunMetadata(name string) {
	e, ok := tx.s.experiments[name]
	if ok && e.command != nil {
		e.command = nil
		tx.touched = true
	}
}

// Clear drops every experiment.
func (tx *Tx) Clear() {
	tx.Remove(Filter{})
}

// RemoveExperiment drops one experiment entirely.
func (tx *Tx) RemoveExperiment(name string) bool {
	if name == "" {
		return false
	}
	return tx.Remove(Filter{Name: name})
}

// Remove drops the values selected by f and prunes emptied categories and
// kinds. It reports whether anything changed.
func (tx *Tx) Remove(f Filter) bool {
	s := tx.s
	if f.Name == "" {
		if len(s.experiments) == 0 {
			return false
		}
		s.experiments = make(map[string]*experimentNode)
		tx.touched = true
		return true
	}

	e, ok := s.experiments[f.Name]
	if !ok {
		return false
	}

	if f.Step == nil {
		delete(s.experiments, f.Name)
		tx.touched = true
		return true
	}
	if !f.Step.Valid() {
		return false
	}

	changed := false
	for kind, k := range e.kinds {
		if !f.matchesKind(kind) {
			continue
		}
		for key, c := range k.categories {
			if !f.matchesCategory(key) {
				continue
			}
			if c.drop(*f.Step) {
				changed = true
			}
			if c.empty() {
				delete(k.categories, key)
			}
		}
		if len(k.categories) == 0 {
			delete(e.kinds, kind)
		}
	}

	if changed {
		tx.touched = true
	}
	return changed
}

func (f Filter) matchesKind(kind coord.Kind) bool {
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (f Filter) matchesCategory(key string) bool {
	if f.Category == "" {
		return true
	}
	if key == f.Category {
		return true
	}
	return f.MatchPrefix && strings.HasPrefix(key, f.Category+"/")
}

// AddExperiment ensures the experiment exists.
func (s *Store) AddExperiment(name string) {
	_ = s.Update(func(tx *Tx) error { // nolint:errcheck // callback never fails
		tx.AddExperiment(name)
		return nil
	})
}

// SetLeaf writes one value in its own transaction.
func (s *Store) SetLeaf(kind coord.Kind, name string, step coord.Step, category string, value Item, truncate bool) error {
	return s.Update(func(tx *Tx) error {
		return tx.SetLeaf(kind, name, step, category, value, truncate)
	})
}

// SetRunMetadata stores the experiment's run metadata.
func (s *Store) SetRunMetadata(name string, value Item) {
	_ = s.Update(func(tx *Tx) error { // nolint:errcheck // callback never fails
		tx.SetRunMetadata(name, value)
		return nil
	})
}

// ClearRunMetadata drops the experiment's run metadata.
func (s *Store) ClearRunMetadata(name string) {
	_ = s.Update(func(tx *Tx) error { // nolint:errcheck // callback never fails
		tx.ClearRunMetadata(name)
		return nil
	})
}

// Remove drops the values selected by f.
func (s *Store) Remove(f Filter) bool {
	var changed bool
	_ = s.Update(func(tx *Tx) error { // nolint:errcheck // callback never fails
		changed = tx.Remove(f)
		return nil
	})
	return changed
}

// Get returns the full value at the coordinate.
func (s *Store) Get(kind coord.Kind, name string, step coord.Step, category string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lookup(kind, name, step, category)
}

func (s *Store) lookup(kind coord.Kind, name string, step coord.Step, category string) (Item, bool) {
	e, ok := s.experiments[name]
	if !ok {
		return nil, false
	}
	k, ok := e.kinds[kind]
	if !ok {
		return nil, false
	}
	c, ok := k.categories[category]
	if !ok {
		return nil, false
	}
	n, stepped := step.Index()
	if !stepped {
		if c.global == nil {
			return nil, false
		}
		return c.global.full, true
	}
	l, ok := c.steps[n]
	if !ok {
		return nil, false
	}
	return l.full, true
}

// RunMetadata returns the experiment's run metadata.
func (s *Store) RunMetadata(name string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.experiments[name]
	if !ok || e.command == nil {
		return nil, false
	}
	return e.command, true
}

// Experiments returns the experiment names in sorted order.
func (s *Store) Experiments() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.experiments))
	for name := range s.experiments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the truncated view.
func (s *Store) Snapshot() Snapshot {
	return s.snapshot(func(l *leaf) Item { return l.truncated })
}

// FullSnapshot returns the full view.
func (s *Store) FullSnapshot() Snapshot {
	return s.snapshot(func(l *leaf) Item { return l.full })
}

func (s *Store) snapshot(value func(*leaf) Item) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(Snapshot, len(s.experiments))
	for name, e := range s.experiments {
		exp := Experiment{
			Command: e.command,
			Kinds:   make(map[coord.Kind]map[string]Category, len(e.kinds)),
		}
		for kind, k := range e.kinds {
			categories := make(map[string]Category, len(k.categories))
			for key, c := range k.categories {
				cat := Category{}
				if c.global != nil {
					cat.Global = value(c.global)
					cat.HasGlobal = true
				}
				if len(c.steps) > 0 {
					cat.Steps = make(map[int]Item, len(c.steps))
					for n, l := range c.steps {
						cat.Steps[n] = value(l)
					}
				}
				categories[key] = cat
			}
			exp.Kinds[kind] = categories
		}
		out[name] = exp
	}
	return out
}

// referenceFor builds the truncated stand-in for a coordinate.
func (s *Store) referenceFor(kind coord.Kind, name string, step coord.Step, category string) Item {
	url := strings.NewReplacer(
		"{kind}", string(kind),
		"{name}", name,
		"{step}", step.String(),
		"{category}", category,
	).Replace(s.reference)
	return map[string]any{"api": map[string]any{"url": url}}
}

// Subscribe registers for change notifications. The returned function
// unsubscribes and closes the channel; it is safe to call more than once.
func (s *Store) Subscribe() (<-chan Notification, func()) {
	return s.broadcaster.subscribe()
}

// Subscribers returns the number of active subscriptions.
func (s *Store) Subscribers() int {
	return s.broadcaster.count()
}
