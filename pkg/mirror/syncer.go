package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/0xmhha/runmirror/pkg/coord"
	"github.com/0xmhha/runmirror/pkg/extract"
	"github.com/0xmhha/runmirror/pkg/filetype"
	"github.com/0xmhha/runmirror/pkg/logger"
	"github.com/0xmhha/runmirror/pkg/scanner"
	"github.com/0xmhha/runmirror/pkg/store"
	"github.com/0xmhha/runmirror/pkg/watcher"
)

// change is one store mutation. Changes are prepared outside the store lock
// so that file reads never block readers.
type change func(tx *store.Tx) error

// Syncer applies watcher events to a store.
//
// Every file that resolves to a leaf contributes to it, in the order a scan
// applies them. A change to one of them rebuilds the kinds its type can
// produce from all of them, so incremental results never depend on history.
// Such files share a stem and live in the same directory, or in step
// directories naming the same step (3 and 03).
type Syncer struct {
	root string
	st   *store.Store
	ex   *extract.Extractor
	fs   afero.Fs
	log  logger.Logger
	refs *references
}

// NewSyncer creates a syncer for the run directory root. Call Index before
// handling events so that image references found by the scan are known.
//
// Parameters:
//   - root: Absolute path of the run directory; event paths are resolved against it
//   - st: Store to update
//   - ex: Extractor for file contents
//   - fsys: Filesystem holding root
//   - log: Logger instance
func NewSyncer(root string, st *store.Store, ex *extract.Extractor, fsys afero.Fs, log logger.Logger) *Syncer {
	if log == nil {
		log = logger.Noop()
	}

	return &Syncer{
		root: root,
		st:   st,
		ex:   ex,
		fs:   fsys,
		log:  log,
		refs: newReferences(),
	}
}

// Index records which JSON files below root name an image.
func (s *Syncer) Index() error {
	s.refs.reset()

	err := afero.Walk(s.fs, s.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filetype.Classify(info.Name()) == filetype.JSON {
			s.track(p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index %s: %w", s.root, err)
	}
	return nil
}

// track updates the image reference of a readable JSON file.
func (s *Syncer) track(jsonPath string) {
	if imagePath, ok := s.ex.ImageReference(jsonPath); ok {
		s.refs.set(jsonPath, imagePath)
	} else {
		s.refs.drop(jsonPath)
	}
}

// Run handles events until the event channel closes or ctx is done.
// Watcher errors are logged and otherwise ignored.
func (s *Syncer) Run(ctx context.Context, events <-chan watcher.Event, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, err := s.Handle(ev); err != nil {
				s.log.Error("failed to apply event", "op", ev.Op, "path", ev.Path, "error", err)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.log.Warn("watcher error", "error", err)
		}
	}
}

// Handle applies one event in a single store update and reports whether
// the store changed.
func (s *Syncer) Handle(ev watcher.Event) (bool, error) {
	changes := s.plan(ev)
	if len(changes) == 0 {
		return false, nil
	}

	changed := false
	err := s.st.Update(func(tx *store.Tx) error {
		for _, c := range changes {
			if err := c(tx); err != nil {
				return err
			}
		}
		changed = tx.Changed()
		return nil
	})
	if err != nil {
		return changed, fmt.Errorf("failed to apply %s %s: %w", ev.Op, ev.Path, err)
	}

	if changed {
		s.log.Debug("store updated", "op", ev.Op, "path", ev.Path)
	}
	return changed, nil
}

func (s *Syncer) plan(ev watcher.Event) []change {
	switch ev.Op {
	case watcher.OpCreate:
		if ev.IsDir {
			return s.planCreateDir(ev.Path)
		}
		return s.planUpdate(ev.Path)

	case watcher.OpWrite:
		if ev.IsDir {
			return nil
		}
		return s.planUpdate(ev.Path)

	case watcher.OpRemove, watcher.OpRename:
		if ev.IsDir {
			return s.planRemoveDir(ev.Path)
		}
		return s.planRemoveFile(ev.Path)

	case watcher.OpMove:
		if ev.IsDir {
			return append(s.planRemoveDir(ev.Path), s.planAddTree(ev.Dest)...)
		}
		return append(s.planRemoveFile(ev.Path), s.planUpdate(ev.Dest)...)

	default:
		return nil
	}
}

func (s *Syncer) resolve(path string) (coord.Target, bool) {
	parts, ok := coord.RelParts(s.root, path)
	if !ok {
		return coord.Target{}, false
	}
	return coord.Resolve(parts), true
}

// planUpdate re-reads a created or modified file.
func (s *Syncer) planUpdate(path string) []change {
	target, ok := s.resolve(path)
	if !ok {
		return nil
	}

	switch target.Type {
	case coord.TargetRunMetadata:
		command, err := s.ex.RunMetadata(path)
		if err != nil {
			// Possibly a partial write; the next write event retries.
			s.log.Debug("ignoring run metadata", "path", path, "error", err)
			return nil
		}
		name := target.Name
		return []change{func(tx *store.Tx) error {
			if command == nil {
				tx.ClearRunMetadata(name)
			} else {
				tx.SetRunMetadata(name, command)
			}
			return nil
		}}

	case coord.TargetLeaf:
		typ := filetype.Classify(filepath.Base(path))
		if typ == filetype.None {
			break
		}

		results, err := s.ex.Read(path, typ)
		if err != nil {
			// Possibly a partial write. The previous value stays until a
			// later event delivers the complete file.
			s.log.Debug("ignoring incomplete file", "path", path, "error", err)
			return nil
		}
		if typ == filetype.JSON {
			s.track(path)
		}

		name := target.Name
		changes := []change{func(tx *store.Tx) error {
			tx.AddExperiment(name)
			return nil
		}}
		changes = append(changes, s.planRebuild(target, filetype.Kinds(typ), map[string][]extract.Result{path: results})...)
		return append(changes, s.planUsers(s.refs.users(path), path)...)
	}

	return s.planUsers(s.refs.users(path), path)
}

// planRemoveFile drops what a deleted file contributed to its leaf.
func (s *Syncer) planRemoveFile(path string) []change {
	target, ok := s.resolve(path)
	if !ok {
		return nil
	}

	switch target.Type {
	case coord.TargetRunMetadata:
		name := target.Name
		return []change{func(tx *store.Tx) error {
			tx.ClearRunMetadata(name)
			return nil
		}}

	case coord.TargetLeaf:
		typ := filetype.Classify(filepath.Base(path))
		if typ == filetype.None {
			break
		}
		if typ == filetype.JSON {
			s.refs.drop(path)
		}

		changes := s.planRebuild(target, filetype.Kinds(typ), nil)
		return append(changes, s.planUsers(s.refs.users(path), path)...)
	}

	return s.planUsers(s.refs.users(path), path)
}

// planRebuild clears kinds at target and re-applies what every file of the
// leaf yields for them, in scan order. known holds results already read.
func (s *Syncer) planRebuild(target coord.Target, kinds []coord.Kind, known map[string][]extract.Result) []change {
	step := target.Step
	changes := []change{func(tx *store.Tx) error {
		tx.Remove(store.Filter{
			Name:     target.Name,
			Step:     &step,
			Category: target.Category,
			Kinds:    kinds,
		})
		return nil
	}}

	for _, p := range s.leafFiles(target) {
		results, ok := known[p]
		if !ok {
			results = s.ex.Extract(p, filetype.Classify(filepath.Base(p)))
		}
		results = ofKinds(results, kinds)
		if len(results) == 0 {
			continue
		}
		changes = append(changes, func(tx *store.Tx) error {
			return scanner.Apply(tx, target, results)
		})
	}
	return changes
}

func ofKinds(results []extract.Result, kinds []coord.Kind) []extract.Result {
	var kept []extract.Result
	for _, r := range results {
		for _, k := range kinds {
			if r.Kind == k {
				kept = append(kept, r)
				break
			}
		}
	}
	return kept
}

// planUsers rebuilds the leaves of JSON files naming a changed image.
func (s *Syncer) planUsers(jsonPaths []string, changed string) []change {
	var changes []change
	for _, jsonPath := range jsonPaths {
		if jsonPath == changed {
			continue
		}
		target, ok := s.resolve(jsonPath)
		if !ok || target.Type != coord.TargetLeaf {
			continue
		}
		changes = append(changes, s.planRebuild(target, filetype.Kinds(filetype.JSON), nil)...)
	}
	return changes
}

// planCreateDir registers new experiments. Deeper directories carry no
// state of their own; their files arrive as separate events.
func (s *Syncer) planCreateDir(path string) []change {
	parts, ok := coord.RelParts(s.root, path)
	if !ok || len(parts) != 1 {
		return nil
	}

	name := parts[0]
	return []change{func(tx *store.Tx) error {
		tx.AddExperiment(name)
		return nil
	}}
}

// planRemoveDir drops everything stored below a deleted directory.
//
//	root               everything
//	name               the experiment
//	name/<digits>      the whole step
//	name/dir/...       the category dir/... and everything nested in it
//
// Whatever other files still provide for the removed leaves is restored.
func (s *Syncer) planRemoveDir(path string) []change {
	parts, ok := coord.RelParts(s.root, path)
	if !ok {
		return nil
	}

	if len(parts) == 0 {
		s.refs.reset()
		return []change{func(tx *store.Tx) error {
			tx.Clear()
			return nil
		}}
	}

	s.refs.dropUnder(path)
	users := s.planUsers(s.refs.usersUnder(path), path)

	if len(parts) == 1 {
		name := parts[0]
		return append([]change{func(tx *store.Tx) error {
			tx.RemoveExperiment(name)
			return nil
		}}, users...)
	}

	target := coord.ResolveDir(parts)
	step := target.Step
	changes := []change{func(tx *store.Tx) error {
		tx.Remove(store.Filter{
			Name:        target.Name,
			Step:        &step,
			Category:    target.Category,
			MatchPrefix: true,
		})
		return nil
	}}

	changes = append(changes, s.planRestore(target)...)
	return append(changes, users...)
}

// planRestore rebuilds every leaf still backed by files after a prefix
// removal at target: files named like the removed directory (samples.png
// next to samples/) and the same subtree in other directories of the step.
func (s *Syncer) planRestore(target coord.Target) []change {
	var (
		changes []change
		seen    = make(map[coord.Coordinate]bool)
	)
	restore := func(p string) {
		leaf, ok := s.resolve(p)
		if !ok || leaf.Type != coord.TargetLeaf || filetype.Classify(filepath.Base(p)) == filetype.None {
			return
		}
		key := leaf.Coordinate("")
		if seen[key] {
			return
		}
		seen[key] = true
		changes = append(changes, s.planRebuild(leaf, coord.AllKinds, nil)...)
	}

	sub := filepath.FromSlash(target.Category)
	for _, base := range s.stepRoots(target) {
		if target.Category != "" {
			for _, p := range s.siblings(filepath.Join(base, filepath.Dir(sub)), filepath.Base(sub)) {
				restore(p)
			}
		}

		dir := filepath.Join(base, sub)
		if _, err := s.fs.Stat(dir); err != nil {
			continue
		}
		err := afero.Walk(s.fs, dir, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() {
				restore(p)
			}
			return nil
		})
		if err != nil {
			s.log.Warn("failed to read directory", "path", dir, "error", err)
		}
	}
	return changes
}

// planAddTree reads a directory that appeared without per-file events.
func (s *Syncer) planAddTree(dir string) []change {
	changes := s.planCreateDir(dir)

	err := afero.Walk(s.fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			changes = append(changes, s.planUpdate(p)...)
		}
		return nil
	})
	if err != nil {
		s.log.Warn("failed to read moved directory", "path", dir, "error", err)
	}
	return changes
}

// stepRoots returns the directories a leaf's category is relative to: the
// experiment directory for the global step, otherwise every directory
// naming the step, in name order.
func (s *Syncer) stepRoots(target coord.Target) []string {
	expDir := filepath.Join(s.root, target.Name)
	if target.Step.IsGlobal() {
		return []string{expDir}
	}

	entries, err := afero.ReadDir(s.fs, expDir)
	if err != nil {
		return nil
	}

	var roots []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if step, ok := coord.StepDir(entry.Name()); ok && step == target.Step {
			roots = append(roots, filepath.Join(expDir, entry.Name()))
		}
	}
	return roots
}

// leafFiles returns the classified files that resolve to target, in the
// order a scan applies them.
func (s *Syncer) leafFiles(target coord.Target) []string {
	sub := filepath.FromSlash(target.Category)

	var files []string
	for _, base := range s.stepRoots(target) {
		for _, p := range s.siblings(filepath.Join(base, filepath.Dir(sub)), filepath.Base(sub)) {
			leaf, ok := s.resolve(p)
			if !ok || leaf.Type != coord.TargetLeaf || filetype.Classify(filepath.Base(p)) == filetype.None {
				continue
			}
			files = append(files, p)
		}
	}
	return files
}

// siblings returns the files in dir whose stem is stem, in name order.
func (s *Syncer) siblings(dir, stem string) []string {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || coord.StripExt(entry.Name()) != stem {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths
}
