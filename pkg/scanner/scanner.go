package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/0xmhha/runmirror/pkg/coord"
	"github.com/0xmhha/runmirror/pkg/extract"
	"github.com/0xmhha/runmirror/pkg/filetype"
	"github.com/0xmhha/runmirror/pkg/logger"
	"github.com/0xmhha/runmirror/pkg/store"
)

// job is one file found by the walk.
type job struct {
	path   string
	target coord.Target
	typ    filetype.Type

	// Filled by extraction.
	command    any
	commandErr error
	results    []extract.Result
}

// Scanner walks a root directory into a store.
type Scanner struct {
	fs  afero.Fs
	ex  *extract.Extractor
	log logger.Logger
	cfg Config
}

// New creates a scanner.
//
// Parameters:
//   - fsys: Filesystem holding the root
//   - ex: Extractor for file contents
//   - log: Logger instance
//   - cfg: Scanner configuration, zero fields take defaults
func New(fsys afero.Fs, ex *extract.Extractor, log logger.Logger, cfg Config) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if log == nil {
		log = logger.Noop()
	}

	return &Scanner{
		fs:  fsys,
		ex:  ex,
		log: log,
		cfg: cfg,
	}
}

// Scan builds a new store from root.
func (s *Scanner) Scan(ctx context.Context, root string) (*store.Store, error) {
	st := store.New(s.cfg.Store)
	if err := s.ScanInto(ctx, root, st); err != nil {
		return nil, err
	}
	return st, nil
}

// ScanInto adds the contents of root to st in a single update.
//
// Extraction runs concurrently; results are applied in walk order so that
// conflicting files resolve the same way on every scan.
func (s *Scanner) ScanInto(ctx context.Context, root string, st *store.Store) error {
	start := time.Now()

	info, err := s.fs.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}

	experiments, err := s.listExperiments(root)
	if err != nil {
		return err
	}

	var jobs []*job
	for _, name := range experiments {
		expJobs, walkErr := s.walkExperiment(root, name)
		if walkErr != nil {
			return walkErr
		}
		jobs = append(jobs, expJobs...)
	}

	if err := s.extractAll(ctx, jobs); err != nil {
		return err
	}

	err = st.Update(func(tx *store.Tx) error {
		for _, name := range experiments {
			tx.AddExperiment(name)
		}
		for _, j := range jobs {
			if j.target.Type == coord.TargetRunMetadata {
				if j.commandErr == nil && j.command != nil {
					tx.SetRunMetadata(j.target.Name, j.command)
				}
				continue
			}
			if applyErr := Apply(tx, j.target, j.results); applyErr != nil {
				return fmt.Errorf("failed to apply %s: %w", j.path, applyErr)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("scan complete",
		"root", root,
		"experiments", len(experiments),
		"files", len(jobs),
		"duration", time.Since(start))
	return nil
}

// listExperiments returns the sorted subdirectories of root.
func (s *Scanner) listExperiments(root string) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, root)
	if err != nil {
		return nil, fmt.Errorf("failed to read root directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// walkExperiment collects the files of one experiment: run metadata, then
// step directories, then everything else as global.
func (s *Scanner) walkExperiment(root, name string) ([]*job, error) {
	dir := filepath.Join(root, name)

	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read experiment %s: %w", name, err)
	}

	var jobs []*job

	metadata := filepath.Join(dir, coord.RunMetadataFile)
	if info, statErr := s.fs.Stat(metadata); statErr == nil && !info.IsDir() {
		jobs = append(jobs, &job{
			path:   metadata,
			target: coord.Target{Type: coord.TargetRunMetadata, Name: name},
		})
	}

	stepDirs := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() && coord.IsStepDir(entry.Name()) {
			stepDirs[entry.Name()] = true

			stepJobs, walkErr := s.walkFiles(root, filepath.Join(dir, entry.Name()), nil)
			if walkErr != nil {
				return nil, walkErr
			}
			jobs = append(jobs, stepJobs...)
		}
	}

	globalJobs, err := s.walkFiles(root, dir, stepDirs)
	if err != nil {
		return nil, err
	}
	return append(jobs, globalJobs...), nil
}

// walkFiles walks dir in lexical order, skipping the named top-level
// directories.
func (s *Scanner) walkFiles(root, dir string, skip map[string]bool) ([]*job, error) {
	var jobs []*job

	err := afero.Walk(s.fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if p != dir && filepath.Dir(p) == dir && skip[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		typ := filetype.Classify(info.Name())
		if typ == filetype.None {
			return nil
		}

		parts, ok := coord.RelParts(root, p)
		if !ok {
			return nil
		}
		target := coord.Resolve(parts)
		if target.Type != coord.TargetLeaf {
			// command.json is handled by the caller.
			return nil
		}

		jobs = append(jobs, &job{path: p, target: target, typ: typ})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return jobs, nil
}

// extractAll reads every job with bounded concurrency.
func (s *Scanner) extractAll(ctx context.Context, jobs []*job) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			if j.target.Type == coord.TargetRunMetadata {
				j.command, j.commandErr = s.ex.RunMetadata(j.path)
				return nil
			}
			j.results = s.ex.Extract(j.path, j.typ)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("scan interrupted: %w", err)
	}
	return nil
}

// Apply writes extraction results to the leaf at target.
//
// Results with PolicyKeepSameSource leave an existing image alone when it
// was produced from the same source.
func Apply(tx *store.Tx, target coord.Target, results []extract.Result) error {
	if target.Type != coord.TargetLeaf {
		return nil
	}

	for _, r := range results {
		c := target.Coordinate(r.Kind)
		if r.Policy == extract.PolicyKeepSameSource {
			if old, ok := tx.Get(c.Kind, c.Name, c.Step, c.Category); ok && sameSource(old, r.Value) {
				continue
			}
		}
		if err := tx.SetLeaf(c.Kind, c.Name, c.Step, c.Category, r.Value, r.Truncate); err != nil {
			return err
		}
	}
	return nil
}

// sameSource reports whether both image values carry the same source.
func sameSource(old, value any) bool {
	o, ok := old.(map[string]any)
	if !ok {
		return false
	}
	n, ok := value.(map[string]any)
	if !ok {
		return false
	}
	oldSource, _ := o["source"].(string)
	newSource, _ := n["source"].(string)
	return oldSource == newSource
}
