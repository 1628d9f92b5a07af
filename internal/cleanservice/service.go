// Package cleanservice is the domain layer shared by the HTTP API, the MCP
// server and the watcher: it serialises full runs and answers questions
// about past runs from the manifest.
package cleanservice

import (
	"context"
	"sync"

	"github.com/starford/notionclean/internal/apperr"
	"github.com/starford/notionclean/internal/cleaner"
	"github.com/starford/notionclean/internal/manifest"
	"github.com/starford/notionclean/internal/models"
	"github.com/starford/notionclean/internal/pathclean"
)

// PathMapping pairs an exported path with its cleaned form.
type PathMapping struct {
	Source string      `json:"source"`
	Dest   string      `json:"dest"`
	Kind   models.Kind `json:"kind"`
}

// Report is everything the manifest knows about one run.
type Report struct {
	Run        *models.Run           `json:"run"`
	Files      []models.FileRecord   `json:"files"`
	Collisions []models.Collision    `json:"collisions"`
	Dangling   []models.DanglingLink `json:"dangling"`
}

// Service coordinates the cleaner and the manifest.
type Service struct {
	cleaner  *cleaner.Cleaner
	manifest manifest.Manifest

	runMu sync.Mutex // held for the duration of a full run

	cbMu  sync.RWMutex
	onRun func(cleaner.Summary)
}

// NewService creates a new service. m may be nil when no manifest is kept;
// report queries then return apperr.ErrNotFound.
func NewService(c *cleaner.Cleaner, m manifest.Manifest) *Service {
	return &Service{cleaner: c, manifest: m}
}

// OnRunFinished registers fn to be called after every completed run.
func (s *Service) OnRunFinished(fn func(cleaner.Summary)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onRun = fn
}

// Normalize returns the cleaned form of every path, in input order.
func (s *Service) Normalize(_ context.Context, paths []string) []PathMapping {
	out := make([]PathMapping, 0, len(paths))
	for _, p := range paths {
		out = append(out, PathMapping{
			Source: p,
			Dest:   pathclean.Clean(p),
			Kind:   cleaner.Classify(p),
		})
	}
	return out
}

// Rewrite retargets every reference in a Markdown text.
func (s *Service) Rewrite(_ context.Context, text string) string {
	return string(cleaner.TransformLines([]byte(text), cleaner.DefaultTransforms...))
}

// Run performs a full run. Only one run may be active at a time; a second
// caller gets apperr.ErrRunInProgress instead of waiting.
func (s *Service) Run(ctx context.Context) (cleaner.Summary, error) {
	if !s.runMu.TryLock() {
		return cleaner.Summary{}, apperr.ErrRunInProgress
	}
	defer s.runMu.Unlock()

	sum, err := s.cleaner.Run(ctx)
	if err != nil {
		return sum, err
	}

	s.cbMu.RLock()
	fn := s.onRun
	s.cbMu.RUnlock()
	if fn != nil {
		fn(sum)
	}
	return sum, nil
}

// ProcessFile carries a single file over.
func (s *Service) ProcessFile(ctx context.Context, rel string) (models.FileRecord, error) {
	return s.cleaner.ProcessFile(ctx, rel)
}

// RemoveFile deletes the cleaned counterpart of a source file.
func (s *Service) RemoveFile(rel string) (models.FileRecord, error) {
	return s.cleaner.RemoveFile(rel)
}

// LatestRun returns the most recent run recorded in the manifest.
func (s *Service) LatestRun(_ context.Context) (*models.Run, error) {
	if s.manifest == nil {
		return nil, apperr.ErrNotFound
	}
	return s.manifest.LatestRun()
}

// RunReport returns the full report of a run. An empty id selects the
// latest run.
func (s *Service) RunReport(ctx context.Context, id string) (*Report, error) {
	if s.manifest == nil {
		return nil, apperr.ErrNotFound
	}
	run, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	files, err := s.manifest.Files(run.ID)
	if err != nil {
		return nil, err
	}
	collisions, err := s.manifest.Collisions(run.ID)
	if err != nil {
		return nil, err
	}
	dangling, err := s.manifest.DanglingLinks(run.ID)
	if err != nil {
		return nil, err
	}
	return &Report{
		Run:        run,
		Files:      nonNil(files),
		Collisions: nonNil(collisions),
		Dangling:   nonNil(dangling),
	}, nil
}

// Dangling returns the run and its dangling links. An empty id selects the
// latest run.
func (s *Service) Dangling(ctx context.Context, id string) (*models.Run, []models.DanglingLink, error) {
	if s.manifest == nil {
		return nil, nil, apperr.ErrNotFound
	}
	run, err := s.lookup(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	links, err := s.manifest.DanglingLinks(run.ID)
	if err != nil {
		return nil, nil, err
	}
	return run, nonNil(links), nil
}

// Files returns the file records of a run. An empty id selects the latest
// run.
func (s *Service) Files(ctx context.Context, id string) ([]models.FileRecord, error) {
	if s.manifest == nil {
		return nil, apperr.ErrNotFound
	}
	run, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	files, err := s.manifest.Files(run.ID)
	if err != nil {
		return nil, err
	}
	return nonNil(files), nil
}

func (s *Service) lookup(ctx context.Context, id string) (*models.Run, error) {
	if id == "" {
		return s.LatestRun(ctx)
	}
	return s.manifest.GetRun(id)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
