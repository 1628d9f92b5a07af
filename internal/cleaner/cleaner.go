// Package cleaner carries a Notion-style export over to a cleaned tree:
// documents get their references rewritten, tables are converted to
// Markdown and everything else is copied, all under cleaned names.
package cleaner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/notionclean/internal/checksum"
	"github.com/starford/notionclean/internal/manifest"
	"github.com/starford/notionclean/internal/metrics"
	"github.com/starford/notionclean/internal/models"
	"github.com/starford/notionclean/internal/parser"
	"github.com/starford/notionclean/internal/storage"
	"github.com/starford/notionclean/internal/table"
)

// Event kinds passed to an EventCallback.
const (
	EventCleaned = "file.cleaned"
	EventFailed  = "file.failed"
	EventRemoved = "file.removed"
)

const defaultWorkers = 4

// EventCallback is called after every file operation.
type EventCallback func(kind string, rec models.FileRecord)

// Summary holds the outcome of a run.
type Summary struct {
	RunID      string              `json:"run_id,omitempty"`
	Written    int                 `json:"written"`
	Skipped    int                 `json:"skipped"`
	Failed     int                 `json:"failed"`
	ByKind     map[models.Kind]int `json:"by_kind"`
	Collisions []models.Collision  `json:"collisions,omitempty"`
	Duration   time.Duration       `json:"duration"`
}

// Total returns the number of files considered.
func (s Summary) Total() int {
	return s.Written + s.Skipped + s.Failed
}

// HasFailures reports whether any file failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

func (s *Summary) add(rec models.FileRecord) {
	switch rec.Status {
	case models.StatusWritten:
		s.Written++
		s.ByKind[rec.Kind]++
	case models.StatusSkipped:
		s.Skipped++
	case models.StatusFailed:
		s.Failed++
	}
}

// Cleaner reads an export from src and writes the cleaned tree to dst.
type Cleaner struct {
	src        storage.Provider
	dst        storage.Provider
	logger     *slog.Logger
	manifest   manifest.Recorder
	metrics    metrics.Recorder
	workers    int
	skip       []string
	transforms []LineTransform
	onEvent    EventCallback
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cleaner) { c.logger = l }
}

// WithManifest records every run in m.
func WithManifest(m manifest.Recorder) Option {
	return func(c *Cleaner) { c.manifest = m }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(c *Cleaner) { c.metrics = r }
}

// WithWorkers bounds how many files are processed at once.
func WithWorkers(n int) Option {
	return func(c *Cleaner) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithSkip replaces the skip patterns.
func WithSkip(patterns []string) Option {
	return func(c *Cleaner) { c.skip = patterns }
}

// WithLineTransforms replaces the transforms applied to document lines.
func WithLineTransforms(fns ...LineTransform) Option {
	return func(c *Cleaner) { c.transforms = fns }
}

// WithEventCallback sets a callback invoked after every file operation.
func WithEventCallback(cb EventCallback) Option {
	return func(c *Cleaner) { c.onEvent = cb }
}

// New creates a Cleaner.
func New(src, dst storage.Provider, opts ...Option) *Cleaner {
	c := &Cleaner{
		src:        src,
		dst:        dst,
		logger:     slog.Default(),
		metrics:    metrics.NoopRecorder{},
		workers:    defaultWorkers,
		skip:       DefaultSkip,
		transforms: DefaultTransforms,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Skipped reports whether rel matches one of the skip patterns.
func (c *Cleaner) Skipped(rel string) bool {
	return matchesAny(c.skip, rel)
}

// Plan enumerates the source tree and returns the tasks to run in order,
// together with the collisions that were resolved.
func (c *Cleaner) Plan() ([]Task, []models.Collision, error) {
	metas, err := c.src.List("", "")
	if err != nil {
		return nil, nil, fmt.Errorf("cleaner: plan: %w", err)
	}
	tasks := make([]Task, 0, len(metas))
	for _, m := range metas {
		if c.Skipped(m.Path) {
			c.logger.Debug("skipped", slog.String("source", m.Path))
			continue
		}
		tasks = append(tasks, NewTask(m.Path))
	}
	tasks, collisions := resolve(tasks)
	return tasks, collisions, nil
}

// Run processes the whole export. A failing file is logged and counted but
// never stops the run; only a failed enumeration or ctx cancellation
// returns an error.
func (c *Cleaner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	sum := Summary{ByKind: make(map[models.Kind]int)}

	tasks, collisions, err := c.Plan()
	if err != nil {
		return sum, err
	}
	sum.Collisions = collisions

	if c.manifest != nil {
		id, err := c.manifest.BeginRun(c.src.Root(), c.dst.Root())
		if err != nil {
			c.logger.Warn("manifest: begin run failed", slog.String("error", err.Error()))
		} else {
			sum.RunID = id
		}
	}

	c.logger.Info("run started",
		slog.String("run_id", sum.RunID),
		slog.String("source", c.src.Root()),
		slog.String("dest", c.dst.Root()),
		slog.Int("files", len(tasks)),
		slog.Int("workers", c.workers))

	var mu sync.Mutex
	record := func(rec models.FileRecord) {
		mu.Lock()
		defer mu.Unlock()
		sum.add(rec)
		c.recordFile(sum.RunID, rec)
	}

	c.metrics.AddCollisions(len(collisions))
	c.recordCollisions(sum.RunID, collisions)
	for _, col := range collisions {
		c.logger.Warn("collision: destination claimed by several sources",
			slog.String("dest", col.Dest),
			slog.String("winner", col.Winner),
			slog.Any("losers", col.Losers))
		for _, loser := range col.Losers {
			t := NewTask(loser)
			c.metrics.IncFileResult(t.Kind, models.StatusSkipped)
			record(models.FileRecord{
				Source: t.Source,
				Dest:   t.Dest,
				Kind:   t.Kind,
				Status: models.StatusSkipped,
				Error:  fmt.Sprintf("destination also claimed by %s", col.Winner),
			})
		}
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, t := range tasks {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gCtx.Err() != nil {
				return nil
			}
			rec, _ := c.process(t)
			record(rec)
			return nil
		})
	}
	_ = g.Wait()

	sum.Duration = time.Since(start)
	c.metrics.ObserveRunDuration(sum.Duration)
	if c.manifest != nil && sum.RunID != "" {
		if err := c.manifest.FinishRun(sum.RunID, sum.Written, sum.Skipped, sum.Failed); err != nil {
			c.logger.Warn("manifest: finish run failed", slog.String("error", err.Error()))
		}
	}

	c.logger.Info("run finished",
		slog.String("run_id", sum.RunID),
		slog.Int("written", sum.Written),
		slog.Int("skipped", sum.Skipped),
		slog.Int("failed", sum.Failed),
		slog.Int("collisions", len(sum.Collisions)),
		slog.Duration("duration", sum.Duration))

	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, nil
}

// ProcessFile carries a single source file over. Skipped names return a
// record with StatusSkipped and no error.
func (c *Cleaner) ProcessFile(ctx context.Context, rel string) (models.FileRecord, error) {
	t := NewTask(rel)
	if c.Skipped(rel) {
		return models.FileRecord{Source: t.Source, Dest: t.Dest, Kind: t.Kind, Status: models.StatusSkipped}, nil
	}
	if err := ctx.Err(); err != nil {
		return models.FileRecord{}, err
	}
	return c.process(t)
}

// RemoveFile deletes the cleaned counterpart of a source file. A missing
// destination is not an error.
func (c *Cleaner) RemoveFile(rel string) (models.FileRecord, error) {
	t := NewTask(rel)
	rec := models.FileRecord{Source: t.Source, Dest: t.Dest, Kind: t.Kind, Status: models.StatusSkipped}
	if c.Skipped(rel) || !validDest(t.Dest) {
		return rec, nil
	}
	if err := c.dst.Delete(t.Dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return rec, err
	}
	c.logger.Info("removed", slog.String("source", t.Source), slog.String("dest", t.Dest))
	c.emit(EventRemoved, rec)
	return rec, nil
}

func (c *Cleaner) process(t Task) (models.FileRecord, error) {
	rec := models.FileRecord{
		Source: t.Source,
		Dest:   t.Dest,
		Kind:   t.Kind,
		Status: models.StatusWritten,
	}

	var err error
	switch {
	case !validDest(t.Dest):
		err = fmt.Errorf("cleaner: %s cleans to an empty name", t.Source)
	case t.Kind == models.KindDocument:
		err = c.writeDocument(&rec)
	case t.Kind == models.KindTable:
		err = c.writeTable(&rec)
	default:
		err = c.copyAsset(&rec)
	}

	if err != nil {
		rec.Status = models.StatusFailed
		rec.Error = err.Error()
		c.logger.Error("clean failed",
			slog.String("source", t.Source),
			slog.String("dest", t.Dest),
			slog.String("error", err.Error()))
		c.metrics.IncFileResult(t.Kind, rec.Status)
		c.emit(EventFailed, rec)
		return rec, err
	}

	c.metrics.IncFileResult(t.Kind, rec.Status)
	c.logger.Info("cleaned",
		slog.String("source", t.Source),
		slog.String("dest", t.Dest),
		slog.String("kind", string(t.Kind)))
	c.emit(EventCleaned, rec)
	return rec, nil
}

func (c *Cleaner) writeDocument(rec *models.FileRecord) error {
	data, err := c.src.Read(rec.Source)
	if err != nil {
		return err
	}
	out := TransformLines(data, c.transforms...)
	if err := c.dst.Write(rec.Dest, out); err != nil {
		return err
	}
	describe(rec, out)
	return nil
}

func (c *Cleaner) writeTable(rec *models.FileRecord) error {
	rc, err := c.src.Open(rec.Source)
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := table.ToMarkdown(rc, TableName(rec.Dest))
	if err != nil {
		return err
	}
	if err := c.dst.Write(rec.Dest, out); err != nil {
		return err
	}
	describe(rec, out)
	rec.Title = TableName(rec.Dest)
	return nil
}

func (c *Cleaner) copyAsset(rec *models.FileRecord) error {
	rc, err := c.src.Open(rec.Source)
	if err != nil {
		return err
	}
	defer rc.Close()

	h := checksum.NewWriter()
	if err := c.dst.Copy(rec.Dest, io.TeeReader(rc, h)); err != nil {
		return err
	}
	rec.Checksum = h.Sum()
	return nil
}

// describe fills the digest, title and link targets of a written document.
func describe(rec *models.FileRecord, out []byte) {
	rec.Checksum = checksum.Sum(out)
	res := parser.Parse(out)
	rec.Title = res.Title
	for _, l := range res.Links {
		rec.Links = append(rec.Links, l.Target)
	}
}

func (c *Cleaner) recordFile(runID string, rec models.FileRecord) {
	if c.manifest == nil || runID == "" {
		return
	}
	if err := c.manifest.RecordFile(runID, rec); err != nil {
		c.logger.Warn("manifest: record file failed",
			slog.String("source", rec.Source),
			slog.String("error", err.Error()))
	}
}

func (c *Cleaner) recordCollisions(runID string, cs []models.Collision) {
	if c.manifest == nil || runID == "" || len(cs) == 0 {
		return
	}
	if err := c.manifest.RecordCollisions(runID, cs); err != nil {
		c.logger.Warn("manifest: record collisions failed", slog.String("error", err.Error()))
	}
}

func (c *Cleaner) emit(kind string, rec models.FileRecord) {
	if c.onEvent != nil {
		c.onEvent(kind, rec)
	}
}
