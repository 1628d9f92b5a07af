package manifest

import "github.com/starford/notionclean/internal/models"

// Recorder is the write side used by the cleaner during a run.
type Recorder interface {
	BeginRun(sourceRoot, destRoot string) (string, error)
	RecordFile(runID string, rec models.FileRecord) error
	RecordCollisions(runID string, cs []models.Collision) error
	FinishRun(runID string, written, skipped, failed int) error
}

// Manifest is the full manifest interface. Consumers should depend on it
// rather than on *DB so they can be tested with fakes.
type Manifest interface {
	Recorder
	LatestRun() (*models.Run, error)
	GetRun(id string) (*models.Run, error)
	Files(runID string) ([]models.FileRecord, error)
	Collisions(runID string) ([]models.Collision, error)
	DanglingLinks(runID string) ([]models.DanglingLink, error)
	Close() error
}

// Verify *DB satisfies Manifest at compile time.
var _ Manifest = (*DB)(nil)
