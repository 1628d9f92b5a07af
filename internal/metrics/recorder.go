// Package metrics records cleaner activity. Components take a Recorder and
// default to NoopRecorder, so metrics stay optional.
package metrics

import (
	"time"

	"github.com/starford/notionclean/internal/models"
)

// Recorder defines the observability hooks of a cleaning run.
type Recorder interface {
	IncFileResult(kind models.Kind, status models.Status)
	ObserveRunDuration(d time.Duration)
	AddCollisions(n int)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) IncFileResult(models.Kind, models.Status) {}
func (NoopRecorder) ObserveRunDuration(time.Duration)         {}
func (NoopRecorder) AddCollisions(int)                        {}
