package pipeline

import (
	"io"
	"sync"
	"time"

	"go-sales-insights/internal/model"

	"github.com/sirupsen/logrus"
)

// Stage names
const (
	StageIngest    = "ingestion"
	StageNormalize = "normalization"
	StageFilter    = "filtering"
	StageAggregate = "aggregation"
	StageExport    = "export"
)

// maxStages bounds the history a long-lived tracker keeps
const maxStages = 100

// Tracker records how long each stage ran and how many rows went through it
type Tracker struct {
	mu     sync.Mutex
	log    logrus.FieldLogger
	stages []model.StageMetrics
}

// NewTracker creates a tracker logging through log; a nil log discards output
func NewTracker(log logrus.FieldLogger) *Tracker {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Tracker{log: log}
}

// Stage times fn and records its metrics. fn returns the output row count.
func (t *Tracker) Stage(name string, rowsIn int, fn func() (int, error)) error {
	start := time.Now()
	rowsOut, err := fn()
	m := model.StageMetrics{
		Stage:     name,
		StartTime: start,
		Duration:  time.Since(start),
		RowsIn:    rowsIn,
		RowsOut:   rowsOut,
	}
	t.add(m)

	entry := t.log.WithFields(logrus.Fields{
		"stage":       name,
		"rows_in":     rowsIn,
		"rows_out":    rowsOut,
		"duration_ms": m.Duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("stage failed")
		return err
	}
	entry.Debug("stage completed")
	return nil
}

// Skip records a stage that did not apply
func (t *Tracker) Skip(name, reason string) {
	t.add(model.StageMetrics{Stage: name, StartTime: time.Now(), Skipped: true, SkipReason: reason})
	t.log.WithFields(logrus.Fields{"stage": name, "reason": reason}).Debug("stage skipped")
}

func (t *Tracker) add(m model.StageMetrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stages = append(t.stages, m)
	if len(t.stages) > maxStages {
		t.stages = t.stages[len(t.stages)-maxStages:]
	}
}

// Metrics returns a copy of the recorded stages in run order
func (t *Tracker) Metrics() []model.StageMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.StageMetrics, len(t.stages))
	copy(out, t.stages)
	return out
}

// Reset forgets recorded stages
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stages = nil
}
