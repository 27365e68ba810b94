package track

import (
	"time"

	"github.com/pagepulse/pagepulse/internal/models"
)

// DwellThresholds are the cumulative visible-time milestones, in seconds,
// evaluated in ascending order.
var DwellThresholds = []int{3, 7, 15}

// sectionTimer accrues visible time for one section. At most one interval is
// running at a time; accumulated seconds never decrease.
type sectionTimer struct {
	runningSince time.Time // zero when paused
	accumulated  float64   // seconds
}

// SectionTimeTracker maintains per-section dwell timers and fires threshold
// events when a pause pushes the total past an unfired milestone.
type SectionTimeTracker struct {
	clock    Clock
	registry *dedupeRegistry
	emit     func(models.Payload)
	timers   map[string]*sectionTimer
}

func newSectionTimeTracker(clock Clock, registry *dedupeRegistry, emit func(models.Payload)) *SectionTimeTracker {
	return &SectionTimeTracker{
		clock:    clock,
		registry: registry,
		emit:     emit,
		timers:   map[string]*sectionTimer{},
	}
}

// Start begins or resumes accrual for a section. Resuming preserves the
// accumulated time; starting an already-running timer just restamps the
// interval start.
func (t *SectionTimeTracker) Start(sectionID string) {
	timer := t.timers[sectionID]
	if timer == nil {
		timer = &sectionTimer{}
		t.timers[sectionID] = timer
	}
	timer.runningSince = t.clock.Now()
}

// Pause stops accrual and evaluates thresholds in ascending order. A single
// pause may fire several thresholds when the total jumped past more than one,
// e.g. after the tab was hidden for a while. Each threshold fires once per
// section per session.
func (t *SectionTimeTracker) Pause(sectionID string) {
	timer := t.timers[sectionID]
	if timer == nil || timer.runningSince.IsZero() {
		return
	}

	elapsed := t.clock.Now().Sub(timer.runningSince).Seconds()
	total := timer.accumulated + elapsed

	for _, threshold := range DwellThresholds {
		if total >= float64(threshold) && t.registry.markThreshold(sectionID, threshold) {
			t.emit(models.SectionTime{SectionID: sectionID, Threshold: threshold})
		}
	}

	timer.accumulated = total
	timer.runningSince = time.Time{}
}

// PauseAll pauses every running timer. Called on abandonment so pending
// threshold events are flushed before the session ends.
func (t *SectionTimeTracker) PauseAll() {
	for sectionID := range t.timers {
		t.Pause(sectionID)
	}
}

// Accumulated returns the accrued seconds for a section, not counting a
// currently running interval.
func (t *SectionTimeTracker) Accumulated(sectionID string) float64 {
	if timer := t.timers[sectionID]; timer != nil {
		return timer.accumulated
	}
	return 0
}
