package track

import (
	"time"

	"github.com/pagepulse/pagepulse/internal/models"
)

// DefaultExposureDelay is the continuous-visibility requirement before a
// section counts as exposed.
const DefaultExposureDelay = 1000 * time.Millisecond

// ExposureDetector turns visibility transitions into section_exposed events.
// A section must stay visible for the full exposure delay: leaving early
// cancels the pending timer with no partial credit. Every transition also
// drives the dwell tracker, whether or not the exposure has fired.
type ExposureDetector struct {
	clock    Clock
	delay    time.Duration
	registry *dedupeRegistry
	dwell    *SectionTimeTracker
	resolver SectionResolver
	emit     func(models.Payload)
	run      func(func())

	pending map[string]Timer
}

func newExposureDetector(clock Clock, delay time.Duration, registry *dedupeRegistry, dwell *SectionTimeTracker, resolver SectionResolver, emit func(models.Payload), run func(func())) *ExposureDetector {
	return &ExposureDetector{
		clock:    clock,
		delay:    delay,
		registry: registry,
		dwell:    dwell,
		resolver: resolver,
		emit:     emit,
		run:      run,
		pending:  map[string]Timer{},
	}
}

// Transition handles a visibility enter/leave for an observed element.
// Elements with no resolvable section id are skipped entirely.
func (d *ExposureDetector) Transition(el Element, visible bool) {
	sectionID, ok := d.resolver.ResolveSection(el)
	if !ok {
		return
	}
	if visible {
		d.enter(sectionID)
	} else {
		d.leave(sectionID)
	}
}

func (d *ExposureDetector) enter(sectionID string) {
	if !d.registry.exposed(sectionID) {
		if _, armed := d.pending[sectionID]; !armed {
			d.pending[sectionID] = d.clock.AfterFunc(d.delay, func() {
				d.run(func() { d.fire(sectionID) })
			})
		}
	}
	d.dwell.Start(sectionID)
}

func (d *ExposureDetector) leave(sectionID string) {
	if timer, ok := d.pending[sectionID]; ok {
		timer.Stop()
		delete(d.pending, sectionID)
	}
	d.dwell.Pause(sectionID)
}

// fire completes the exposure after uninterrupted visibility.
func (d *ExposureDetector) fire(sectionID string) {
	delete(d.pending, sectionID)
	if d.registry.markExposed(sectionID) {
		d.emit(models.SectionExposed{SectionID: sectionID})
	}
}

// cancelAll stops pending exposure timers; used on session teardown.
func (d *ExposureDetector) cancelAll() {
	for id, timer := range d.pending {
		timer.Stop()
		delete(d.pending, id)
	}
}
