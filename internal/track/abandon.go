package track

import (
	"github.com/pagepulse/pagepulse/internal/models"
)

// AbandonmentDetector reports the end-of-session signal once, on the first of
// tab hide or page unload.
type AbandonmentDetector struct {
	registry   *dedupeRegistry
	dwell      *SectionTimeTracker
	dispatcher *Dispatcher
	emit       func(models.Payload)

	reported bool
}

func newAbandonmentDetector(registry *dedupeRegistry, dwell *SectionTimeTracker, dispatcher *Dispatcher, emit func(models.Payload)) *AbandonmentDetector {
	return &AbandonmentDetector{
		registry:   registry,
		dwell:      dwell,
		dispatcher: dispatcher,
		emit:       emit,
	}
}

// Trigger records the abandonment. Running section timers are paused first so
// their pending threshold events ride in the same final batch, then the queue
// is force-flushed because the page may terminate before the debounce timer
// would fire.
func (a *AbandonmentDetector) Trigger() {
	if a.reported {
		return
	}
	a.reported = true

	a.dwell.PauseAll()
	a.emit(models.Abandonment{LastSectionID: a.registry.lastExposed()})
	a.dispatcher.Flush()
}
