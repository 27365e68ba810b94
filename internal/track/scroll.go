package track

import (
	"time"

	"github.com/pagepulse/pagepulse/internal/models"
)

// ScrollMilestones are the depth percentages reported once per session,
// evaluated highest first so one large jump fires every newly crossed
// milestone in descending order.
var ScrollMilestones = []int{100, 75, 50, 25}

// DefaultScrollThrottle caps scroll evaluation frequency.
const DefaultScrollThrottle = 100 * time.Millisecond

// ScrollDepthTracker samples scroll position and emits milestone events.
type ScrollDepthTracker struct {
	clock    Clock
	throttle time.Duration
	registry *dedupeRegistry
	emit     func(models.Payload)

	lastCheck time.Time
}

func newScrollDepthTracker(clock Clock, throttle time.Duration, registry *dedupeRegistry, emit func(models.Payload)) *ScrollDepthTracker {
	return &ScrollDepthTracker{
		clock:    clock,
		throttle: throttle,
		registry: registry,
		emit:     emit,
	}
}

// Scroll evaluates the current scroll position. Calls within the throttle
// window are dropped. A milestone fires the first time it is reached, even if
// the jump skipped over it; each of 25/50/75/100 fires at most once per
// session.
func (s *ScrollDepthTracker) Scroll(scrollY, documentHeight, viewportHeight float64) {
	now := s.clock.Now()
	if !s.lastCheck.IsZero() && now.Sub(s.lastCheck) < s.throttle {
		return
	}
	s.lastCheck = now

	scrollable := documentHeight - viewportHeight
	if scrollable <= 0 {
		return
	}
	percent := scrollY / scrollable * 100

	for _, milestone := range ScrollMilestones {
		if percent >= float64(milestone) && s.registry.markScroll(milestone) {
			s.emit(models.ScrollDepth{Percentage: milestone})
		}
	}
}
