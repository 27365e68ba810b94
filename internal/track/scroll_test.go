package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagepulse/pagepulse/internal/models"
)

func newScrollFixture() (*fakeClock, *recorder, *ScrollDepthTracker) {
	clock := newFakeClock()
	rec := &recorder{}
	return clock, rec, newScrollDepthTracker(clock, DefaultScrollThrottle, newDedupeRegistry(), rec.emit)
}

func milestones(rec *recorder) []int {
	var out []int
	for _, p := range rec.payloads {
		if sd, ok := p.(models.ScrollDepth); ok {
			out = append(out, sd.Percentage)
		}
	}
	return out
}

func TestScrollLargeJumpFiresAllCrossedMilestones(t *testing.T) {
	clock, rec, tracker := newScrollFixture()

	// 80% of a 1000px scrollable range: crosses 25, 50 and 75 but not 100.
	tracker.Scroll(800, 1600, 600)
	assert.Equal(t, []int{75, 50, 25}, milestones(rec))

	clock.Advance(time.Second)
	tracker.Scroll(1000, 1600, 600)
	assert.Equal(t, []int{75, 50, 25, 100}, milestones(rec))
}

func TestScrollMilestoneFiresOnce(t *testing.T) {
	clock, rec, tracker := newScrollFixture()

	tracker.Scroll(300, 1600, 600) // 30%
	clock.Advance(time.Second)
	tracker.Scroll(350, 1600, 600) // still 25% zone
	clock.Advance(time.Second)
	tracker.Scroll(300, 1600, 600)

	assert.Equal(t, []int{25}, milestones(rec))
}

func TestScrollThrottleDropsRapidTicks(t *testing.T) {
	clock, rec, tracker := newScrollFixture()

	tracker.Scroll(300, 1600, 600)
	clock.Advance(50 * time.Millisecond)
	tracker.Scroll(600, 1600, 600) // within throttle window, dropped

	require.Equal(t, []int{25}, milestones(rec))

	clock.Advance(100 * time.Millisecond)
	tracker.Scroll(600, 1600, 600) // 60%, now evaluated
	assert.Equal(t, []int{25, 50}, milestones(rec))
}

func TestScrollSkipsUnscrollablePage(t *testing.T) {
	_, rec, tracker := newScrollFixture()

	tracker.Scroll(0, 500, 600) // document shorter than viewport
	tracker.Scroll(0, 600, 600)

	assert.Empty(t, rec.payloads)
}
