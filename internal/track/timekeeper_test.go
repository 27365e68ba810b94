package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagepulse/pagepulse/internal/models"
)

type recorder struct {
	payloads []models.Payload
}

func (r *recorder) emit(p models.Payload) {
	r.payloads = append(r.payloads, p)
}

func (r *recorder) sectionTimes() []models.SectionTime {
	var out []models.SectionTime
	for _, p := range r.payloads {
		if st, ok := p.(models.SectionTime); ok {
			out = append(out, st)
		}
	}
	return out
}

func newDwellFixture() (*fakeClock, *recorder, *SectionTimeTracker) {
	clock := newFakeClock()
	rec := &recorder{}
	return clock, rec, newSectionTimeTracker(clock, newDedupeRegistry(), rec.emit)
}

func TestDwellThresholdFiresOnce(t *testing.T) {
	clock, rec, tracker := newDwellFixture()

	tracker.Start("hero")
	clock.Advance(3200 * time.Millisecond)
	tracker.Pause("hero")

	require.Len(t, rec.sectionTimes(), 1)
	assert.Equal(t, models.SectionTime{SectionID: "hero", Threshold: 3}, rec.sectionTimes()[0])

	// Another short interval stays under 7s and must not re-fire 3s.
	tracker.Start("hero")
	clock.Advance(500 * time.Millisecond)
	tracker.Pause("hero")
	assert.Len(t, rec.sectionTimes(), 1)
}

func TestDwellPauseResumePreservesAccumulated(t *testing.T) {
	clock, _, tracker := newDwellFixture()

	tracker.Start("pricing")
	clock.Advance(2 * time.Second)
	tracker.Pause("pricing")
	assert.InDelta(t, 2.0, tracker.Accumulated("pricing"), 0.001)

	tracker.Start("pricing")
	clock.Advance(1500 * time.Millisecond)
	tracker.Pause("pricing")
	assert.InDelta(t, 3.5, tracker.Accumulated("pricing"), 0.001)
}

func TestDwellLongJumpFiresMultipleThresholdsAscending(t *testing.T) {
	clock, rec, tracker := newDwellFixture()

	tracker.Start("hero")
	clock.Advance(3200 * time.Millisecond)
	tracker.Pause("hero")

	// Long hidden stretch: total jumps from 3.2s to 16s in one pause.
	tracker.Start("hero")
	clock.Advance(12800 * time.Millisecond)
	tracker.Pause("hero")

	fired := rec.sectionTimes()
	require.Len(t, fired, 3)
	assert.Equal(t, 3, fired[0].Threshold)
	assert.Equal(t, 7, fired[1].Threshold)
	assert.Equal(t, 15, fired[2].Threshold)

	// Subsequent pauses never re-fire.
	tracker.Start("hero")
	clock.Advance(20 * time.Second)
	tracker.Pause("hero")
	assert.Len(t, rec.sectionTimes(), 3)
}

func TestDwellPauseWithoutTimerIsNoop(t *testing.T) {
	_, rec, tracker := newDwellFixture()
	tracker.Pause("never-started")
	assert.Empty(t, rec.payloads)
}

func TestDwellDoublePauseAccruesNothing(t *testing.T) {
	clock, _, tracker := newDwellFixture()

	tracker.Start("faq")
	clock.Advance(time.Second)
	tracker.Pause("faq")
	clock.Advance(time.Second)
	tracker.Pause("faq")

	assert.InDelta(t, 1.0, tracker.Accumulated("faq"), 0.001)
}

func TestDwellThresholdsPerSectionIndependent(t *testing.T) {
	clock, rec, tracker := newDwellFixture()

	tracker.Start("hero")
	tracker.Start("pricing")
	clock.Advance(4 * time.Second)
	tracker.Pause("hero")
	tracker.Pause("pricing")

	fired := rec.sectionTimes()
	require.Len(t, fired, 2)
	assert.ElementsMatch(t,
		[]models.SectionTime{
			{SectionID: "hero", Threshold: 3},
			{SectionID: "pricing", Threshold: 3},
		}, fired)
}

func TestDwellPauseAll(t *testing.T) {
	clock, rec, tracker := newDwellFixture()

	tracker.Start("hero")
	tracker.Start("faq")
	clock.Advance(8 * time.Second)
	tracker.PauseAll()

	fired := rec.sectionTimes()
	assert.Len(t, fired, 4) // 3s and 7s for both sections
}
