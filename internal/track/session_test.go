package track

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagepulse/pagepulse/internal/models"
)

func newTestSession(t *testing.T, endpoint string, clock Clock) *Session {
	t.Helper()
	nop := zerolog.Nop()
	return NewSession(Options{
		Endpoint:   endpoint,
		PageOrigin: testOrigin,
		Clock:      clock,
		Logger:     &nop,
	})
}

func TestSessionIDLazyAndStable(t *testing.T) {
	s := newTestSession(t, "", newFakeClock())

	id := s.ID()
	assert.True(t, strings.HasPrefix(id, "s_"), "id %q should have s_ prefix", id)
	assert.Equal(t, id, s.ID())

	other := newTestSession(t, "", newFakeClock())
	assert.NotEqual(t, id, other.ID())
}

func TestSessionAbandonmentFlow(t *testing.T) {
	srv, batches := newDeliveryServer(t)
	clock := newFakeClock()
	s := newTestSession(t, srv.URL, clock)

	hero := Element{Marker: "hero"}
	s.Visibility(hero, true)

	// Exposure fires after 1s of continuous visibility and is delivered by
	// the debounced flush 1s later.
	clock.Advance(2 * time.Second)
	first := waitForBatch(t, batches)
	require.Len(t, first.Events, 1)
	assert.Equal(t, models.KindSectionExposed, first.Events[0].Kind)
	assert.Equal(t, "hero", first.Events[0].Data["section_id"])

	// Stay visible past the 3s dwell threshold, then hide the tab. The
	// pending threshold event must ride in the same forced batch as the
	// abandonment, in that order.
	clock.Advance(2500 * time.Millisecond)
	s.PageHidden()

	final := waitForBatch(t, batches)
	require.Len(t, final.Events, 2)
	assert.Equal(t, models.KindSectionTime, final.Events[0].Kind)
	assert.EqualValues(t, 3, final.Events[0].Data["threshold"])
	assert.Equal(t, models.KindAbandonment, final.Events[1].Kind)
	assert.Equal(t, "hero", final.Events[1].Data["last_section_id"])

	// Every event carries the same session token.
	assert.Equal(t, first.Events[0].SessionID, final.Events[0].SessionID)
	assert.Equal(t, first.Events[0].SessionID, final.Events[1].SessionID)

	// Abandonment reports once; a later unload signal is a no-op.
	s.PageUnloading()
	select {
	case extra := <-batches:
		t.Fatalf("unexpected batch after abandonment: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSessionAbandonmentWithoutExposureUsesSentinel(t *testing.T) {
	srv, batches := newDeliveryServer(t)
	s := newTestSession(t, srv.URL, newFakeClock())

	s.PageUnloading()

	batch := waitForBatch(t, batches)
	require.Len(t, batch.Events, 1)
	assert.Equal(t, models.KindAbandonment, batch.Events[0].Kind)
	assert.Equal(t, "unknown", batch.Events[0].Data["last_section_id"])
}

func TestSessionScrollAndClickFlow(t *testing.T) {
	srv, batches := newDeliveryServer(t)
	clock := newFakeClock()
	s := newTestSession(t, srv.URL, clock)

	s.Scroll(800, 1600, 600) // 80%
	clock.Advance(200 * time.Millisecond)
	s.Click(Element{Marker: "signup", Classes: []string{"btn-primary"}})
	s.Flush()

	batch := waitForBatch(t, batches)
	require.Len(t, batch.Events, 4)
	assert.Equal(t, models.KindScrollDepth, batch.Events[0].Kind)
	assert.EqualValues(t, 75, batch.Events[0].Data["percentage"])
	assert.EqualValues(t, 50, batch.Events[1].Data["percentage"])
	assert.EqualValues(t, 25, batch.Events[2].Data["percentage"])
	assert.Equal(t, models.KindCTAClick, batch.Events[3].Kind)
	assert.Equal(t, "primary", batch.Events[3].Data["cta_type"])
	assert.Equal(t, "signup", batch.Events[3].Data["cta_id"])
}

func TestSessionCloseStopsTracking(t *testing.T) {
	srv, batches := newDeliveryServer(t)
	clock := newFakeClock()
	s := newTestSession(t, srv.URL, clock)

	s.Visibility(Element{Marker: "hero"}, true)
	s.Close()

	// The pending exposure timer was cancelled and new signals are dropped.
	clock.Advance(5 * time.Second)
	s.Scroll(800, 1600, 600)
	s.Flush()

	select {
	case extra := <-batches:
		t.Fatalf("unexpected batch after close: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}

	s.Close() // idempotent
}

type fakeSource struct {
	handler  SignalHandler
	detached bool
}

func (f *fakeSource) Subscribe(h SignalHandler) func() {
	f.handler = h
	return func() { f.detached = true }
}

func TestAttachLifecycle(t *testing.T) {
	srv, batches := newDeliveryServer(t)
	clock := newFakeClock()
	s := newTestSession(t, srv.URL, clock)
	src := &fakeSource{}

	dispose := Attach(s, src)
	require.NotNil(t, src.handler)

	src.handler.Scroll(500, 1600, 600)
	s.Flush()
	batch := waitForBatch(t, batches)
	assert.Len(t, batch.Events, 2) // 50 and 25

	dispose()
	assert.True(t, src.detached)
	src.handler.Scroll(1000, 1600, 600) // after dispose: dropped
	s.Flush()
	select {
	case extra := <-batches:
		t.Fatalf("unexpected batch after dispose: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}
