// Package track implements the behavioral instrumentation engine: session
// identity, fire-once deduplication, section dwell timing, exposure and
// scroll detection, CTA classification, and debounced batch dispatch.
//
// The engine is browser-agnostic: an adapter feeds it visibility, scroll,
// click and lifecycle signals, and it ships event batches to the ingestion
// endpoint. All state is scoped to one Session, created per page load and
// discarded on teardown.
package track

import (
	"encoding/binary"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pagepulse/pagepulse/internal/logging"
	"github.com/pagepulse/pagepulse/internal/models"
)

// DefaultFlushDelay is the dispatch debounce: the queue flushes after this
// long without a new event.
const DefaultFlushDelay = 1000 * time.Millisecond

// Options configures a Session. Zero values get defaults.
type Options struct {
	Endpoint       string        // ingestion URL, e.g. "https://site/api/analytics"
	PageOrigin     string        // scheme://host of the page, for external CTA detection
	HTTPClient     *http.Client  // defaults to http.DefaultClient
	Clock          Clock         // defaults to the wall clock
	FlushDelay     time.Duration // defaults to DefaultFlushDelay
	ExposureDelay  time.Duration // defaults to DefaultExposureDelay
	ScrollThrottle time.Duration // defaults to DefaultScrollThrottle

	SectionResolver SectionResolver // defaults to HeuristicSectionResolver
	CTAResolver     CTAResolver     // defaults to HeuristicCTAResolver

	Logger *zerolog.Logger // defaults to the global component logger
}

// Session owns every mutable registry of the engine (dedupe sets, dwell
// timers, dispatch queue) for one page lifetime. A single mutex serializes
// all handlers and timer callbacks, reproducing the browser's one logical
// thread of control while keeping re-entry from async timers safe.
type Session struct {
	mu    sync.Mutex
	clock Clock
	log   zerolog.Logger

	id     string // lazily created on first event
	closed bool

	registry    *dedupeRegistry
	dispatcher  *Dispatcher
	dwell       *SectionTimeTracker
	exposure    *ExposureDetector
	scroll      *ScrollDepthTracker
	cta         *CTATracker
	abandonment *AbandonmentDetector
}

// NewSession creates an active session. The session id is not generated until
// the first event is emitted.
func NewSession(opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.FlushDelay == 0 {
		opts.FlushDelay = DefaultFlushDelay
	}
	if opts.ExposureDelay == 0 {
		opts.ExposureDelay = DefaultExposureDelay
	}
	if opts.ScrollThrottle == 0 {
		opts.ScrollThrottle = DefaultScrollThrottle
	}
	if opts.SectionResolver == nil {
		opts.SectionResolver = HeuristicSectionResolver{}
	}
	if opts.CTAResolver == nil {
		opts.CTAResolver = HeuristicCTAResolver{}
	}

	var log zerolog.Logger
	if opts.Logger != nil {
		log = *opts.Logger
	} else {
		log = logging.WithComponent("track")
	}

	s := &Session{
		clock:    opts.Clock,
		log:      log,
		registry: newDedupeRegistry(),
	}
	s.dispatcher = newDispatcher(opts.Clock, log, opts.Endpoint, opts.HTTPClient, opts.FlushDelay, s.locked)
	s.dwell = newSectionTimeTracker(opts.Clock, s.registry, s.emit)
	s.exposure = newExposureDetector(opts.Clock, opts.ExposureDelay, s.registry, s.dwell, opts.SectionResolver, s.emit, s.locked)
	s.scroll = newScrollDepthTracker(opts.Clock, opts.ScrollThrottle, s.registry, s.emit)
	s.cta = newCTATracker(s.registry, opts.CTAResolver, opts.PageOrigin, s.emit)
	s.abandonment = newAbandonmentDetector(s.registry, s.dwell, s.dispatcher, s.emit)
	return s
}

// locked runs f under the session mutex unless the session is closed.
// Timer callbacks re-enter through here.
func (s *Session) locked(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	f()
}

// ID returns the session token, creating it on first use. Tokens live in
// memory only; a reload means a new session.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID()
}

func (s *Session) sessionID() string {
	if s.id == "" {
		u := uuid.New()
		suffix := strconv.FormatUint(binary.BigEndian.Uint64(u[:8]), 36)
		if len(suffix) > 9 {
			suffix = suffix[:9]
		}
		s.id = fmt.Sprintf("s_%d_%s", s.clock.Now().UnixMilli(), suffix)
	}
	return s.id
}

// emit builds an event from the payload and hands it to the dispatcher.
// Called with the session lock held.
func (s *Session) emit(p models.Payload) {
	e := models.NewEvent(s.sessionID(), s.clock.Now().UnixMilli(), p)
	s.dispatcher.Enqueue(e)
}

// Visibility reports that an observed element crossed the visibility
// threshold (entering when visible is true, leaving otherwise).
func (s *Session) Visibility(el Element, visible bool) {
	s.locked(func() { s.exposure.Transition(el, visible) })
}

// Scroll reports the current scroll position.
func (s *Session) Scroll(scrollY, documentHeight, viewportHeight float64) {
	s.locked(func() { s.scroll.Scroll(scrollY, documentHeight, viewportHeight) })
}

// Click reports a click on the nearest CTA-candidate element.
func (s *Session) Click(el Element) {
	s.locked(func() { s.cta.Click(el) })
}

// PageHidden reports the tab being hidden or the app backgrounded.
func (s *Session) PageHidden() {
	s.locked(func() { s.abandonment.Trigger() })
}

// PageUnloading reports imminent navigation or close.
func (s *Session) PageUnloading() {
	s.locked(func() { s.abandonment.Trigger() })
}

// Flush forces immediate delivery of the queue, bypassing the debounce.
func (s *Session) Flush() {
	s.locked(func() { s.dispatcher.Flush() })
}

// Pending reports the number of queued, undelivered events.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher.Pending()
}

// Close tears the session down: cancels pending exposure timers, delivers
// anything still queued, and rejects further signals.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.exposure.cancelAll()
	s.dispatcher.Flush()
	s.closed = true
}
