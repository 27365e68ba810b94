package track

import (
	"bytes"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/pagepulse/pagepulse/internal/models"
)

// flushState models the dispatcher's scheduling state machine.
type flushState int

const (
	stateIdle     flushState = iota // empty queue, no timer
	statePending                    // queued events, debounce timer armed
	stateFlushing                   // queue swapped out, delivery in progress
)

// Dispatcher queues events and ships them in debounced batches. Delivery is
// best-effort: a failed batch is dropped, never retried, and never surfaces
// an error to the caller.
type Dispatcher struct {
	clock    Clock
	log      zerolog.Logger
	endpoint string
	client   *http.Client
	delay    time.Duration
	run      func(func()) // serializes timer callbacks with the session

	queue []models.Event
	state flushState
	timer Timer
}

func newDispatcher(clock Clock, log zerolog.Logger, endpoint string, client *http.Client, delay time.Duration, run func(func())) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Dispatcher{
		clock:    clock,
		log:      log,
		endpoint: endpoint,
		client:   client,
		delay:    delay,
		run:      run,
	}
}

// Enqueue appends an event and restarts the debounce timer: only the final
// scheduled flush after a quiet period actually runs. Caller holds the
// session lock.
func (d *Dispatcher) Enqueue(e models.Event) {
	d.queue = append(d.queue, e)
	if d.timer != nil {
		d.timer.Stop()
	}
	d.state = statePending
	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.run(func() { d.flush(false) })
	})
}

// Flush forces delivery immediately, bypassing the debounce. Used on
// abandonment, where the page may terminate before the timer fires; delivery
// runs on the caller so it outlives teardown. Caller holds the session lock.
func (d *Dispatcher) Flush() {
	d.flush(true)
}

// Pending reports the number of queued, undelivered events.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

func (d *Dispatcher) flush(sync bool) {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if len(d.queue) == 0 {
		d.state = stateIdle
		return
	}

	batch := d.queue
	d.queue = nil
	d.state = stateFlushing

	body, err := json.Marshal(models.Batch{Events: batch})
	if err != nil {
		// Unencodable events are dropped like any failed batch.
		d.log.Debug().Err(err).Msg("encode batch failed")
		d.state = stateIdle
		return
	}

	if sync {
		d.deliver(body)
	} else {
		go d.deliver(body)
	}
	d.state = stateIdle
}

// deliver attempts a single POST of the batch. Failures are swallowed:
// analytics must never interrupt the page.
func (d *Dispatcher) deliver(body []byte) {
	resp, err := d.client.Post(d.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		d.log.Debug().Err(err).Msg("batch delivery failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		d.log.Debug().Int("status", resp.StatusCode).Msg("batch delivery rejected")
	}
}
