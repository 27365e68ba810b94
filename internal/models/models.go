// Package models defines the behavioral event taxonomy shared by the
// instrumentation engine and the ingestion service.
package models

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Kind identifies a behavioral event type. The set is closed: the engine can
// only construct these five, and the dashboard rollups only know about them.
type Kind string

const (
	KindSectionExposed Kind = "section_exposed"
	KindScrollDepth    Kind = "scroll_depth"
	KindSectionTime    Kind = "section_time_threshold"
	KindCTAClick       Kind = "cta_click"
	KindAbandonment    Kind = "page_abandonment"
)

// CTA classification values carried by cta_click events.
const (
	CTAPrimary   = "primary"
	CTASecondary = "secondary"
	CTAExternal  = "external"
)

// Event is the wire and storage record. Kind, SessionID and Timestamp are
// mandatory; everything else is the kind-specific payload, flattened into the
// same JSON object on the wire and kept opaque by the dispatcher.
type Event struct {
	Kind      Kind           `json:"event"`
	SessionID string         `json:"session_id"`
	Timestamp int64          `json:"timestamp"` // ms since epoch, client clock
	Data      map[string]any `json:"-"`
}

// Batch is the ingestion request body.
type Batch struct {
	Events []Event `json:"events"`
}

// UnmarshalJSON decodes the events array element by element, skipping entries
// that are not JSON objects. Only a malformed top level is a hard error;
// per-event problems surface later as validation failures, keeping partial
// ingestion intact.
func (b *Batch) UnmarshalJSON(data []byte) error {
	var raw struct {
		Events []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.Events = nil
	for _, item := range raw.Events {
		var e Event
		if err := json.Unmarshal(item, &e); err != nil {
			continue
		}
		b.Events = append(b.Events, e)
	}
	return nil
}

// Payload is the typed counterpart of Event.Data, keyed by event kind.
type Payload interface {
	Kind() Kind
}

type SectionExposed struct {
	SectionID string `json:"section_id"`
}

func (SectionExposed) Kind() Kind { return KindSectionExposed }

type ScrollDepth struct {
	Percentage int `json:"percentage"` // 25, 50, 75 or 100
}

func (ScrollDepth) Kind() Kind { return KindScrollDepth }

type SectionTime struct {
	SectionID string `json:"section_id"`
	Threshold int    `json:"threshold"` // seconds: 3, 7 or 15
}

func (SectionTime) Kind() Kind { return KindSectionTime }

type CTAClick struct {
	CTAType string `json:"cta_type"`
	CTAID   string `json:"cta_id"`
}

func (CTAClick) Kind() Kind { return KindCTAClick }

type Abandonment struct {
	LastSectionID string `json:"last_section_id"`
}

func (Abandonment) Kind() Kind { return KindAbandonment }

// NewEvent builds an event from a typed payload.
func NewEvent(sessionID string, timestamp int64, p Payload) Event {
	return Event{
		Kind:      p.Kind(),
		SessionID: sessionID,
		Timestamp: timestamp,
		Data:      payloadFields(p),
	}
}

func payloadFields(p Payload) map[string]any {
	raw, err := json.Marshal(p)
	if err != nil {
		return map[string]any{}
	}
	fields := map[string]any{}
	_ = json.Unmarshal(raw, &fields)
	return fields
}

// payloadTypes maps each kind to a constructor for its typed payload.
var payloadTypes = map[Kind]func() Payload{
	KindSectionExposed: func() Payload { return &SectionExposed{} },
	KindScrollDepth:    func() Payload { return &ScrollDepth{} },
	KindSectionTime:    func() Payload { return &SectionTime{} },
	KindCTAClick:       func() Payload { return &CTAClick{} },
	KindAbandonment:    func() Payload { return &Abandonment{} },
}

// DecodePayload re-types Event.Data according to the event kind.
func DecodePayload(e Event) (Payload, error) {
	ctor, ok := payloadTypes[e.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	p := ctor()
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return p, nil
}

// Valid reports whether the event carries the three mandatory fields with the
// right types. Invalid events are silently dropped by ingestion; partial
// success is normal.
func (e Event) Valid() bool {
	return e.Kind != "" && e.SessionID != "" && e.Timestamp != 0
}

// MarshalJSON flattens the payload fields into the event object, matching the
// wire shape {"event": ..., "session_id": ..., "timestamp": ..., ...payload}.
func (e Event) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Data)+3)
	for k, v := range e.Data {
		flat[k] = v
	}
	flat["event"] = e.Kind
	flat["session_id"] = e.SessionID
	flat["timestamp"] = e.Timestamp
	return json.Marshal(flat)
}

// UnmarshalJSON splits the mandatory fields from the payload. Fields of the
// wrong type are left at their zero value so Valid rejects the event.
func (e *Event) UnmarshalJSON(data []byte) error {
	flat := map[string]any{}
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if kind, ok := flat["event"].(string); ok {
		e.Kind = Kind(kind)
	}
	if id, ok := flat["session_id"].(string); ok {
		e.SessionID = id
	}
	if ts, ok := flat["timestamp"].(float64); ok {
		e.Timestamp = int64(ts)
	}
	delete(flat, "event")
	delete(flat, "session_id")
	delete(flat, "timestamp")
	e.Data = flat
	return nil
}
