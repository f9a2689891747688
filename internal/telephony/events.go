package telephony

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Carrier webhooks arrive as form-encoded posts with loosely shaped fields.
// Each expected kind gets its own tagged variant, validated here at the
// boundary before anything reaches the session state machine.

type EventKind string

const (
	EventKindRing      EventKind = "ring"
	EventKindStatus    EventKind = "status"
	EventKindRecording EventKind = "recording"
)

var ErrMalformedEvent = errors.New("telephony: malformed event")

// RingEvent is the initial inbound-call webhook.
type RingEvent struct {
	CarrierCallID string
	From          string
	To            string
	Status        string
	OccurredAt    time.Time
}

func (RingEvent) Kind() EventKind { return EventKindRing }

// StatusEvent reports a call progress change or the final hangup.
type StatusEvent struct {
	CarrierCallID   string
	Status          string
	DurationSeconds int
}

func (StatusEvent) Kind() EventKind { return EventKindStatus }

// RecordingEvent delivers a recording reference after the fact.
type RecordingEvent struct {
	CarrierCallID   string
	RecordingURL    string
	DurationSeconds int
}

func (RecordingEvent) Kind() EventKind { return EventKindRecording }

func ParseRingEvent(r *http.Request, now time.Time) (RingEvent, error) {
	if err := r.ParseForm(); err != nil {
		return RingEvent{}, err
	}
	e := RingEvent{
		CarrierCallID: strings.TrimSpace(r.PostFormValue("CallSid")),
		From:          strings.TrimSpace(r.PostFormValue("From")),
		To:            strings.TrimSpace(r.PostFormValue("To")),
		Status:        strings.TrimSpace(r.PostFormValue("CallStatus")),
		OccurredAt:    now,
	}
	if e.CarrierCallID == "" || e.From == "" || e.To == "" {
		return RingEvent{}, ErrMalformedEvent
	}
	return e, nil
}

func ParseStatusEvent(r *http.Request) (StatusEvent, error) {
	if err := r.ParseForm(); err != nil {
		return StatusEvent{}, err
	}
	e := StatusEvent{
		CarrierCallID: strings.TrimSpace(r.PostFormValue("CallSid")),
		Status:        strings.TrimSpace(r.PostFormValue("CallStatus")),
	}
	if d := strings.TrimSpace(r.PostFormValue("CallDuration")); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil {
			return StatusEvent{}, ErrMalformedEvent
		}
		e.DurationSeconds = n
	}
	if e.CarrierCallID == "" || e.Status == "" {
		return StatusEvent{}, ErrMalformedEvent
	}
	return e, nil
}

func ParseRecordingEvent(r *http.Request) (RecordingEvent, error) {
	if err := r.ParseForm(); err != nil {
		return RecordingEvent{}, err
	}
	e := RecordingEvent{
		CarrierCallID: strings.TrimSpace(r.PostFormValue("CallSid")),
		RecordingURL:  strings.TrimSpace(r.PostFormValue("RecordingUrl")),
	}
	if d := strings.TrimSpace(r.PostFormValue("RecordingDuration")); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil {
			return RecordingEvent{}, ErrMalformedEvent
		}
		e.DurationSeconds = n
	}
	if e.CarrierCallID == "" || e.RecordingURL == "" {
		return RecordingEvent{}, ErrMalformedEvent
	}
	return e, nil
}
