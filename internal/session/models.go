package session

import "time"

// CallSession represents one customer-facing phone interaction.
//
// Invariants:
// - ConferenceRoomID is set if and only if Status is bridged or transferred.
// - EndedAt is set if and only if Status is ended.
// - Status only moves forward through the transition graph (see CanTransition);
//   every mutation goes through Store so the precondition check is atomic.
//
// NOTE: This is a domain model only. Carrier-specific identifiers live in
// CarrierCallID / CallLeg.CarrierLegID, not mixed into provider SDK types.

type CallSession struct {
	ID            string `json:"id" db:"id"`
	CarrierCallID string `json:"carrier_call_id" db:"carrier_call_id"`

	Direction Direction `json:"direction" db:"direction"`

	// CounterpartNumber is the customer's number, E.164 where possible.
	CounterpartNumber string `json:"counterpart_number" db:"counterpart_number"`

	// ContactID is a weak reference to an externally owned Contact record.
	ContactID  string `json:"contact_id,omitempty" db:"contact_id"`
	CampaignID string `json:"campaign_id,omitempty" db:"campaign_id"`

	Status Status `json:"status" db:"status"`

	ConferenceRoomID string `json:"conference_room_id,omitempty" db:"conference_room_id"`

	AssignedAgentID string `json:"assigned_agent_id,omitempty" db:"assigned_agent_id"`
	AssignedQueueID string `json:"assigned_queue_id,omitempty" db:"assigned_queue_id"`

	Priority Priority `json:"priority" db:"priority"`

	// DurationSeconds is set from the carrier's end-of-call report or from
	// the agent's disposition submission, whichever arrives first.
	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	RecordingURL string `json:"recording_url,omitempty" db:"recording_url"`

	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty" db:"answered_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

// Ended reports whether the session reached its terminal state.
func (s CallSession) Ended() bool { return s.Status == StatusEnded }

// CallLeg is one directional dial belonging to exactly one CallSession.
// A session owns one or two legs; legs never outlive their session.
type CallLeg struct {
	ID           string    `json:"id" db:"id"`
	SessionID    string    `json:"session_id" db:"session_id"`
	CarrierLegID string    `json:"carrier_leg_id" db:"carrier_leg_id"`
	Role         LegRole   `json:"role" db:"role"`
	Status       LegStatus `json:"status" db:"status"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type LegRole string

const (
	LegRoleCustomer LegRole = "customer"
	LegRoleAgent    LegRole = "agent"
)

type LegStatus string

const (
	LegStatusDialing   LegStatus = "dialing"
	LegStatusRinging   LegStatus = "ringing"
	LegStatusConnected LegStatus = "connected"
	LegStatusHungUp    LegStatus = "hung_up"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type Status string

const (
	StatusRinging     Status = "ringing"
	StatusQueued      Status = "queued"
	StatusAnswered    Status = "answered"
	StatusBridged     Status = "bridged"
	StatusTransferred Status = "transferred"
	StatusEnded       Status = "ended"
)

// transitions is the authoritative forward-only graph. A session can never
// re-enter an earlier state; ended is terminal.
var transitions = map[Status][]Status{
	StatusRinging:     {StatusAnswered, StatusQueued, StatusEnded},
	StatusQueued:      {StatusAnswered, StatusEnded},
	StatusAnswered:    {StatusBridged, StatusEnded},
	StatusBridged:     {StatusTransferred, StatusEnded},
	StatusTransferred: {StatusEnded},
	StatusEnded:       nil,
}

// CanTransition reports whether from -> to is a legal move.
// This is the single place the graph is encoded; handlers must not compare
// raw status strings.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ConferenceRoom derives the carrier-side room name for a session. Rooms are
// keyed by session id; the carrier creates the room on first join.
func ConferenceRoom(sessionID string) string { return "conf-" + sessionID }

// Event is one append-only entry in a session's transition log.
// Events are never updated or deleted.
type Event struct {
	ID        string    `json:"id" db:"id"`
	SessionID string    `json:"session_id" db:"session_id"`
	From      Status    `json:"from" db:"from_status"`
	To        Status    `json:"to" db:"to_status"`
	Reason    string    `json:"reason,omitempty" db:"reason"`
	At        time.Time `json:"at" db:"at"`
}
