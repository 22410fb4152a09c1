package a2a

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// STREAM EVENTS - SSE frames discriminated by "kind"
// Spec Section 7.2 plus the transport-level wrapper events emitted by the
// console's agent runtimes (response-metadata, text-delta).
// ============================================================================

// Event is one frame of an A2A event stream. Concrete types are TaskEvent,
// StatusUpdateEvent, ArtifactUpdateEvent, ResponseMetadataEvent and
// TextDeltaEvent; consumers type-switch exhaustively.
type Event interface {
	eventKind() string
}

// TaskEvent announces task creation with its initial status.
type TaskEvent struct {
	Task
}

func (*TaskEvent) eventKind() string { return EventKindTask }

// StatusUpdateEvent carries a task status transition, optionally with an
// embedded message. Final marks the terminal status of the task.
type StatusUpdateEvent struct {
	TaskID    string     `json:"taskId"`
	ContextID string     `json:"contextId,omitempty"`
	Status    TaskStatus `json:"status"`
	Final     bool       `json:"final"`
}

func (*StatusUpdateEvent) eventKind() string { return EventKindStatusUpdate }

// ArtifactUpdateEvent carries an artifact chunk. Subsequent events with the
// same artifactId extend the artifact rather than replace it.
type ArtifactUpdateEvent struct {
	TaskID    string   `json:"taskId"`
	ContextID string   `json:"contextId,omitempty"`
	Artifact  Artifact `json:"artifact"`
	Append    bool     `json:"append,omitempty"`
	LastChunk bool     `json:"lastChunk,omitempty"`
}

func (*ArtifactUpdateEvent) eventKind() string { return EventKindArtifactUpdate }

// ResponseMetadataEvent is a transport-level wrapper event identifying the
// response. The identifier is opaque: it may name a task or a single message.
type ResponseMetadataEvent struct {
	ResponseID string `json:"responseId"`
}

func (*ResponseMetadataEvent) eventKind() string { return EventKindResponseMetadata }

// TextDeltaEvent is a transport-level wrapper event carrying one chunk of
// streamed assistant prose.
type TextDeltaEvent struct {
	TaskID string `json:"taskId,omitempty"`
	Text   string `json:"text"`
}

func (*TextDeltaEvent) eventKind() string { return EventKindTextDelta }

// Event kind tags as they appear on the wire.
const (
	EventKindTask             = "task"
	EventKindStatusUpdate     = "status-update"
	EventKindArtifactUpdate   = "artifact-update"
	EventKindResponseMetadata = "response-metadata"
	EventKindTextDelta        = "text-delta"
)

// EventKind returns the wire tag of an event.
func EventKind(ev Event) string {
	if ev == nil {
		return ""
	}
	return ev.eventKind()
}

// errorEnvelope is the JSON-RPC style error carried in an SSE data frame.
type errorEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// DecodeEvent decodes one SSE data frame into an Event. Frames with an
// unrecognized kind or that fail to decode yield (nil, nil) so a stream
// consumer can skip them; one bad frame must never abort an otherwise
// healthy stream. Only an explicit error envelope returns an error.
func DecodeEvent(data []byte) (Event, error) {
	var probe struct {
		Kind  string         `json:"kind"`
		Error *errorEnvelope `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, nil
	}

	if probe.Error != nil {
		return nil, fmt.Errorf("SSE event contained an error: %s (Code: %d) Data: %s",
			probe.Error.Message, probe.Error.Code, rawOrEmptyObject(probe.Error.Data))
	}

	switch probe.Kind {
	case EventKindTask:
		var ev TaskEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, nil
		}
		return &ev, nil
	case EventKindStatusUpdate:
		var ev StatusUpdateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, nil
		}
		return &ev, nil
	case EventKindArtifactUpdate:
		var ev ArtifactUpdateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, nil
		}
		return &ev, nil
	case EventKindResponseMetadata:
		var ev ResponseMetadataEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, nil
		}
		return &ev, nil
	case EventKindTextDelta:
		var ev TextDeltaEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, nil
		}
		return &ev, nil
	default:
		return nil, nil
	}
}

func rawOrEmptyObject(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
