// Package a2a implements the client side of the Agent-to-Agent (A2A) protocol
// as spoken by the console's agent runtimes: HTTP+JSON requests plus an SSE
// event stream whose frames are discriminated by a "kind" tag.
// Specification: https://a2a-protocol.org/latest/specification/
package a2a

import (
	"time"
)

// ============================================================================
// TASK - Unit of Work in A2A Protocol
// Spec Section 6.1: Task Object
// ============================================================================

// Task represents a unit of agent work tracked by the server.
type Task struct {
	ID        string     `json:"id"`
	ContextID string     `json:"contextId,omitempty"`
	Status    TaskStatus `json:"status"`
	History   []Message  `json:"history,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// TaskStatus represents the status of a task (Section 6.2).
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// TaskState represents the lifecycle state of a task (Section 6.3).
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateFailed        TaskState = "failed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateRejected      TaskState = "rejected"
)

// Terminal reports whether the state is final: no further events will be
// produced for a task in this state.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled, TaskStateRejected:
		return true
	}
	return false
}

// ============================================================================
// MESSAGE - Conversation Messages
// Spec Section 6.4: Message Object
// ============================================================================

// Message represents one message in a conversation.
type Message struct {
	MessageID string      `json:"messageId,omitempty"`
	Role      MessageRole `json:"role"`
	Parts     []Part      `json:"parts"`
	TaskID    string      `json:"taskId,omitempty"`
	ContextID string      `json:"contextId,omitempty"`

	// Kind tags bookkeeping messages injected by some agent runtimes
	// (e.g. "artifact-update" echo messages). Empty for ordinary messages.
	Kind string `json:"kind,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// MessageRole represents the role of a message sender.
type MessageRole string

const (
	MessageRoleUser  MessageRole = "user"
	MessageRoleAgent MessageRole = "agent"
)

// ============================================================================
// PART - Message Content Parts
// Spec Section 6.5: Part Union Type
// ============================================================================

// Part represents a part of a message or artifact (union type).
type Part struct {
	// Kind discriminator: "text", "file" or "data".
	Kind PartKind `json:"kind"`

	// Text part (Section 6.5.1)
	Text string `json:"text,omitempty"`

	// File part (Section 6.5.2)
	File *FileContent `json:"file,omitempty"`

	// Data part (Section 6.5.3)
	Data map[string]any `json:"data,omitempty"`
}

// PartKind represents the kind of a message part.
type PartKind string

const (
	PartKindText PartKind = "text"
	PartKindFile PartKind = "file"
	PartKindData PartKind = "data"
)

// FileContent represents a file in a message, either inline or by reference
// (FileWithBytes / FileWithUri, Section 6.6).
type FileContent struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType"`
	Bytes    []byte `json:"bytes,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// ============================================================================
// ARTIFACT - Task Output Artifacts
// Spec Section 6.7: Artifact Object
// ============================================================================

// Artifact represents a named piece of generated output, delivered
// incrementally over the stream.
type Artifact struct {
	ArtifactID  string `json:"artifactId"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Parts       []Part `json:"parts"`
}

// ============================================================================
// AGENT CARD - Agent Discovery & Capability Advertisement
// Spec Section 5.5: AgentCard Object Structure
// ============================================================================

// AgentCard represents an A2A agent's capabilities and metadata.
type AgentCard struct {
	Name         string            `json:"name"`
	URL          string            `json:"url"`
	Version      string            `json:"version,omitempty"`
	Description  string            `json:"description,omitempty"`
	Capabilities AgentCapabilities `json:"capabilities"`
}

// AgentCapabilities describes what an agent can do (Section 5.5.2).
type AgentCapabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications,omitempty"`
}

// ============================================================================
// RPC METHOD PARAMETERS
// Spec Section 7: Protocol RPC Methods
// ============================================================================

// MessageSendParams represents parameters for message/send and message/stream
// (Section 7.1.1).
type MessageSendParams struct {
	Message       Message               `json:"message"`
	Configuration *MessageConfiguration `json:"configuration,omitempty"`
}

// MessageConfiguration provides execution configuration (Section 7.1.2).
type MessageConfiguration struct {
	Model          string         `json:"model,omitempty"`
	CustomSettings map[string]any `json:"customSettings,omitempty"`
}

// TaskQueryParams represents parameters for tasks/get (Section 7.3.1).
type TaskQueryParams struct {
	TaskID string `json:"taskId"`
}

// TaskCancelParams represents parameters for tasks/cancel (Section 7.4.1).
type TaskCancelParams struct {
	TaskID string `json:"taskId"`
	Reason string `json:"reason,omitempty"`
}

// TaskResubscribeParams represents parameters for tasks/resubscribe
// (Section 7.9).
type TaskResubscribeParams struct {
	TaskID      string `json:"taskId"`
	LastEventID string `json:"lastEventId,omitempty"`
}
