package chat

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/kadirpekel/agentchat/pkg/a2a"
)

// MessageRole distinguishes user turns from assistant turns.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// responseIDPrefix marks ids minted for a response message rather than a
// task. A response id must never be mistaken for a task id: resubscribing
// with one produces an immediate protocol error on every attempt.
const responseIDPrefix = "msg_"

// ChatMessage is one persisted conversation turn. Assistant turns carry
// content blocks; user turns carry a single text block.
type ChatMessage struct {
	ID            string
	Role          MessageRole
	ContentBlocks []ContentBlock
	Timestamp     time.Time
	ContextID     string
	AgentID       string
	AgentCardURL  string

	// Task linkage for assistant turns. TaskID is empty when the agent
	// answered with a plain message instead of creating a task.
	TaskID         string
	TaskState      a2a.TaskState
	TaskStartIndex int
	Usage          *TokenUsage

	// IsStreaming marks a turn whose stream has not yet finished. A stored
	// message still flagged as streaming after a reload is a candidate for
	// resubscription.
	IsStreaming bool
}

// IsResponseID reports whether id was minted for a response message rather
// than a task.
func IsResponseID(id string) bool {
	return strings.HasPrefix(id, responseIDPrefix)
}

// NewResponseID mints a response message id from a raw identifier.
func NewResponseID(raw string) string {
	if IsResponseID(raw) {
		return raw
	}
	return responseIDPrefix + raw
}

// Text flattens the message to plain text: the concatenation of its text
// blocks separated by blank lines. Tool, artifact and status content is
// omitted.
func (m *ChatMessage) Text() string {
	var texts []string
	for _, b := range m.ContentBlocks {
		if tb, ok := b.(*TextBlock); ok && tb.Text != "" {
			texts = append(texts, tb.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}

// chatMessageJSON is the persisted wire form of a ChatMessage. Content
// blocks are embedded as kind-tagged envelopes.
type chatMessageJSON struct {
	ID             string          `json:"id"`
	Role           MessageRole     `json:"role"`
	ContentBlocks  json.RawMessage `json:"contentBlocks,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	ContextID      string          `json:"contextId,omitempty"`
	AgentID        string          `json:"agentId,omitempty"`
	AgentCardURL   string          `json:"agentCardUrl,omitempty"`
	TaskID         string          `json:"taskId,omitempty"`
	TaskState      a2a.TaskState   `json:"taskState,omitempty"`
	TaskStartIndex int             `json:"taskStartIndex,omitempty"`
	Usage          *TokenUsage     `json:"usage,omitempty"`
	IsStreaming    bool            `json:"isStreaming,omitempty"`
}

func (m *ChatMessage) MarshalJSON() ([]byte, error) {
	blocks, err := MarshalContentBlocks(m.ContentBlocks)
	if err != nil {
		return nil, err
	}
	return json.Marshal(chatMessageJSON{
		ID:             m.ID,
		Role:           m.Role,
		ContentBlocks:  blocks,
		Timestamp:      m.Timestamp,
		ContextID:      m.ContextID,
		AgentID:        m.AgentID,
		AgentCardURL:   m.AgentCardURL,
		TaskID:         m.TaskID,
		TaskState:      m.TaskState,
		TaskStartIndex: m.TaskStartIndex,
		Usage:          m.Usage,
		IsStreaming:    m.IsStreaming,
	})
}

func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var raw chatMessageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	blocks, err := UnmarshalContentBlocks(raw.ContentBlocks)
	if err != nil {
		return err
	}
	m.ID = raw.ID
	m.Role = raw.Role
	m.ContentBlocks = blocks
	m.Timestamp = raw.Timestamp
	m.ContextID = raw.ContextID
	m.AgentID = raw.AgentID
	m.AgentCardURL = raw.AgentCardURL
	m.TaskID = raw.TaskID
	m.TaskState = raw.TaskState
	m.TaskStartIndex = raw.TaskStartIndex
	m.Usage = raw.Usage
	m.IsStreaming = raw.IsStreaming
	return nil
}

// NewUserChatMessage builds a persisted user turn from plain text.
func NewUserChatMessage(id, agentID, contextID, text string, at time.Time) *ChatMessage {
	return &ChatMessage{
		ID:        id,
		Role:      MessageRoleUser,
		ContextID: contextID,
		AgentID:   agentID,
		Timestamp: at,
		ContentBlocks: []ContentBlock{
			&TextBlock{Text: text, Timestamp: at},
		},
	}
}
