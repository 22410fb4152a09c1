package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentchat/pkg/a2a"
)

func TestChatMessage_JSONRoundTripPreservesBlockTypes(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	end := at.Add(3 * time.Second)
	msg := &ChatMessage{
		ID:        "msg_1",
		Role:      MessageRoleAssistant,
		Timestamp: at,
		ContextID: "ctx-1",
		AgentID:   "agent-1",
		TaskID:    "task-1",
		TaskState: a2a.TaskStateCompleted,
		Usage:     &TokenUsage{InputTokens: 10, OutputTokens: 42},
		ContentBlocks: []ContentBlock{
			&TextBlock{Text: "hello", Timestamp: at},
			&ToolBlock{
				ToolCallID:   "tc-1",
				ToolName:     "search",
				State:        ToolStateOutputAvailable,
				Input:        map[string]any{"q": "weather"},
				Output:       "sunny",
				Timestamp:    at,
				EndTimestamp: &end,
			},
			&ArtifactBlock{
				ArtifactID: "a1",
				Name:       "report",
				Parts:      []ArtifactPart{{Kind: a2a.PartKindText, Text: "# Report"}},
				Timestamp:  at,
			},
			&StatusBlock{TaskState: a2a.TaskStateCompleted, Final: true, Timestamp: at},
			&ConnectionBlock{Status: ConnectionReconnected, Attempt: 2, MaxAttempts: 5, Timestamp: at},
			&ErrorBlock{Code: -1, Message: "network dropped", Timestamp: at},
		},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded ChatMessage
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, msg.ID, decoded.ID)
	assert.Equal(t, msg.TaskID, decoded.TaskID)
	assert.Equal(t, msg.TaskState, decoded.TaskState)
	require.NotNil(t, decoded.Usage)
	assert.Equal(t, int64(42), decoded.Usage.OutputTokens)

	require.Len(t, decoded.ContentBlocks, 6)
	assert.Equal(t, "hello", decoded.ContentBlocks[0].(*TextBlock).Text)

	tool := decoded.ContentBlocks[1].(*ToolBlock)
	assert.Equal(t, "tc-1", tool.ToolCallID)
	assert.Equal(t, ToolStateOutputAvailable, tool.State)
	require.NotNil(t, tool.EndTimestamp)
	assert.True(t, tool.EndTimestamp.Equal(end))

	artifact := decoded.ContentBlocks[2].(*ArtifactBlock)
	assert.Equal(t, "# Report", artifact.Parts[0].Text)

	connection := decoded.ContentBlocks[4].(*ConnectionBlock)
	assert.Equal(t, ConnectionReconnected, connection.Status)
	assert.Equal(t, 2, connection.Attempt)

	assert.Equal(t, "network dropped", decoded.ContentBlocks[5].(*ErrorBlock).Message)
}

func TestUnmarshalContentBlocks_UnknownKindFails(t *testing.T) {
	_, err := UnmarshalContentBlocks([]byte(`[{"kind":"hologram","body":{}}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown content block kind")
}

func TestUnmarshalContentBlocks_Empty(t *testing.T) {
	blocks, err := UnmarshalContentBlocks(nil)
	require.NoError(t, err)
	assert.Nil(t, blocks)
}

func TestChatMessage_Text(t *testing.T) {
	msg := &ChatMessage{ContentBlocks: []ContentBlock{
		&TextBlock{Text: "first"},
		&StatusBlock{TaskState: a2a.TaskStateWorking},
		&TextBlock{Text: "second"},
		&TextBlock{},
	}}
	assert.Equal(t, "first\n\nsecond", msg.Text())
}

func TestNewUserChatMessage(t *testing.T) {
	at := time.Now()
	msg := NewUserChatMessage("u1", "agent-1", "ctx-1", "hello there", at)

	assert.Equal(t, MessageRoleUser, msg.Role)
	assert.Equal(t, "hello there", msg.Text())
	assert.Equal(t, "agent-1", msg.AgentID)
	require.Len(t, msg.ContentBlocks, 1)
}
