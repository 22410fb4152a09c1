package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentchat/pkg/a2a"
)

func TestTaskToContentBlocks_AgentMessagesOnly(t *testing.T) {
	task := &a2a.Task{
		ID: "task-1",
		History: []a2a.Message{
			{Role: a2a.MessageRoleUser, Parts: []a2a.Part{{Kind: a2a.PartKindText, Text: "what is 2+2"}}},
			{Role: a2a.MessageRoleAgent, Parts: []a2a.Part{{Kind: a2a.PartKindText, Text: "The answer is 4."}}},
		},
		Status: a2a.TaskStatus{State: a2a.TaskStateCompleted, Timestamp: time.Now()},
	}

	blocks := TaskToContentBlocks(task)

	require.Len(t, blocks, 2)
	assert.Equal(t, "The answer is 4.", blocks[0].(*TextBlock).Text)

	status := blocks[1].(*StatusBlock)
	assert.Equal(t, a2a.TaskStateCompleted, status.TaskState)
	assert.True(t, status.Final)
}

func TestTaskToContentBlocks_ToolSynopsis(t *testing.T) {
	task := &a2a.Task{
		ID: "task-1",
		History: []a2a.Message{
			{
				Role: a2a.MessageRoleAgent,
				Parts: []a2a.Part{
					{Kind: a2a.PartKindText, Text: "Let me check."},
					{Kind: a2a.PartKindText, Text: `Tool request: search({"q":"weather"})`},
					{Kind: a2a.PartKindData, Data: map[string]any{
						dataTypeKey:    dataTypeToolReq,
						"tool_call_id": "tc-1",
						"tool_name":    "search",
					}},
				},
			},
			{
				Role: a2a.MessageRoleAgent,
				Parts: []a2a.Part{
					{Kind: a2a.PartKindData, Data: map[string]any{
						dataTypeKey:    dataTypeToolResp,
						"tool_call_id": "tc-1",
						"result":       "sunny",
					}},
				},
			},
		},
		Status: a2a.TaskStatus{State: a2a.TaskStateCompleted, Timestamp: time.Now()},
	}

	blocks := TaskToContentBlocks(task)

	text := blocks[0].(*TextBlock)
	assert.Equal(t, "Let me check.\n\nCalling tool: search", text.Text)

	tool := FindToolBlock(blocks, "tc-1")
	require.NotNil(t, tool)
	assert.Equal(t, ToolStateOutputAvailable, tool.State)
	assert.Equal(t, "sunny", tool.Output)
}

func TestTaskToContentBlocks_MultiToolSynopsis(t *testing.T) {
	task := &a2a.Task{
		History: []a2a.Message{
			{
				Role: a2a.MessageRoleAgent,
				Parts: []a2a.Part{
					{Kind: a2a.PartKindData, Data: map[string]any{
						dataTypeKey: dataTypeToolReq, "tool_call_id": "tc-1", "tool_name": "search",
					}},
					{Kind: a2a.PartKindData, Data: map[string]any{
						dataTypeKey: dataTypeToolReq, "tool_call_id": "tc-2", "tool_name": "fetch",
					}},
				},
			},
		},
		Status: a2a.TaskStatus{State: a2a.TaskStateCompleted},
	}

	blocks := TaskToContentBlocks(task)

	assert.Equal(t, "Calling 2 tools: search, fetch", blocks[0].(*TextBlock).Text)
}

func TestTaskToContentBlocks_ArtifactsConsolidated(t *testing.T) {
	task := &a2a.Task{
		Artifacts: []a2a.Artifact{
			{
				ArtifactID: "a1",
				Name:       "report",
				Parts: []a2a.Part{
					{Kind: a2a.PartKindText, Text: "# Report\n\n"},
					{Kind: a2a.PartKindText, Text: "Findings."},
				},
			},
		},
		Status: a2a.TaskStatus{State: a2a.TaskStateCompleted},
	}

	blocks := TaskToContentBlocks(task)

	require.Len(t, blocks, 2)
	artifact := blocks[0].(*ArtifactBlock)
	require.Len(t, artifact.Parts, 1)
	assert.Equal(t, "# Report\n\nFindings.", artifact.Parts[0].Text)
}

func TestTaskToContentBlocks_UnresolvedToolsSettledByTaskOutcome(t *testing.T) {
	mkTask := func(state a2a.TaskState) *a2a.Task {
		return &a2a.Task{
			History: []a2a.Message{
				{
					Role: a2a.MessageRoleAgent,
					Parts: []a2a.Part{{Kind: a2a.PartKindData, Data: map[string]any{
						dataTypeKey: dataTypeToolReq, "tool_call_id": "tc-1", "tool_name": "search",
					}}},
				},
			},
			Status: a2a.TaskStatus{State: state},
		}
	}

	blocks := TaskToContentBlocks(mkTask(a2a.TaskStateCompleted))
	assert.Equal(t, ToolStateOutputAvailable, FindToolBlock(blocks, "tc-1").State)

	blocks = TaskToContentBlocks(mkTask(a2a.TaskStateFailed))
	tool := FindToolBlock(blocks, "tc-1")
	assert.Equal(t, ToolStateOutputError, tool.State)
	assert.NotEmpty(t, tool.ErrorText)
}

func TestTaskToContentBlocks_NilTask(t *testing.T) {
	assert.Nil(t, TaskToContentBlocks(nil))
}

func TestLoadConversation_HydratesAssistantTurns(t *testing.T) {
	now := time.Now()
	store := &memStore{
		updated: []*ChatMessage{
			{ID: "u1", Role: MessageRoleUser, ContentBlocks: []ContentBlock{&TextBlock{Text: "hi", Timestamp: now}}},
			{ID: "msg_a1", Role: MessageRoleAssistant, TaskID: "task-1"},
		},
	}
	client := &scriptedClient{
		task: &a2a.Task{
			ID: "task-1",
			History: []a2a.Message{
				{Role: a2a.MessageRoleAgent, Parts: []a2a.Part{{Kind: a2a.PartKindText, Text: "hello back"}}},
			},
			Status: a2a.TaskStatus{State: a2a.TaskStateCompleted, Timestamp: now},
		},
	}

	history := NewHistory(client, store, nil)

	messages, err := history.LoadConversation(context.Background(), "agent-1", "ctx-1", "")

	require.NoError(t, err)
	require.Len(t, messages, 2)

	// User turn untouched.
	assert.Equal(t, "hi", messages[0].Text())

	// Assistant turn rebuilt from the server task.
	assistant := messages[1]
	assert.Equal(t, a2a.TaskStateCompleted, assistant.TaskState)
	assert.Equal(t, "hello back", assistant.Text())
}

func TestLoadConversation_DirectlyPersistedBlocksPassThrough(t *testing.T) {
	store := &memStore{
		updated: []*ChatMessage{
			{
				ID: "msg_err", Role: MessageRoleAssistant, TaskID: "task-1",
				ContentBlocks: []ContentBlock{&ErrorBlock{Code: 500, Message: "agent crashed"}},
			},
		},
	}
	client := &scriptedClient{}

	history := NewHistory(client, store, nil)

	messages, err := history.LoadConversation(context.Background(), "agent-1", "ctx-1", "")

	require.NoError(t, err)
	require.Len(t, messages[0].ContentBlocks, 1)
	assert.Equal(t, "agent crashed", messages[0].ContentBlocks[0].(*ErrorBlock).Message)
}

func TestLoadConversation_TaskFetchFailureDegrades(t *testing.T) {
	store := &memStore{
		updated: []*ChatMessage{
			{ID: "msg_a1", Role: MessageRoleAssistant, TaskID: "task-gone"},
			{ID: "msg_a2", Role: MessageRoleAssistant},
		},
	}
	// scriptedClient with nil task fails GetTask.
	history := NewHistory(&scriptedClient{}, store, nil)

	messages, err := history.LoadConversation(context.Background(), "agent-1", "ctx-1", "")

	require.NoError(t, err, "one unreachable task must not fail the load")
	assert.Empty(t, messages[0].ContentBlocks)
}

func TestLoadConversation_SettlesFinishedStreamingTurns(t *testing.T) {
	store := &memStore{
		updated: []*ChatMessage{
			{ID: "msg_a1", Role: MessageRoleAssistant, TaskID: "task-1", IsStreaming: true},
		},
	}
	client := &scriptedClient{
		task: &a2a.Task{
			ID:     "task-1",
			Status: a2a.TaskStatus{State: a2a.TaskStateCompleted},
		},
	}

	history := NewHistory(client, store, nil)

	messages, err := history.LoadConversation(context.Background(), "agent-1", "ctx-1", "")

	require.NoError(t, err)
	assert.False(t, messages[0].IsStreaming)

	// Settled row was written back without blocks.
	settled := store.lastUpdate(t)
	assert.Equal(t, "msg_a1", settled.ID)
	assert.False(t, settled.IsStreaming)
	assert.Nil(t, settled.ContentBlocks)
}
