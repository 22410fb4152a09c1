package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentchat/pkg/a2a"
)

func newTestHandler(t *testing.T) (*EventHandler, *StreamingState, *[]*ChatMessage) {
	t.Helper()
	state := NewStreamingState()
	base := &ChatMessage{ID: "msg_test", Role: MessageRoleAssistant}
	var updates []*ChatMessage
	handler := NewEventHandler(state, base, func(m *ChatMessage) {
		updates = append(updates, m)
	}, nil)
	handler.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return handler, state, &updates
}

func handle(t *testing.T, h *EventHandler, events ...a2a.Event) {
	t.Helper()
	for _, ev := range events {
		require.NoError(t, h.HandleEvent(ev))
	}
}

func TestHandler_TaskIDFirstCaptureWins(t *testing.T) {
	handler, state, _ := newTestHandler(t)

	handle(t, handler,
		&a2a.ResponseMetadataEvent{ResponseID: "task-1"},
		&a2a.TaskEvent{Task: a2a.Task{ID: "task-2", Status: a2a.TaskStatus{State: a2a.TaskStateWorking}}},
		&a2a.StatusUpdateEvent{TaskID: "task-3", Status: a2a.TaskStatus{State: a2a.TaskStateWorking}},
	)

	assert.Equal(t, "task-1", state.TaskID)
	assert.Equal(t, a2a.TaskStateWorking, state.TaskState)
}

func TestHandler_ResponseIDPrefixIsNotATaskID(t *testing.T) {
	handler, state, _ := newTestHandler(t)

	handle(t, handler, &a2a.ResponseMetadataEvent{ResponseID: "msg_abc123"})
	assert.Empty(t, state.TaskID)

	handle(t, handler, &a2a.TaskEvent{Task: a2a.Task{ID: "task-1"}})
	assert.Equal(t, "task-1", state.TaskID)
}

func TestHandler_TextDeltasAccumulateAndEmit(t *testing.T) {
	handler, state, updates := newTestHandler(t)

	handle(t, handler,
		&a2a.TextDeltaEvent{TaskID: "task-1", Text: "Hello"},
		&a2a.TextDeltaEvent{Text: ", world"},
	)

	require.NotNil(t, state.ActiveText)
	assert.Equal(t, "Hello, world", state.ActiveText.Text)
	assert.Equal(t, "task-1", state.TaskID)

	// Each delta produced a visible update carrying the in-progress text.
	require.Len(t, *updates, 2)
	assert.Equal(t, "Hello, world", (*updates)[1].Text())
}

func TestHandler_StatusUpdateClosesTextAndRecordsTransition(t *testing.T) {
	handler, state, _ := newTestHandler(t)

	handle(t, handler,
		&a2a.TaskEvent{Task: a2a.Task{ID: "task-1", Status: a2a.TaskStatus{State: a2a.TaskStateSubmitted}}},
		&a2a.TextDeltaEvent{Text: "thinking"},
		&a2a.StatusUpdateEvent{
			TaskID: "task-1",
			Status: a2a.TaskStatus{
				State: a2a.TaskStateWorking,
				Message: &a2a.Message{
					Role:  a2a.MessageRoleAgent,
					Parts: []a2a.Part{{Kind: a2a.PartKindText, Text: "Analyzing the data..."}},
				},
			},
		},
	)

	assert.Nil(t, state.ActiveText)
	require.Len(t, state.Blocks, 2)
	assert.Equal(t, "thinking", state.Blocks[0].(*TextBlock).Text)

	status := state.Blocks[1].(*StatusBlock)
	assert.Equal(t, a2a.TaskStateWorking, status.TaskState)
	assert.Equal(t, a2a.TaskStateSubmitted, status.PreviousState)
	assert.Equal(t, "Analyzing the data...", status.Text)
	assert.False(t, status.Final)
}

func TestHandler_SyntheticToolTextNeverSurfaces(t *testing.T) {
	handler, state, _ := newTestHandler(t)

	handle(t, handler, &a2a.StatusUpdateEvent{
		TaskID: "task-1",
		Status: a2a.TaskStatus{
			State: a2a.TaskStateWorking,
			Message: &a2a.Message{
				Role: a2a.MessageRoleAgent,
				Parts: []a2a.Part{
					{Kind: a2a.PartKindText, Text: `Tool request: search({"q":"weather"})`},
					{Kind: a2a.PartKindData, Data: map[string]any{
						dataTypeKey:    dataTypeToolReq,
						"tool_call_id": "tc-1",
						"tool_name":    "search",
						"arguments":    map[string]any{"q": "weather"},
					}},
				},
			},
		},
	})

	require.Len(t, state.Blocks, 2)
	tool := state.Blocks[0].(*ToolBlock)
	assert.Equal(t, "tc-1", tool.ToolCallID)
	assert.Equal(t, "search", tool.ToolName)
	assert.Equal(t, ToolStateInputAvailable, tool.State)

	status := state.Blocks[1].(*StatusBlock)
	assert.Empty(t, status.Text)
}

func TestHandler_ToolResponseResolvesMatchingBlock(t *testing.T) {
	handler, state, _ := newTestHandler(t)

	handle(t, handler,
		&a2a.StatusUpdateEvent{
			TaskID: "task-1",
			Status: a2a.TaskStatus{
				State: a2a.TaskStateWorking,
				Message: &a2a.Message{
					Role: a2a.MessageRoleAgent,
					Parts: []a2a.Part{{Kind: a2a.PartKindData, Data: map[string]any{
						dataTypeKey:    dataTypeToolReq,
						"tool_call_id": "tc-1",
						"tool_name":    "search",
					}}},
				},
			},
		},
		&a2a.StatusUpdateEvent{
			TaskID: "task-1",
			Status: a2a.TaskStatus{
				State: a2a.TaskStateWorking,
				Message: &a2a.Message{
					Role: a2a.MessageRoleAgent,
					Parts: []a2a.Part{{Kind: a2a.PartKindData, Data: map[string]any{
						dataTypeKey:    dataTypeToolResp,
						"tool_call_id": "tc-1",
						"result":       "22 degrees and sunny",
					}}},
				},
			},
		},
	)

	tool := FindToolBlock(state.Blocks, "tc-1")
	require.NotNil(t, tool)
	assert.Equal(t, ToolStateOutputAvailable, tool.State)
	assert.Equal(t, "22 degrees and sunny", tool.Output)
	assert.NotNil(t, tool.EndTimestamp)
}

func TestHandler_ToolResponseWithErrorField(t *testing.T) {
	handler, state, _ := newTestHandler(t)

	handle(t, handler,
		&a2a.StatusUpdateEvent{
			TaskID: "task-1",
			Status: a2a.TaskStatus{
				State: a2a.TaskStateWorking,
				Message: &a2a.Message{
					Parts: []a2a.Part{{Kind: a2a.PartKindData, Data: map[string]any{
						dataTypeKey:    dataTypeToolReq,
						"tool_call_id": "tc-1",
					}}},
				},
			},
		},
		&a2a.StatusUpdateEvent{
			TaskID: "task-1",
			Status: a2a.TaskStatus{
				State: a2a.TaskStateWorking,
				Message: &a2a.Message{
					Parts: []a2a.Part{{Kind: a2a.PartKindData, Data: map[string]any{
						dataTypeKey:    dataTypeToolResp,
						"tool_call_id": "tc-1",
						"error":        "permission denied",
					}}},
				},
			},
		},
	)

	tool := FindToolBlock(state.Blocks, "tc-1")
	require.NotNil(t, tool)
	assert.Equal(t, ToolStateOutputError, tool.State)
	assert.Equal(t, "permission denied", tool.ErrorText)
}

func TestHandler_OrphanToolResponseDropped(t *testing.T) {
	handler, state, _ := newTestHandler(t)

	handle(t, handler, &a2a.StatusUpdateEvent{
		TaskID: "task-1",
		Status: a2a.TaskStatus{
			State: a2a.TaskStateWorking,
			Message: &a2a.Message{
				Parts: []a2a.Part{{Kind: a2a.PartKindData, Data: map[string]any{
					dataTypeKey:    dataTypeToolResp,
					"tool_call_id": "never-requested",
					"result":       "ignored",
				}}},
			},
		},
	})

	assert.Nil(t, FindToolBlock(state.Blocks, "never-requested"))
}

func TestHandler_DuplicateToolRequestIgnored(t *testing.T) {
	handler, state, _ := newTestHandler(t)

	req := &a2a.StatusUpdateEvent{
		TaskID: "task-1",
		Status: a2a.TaskStatus{
			State: a2a.TaskStateWorking,
			Message: &a2a.Message{
				Parts: []a2a.Part{{Kind: a2a.PartKindData, Data: map[string]any{
					dataTypeKey:    dataTypeToolReq,
					"tool_call_id": "tc-1",
				}}},
			},
		},
	}
	handle(t, handler, req, req)

	var tools int
	for _, b := range state.Blocks {
		if b.Kind() == BlockKindTool {
			tools++
		}
	}
	assert.Equal(t, 1, tools)
}

func TestHandler_ArtifactEchoStatusYieldsNoText(t *testing.T) {
	handler, state, _ := newTestHandler(t)

	handle(t, handler, &a2a.StatusUpdateEvent{
		TaskID: "task-1",
		Status: a2a.TaskStatus{
			State: a2a.TaskStateWorking,
			Message: &a2a.Message{
				Kind:  "artifact-update",
				Parts: []a2a.Part{{Kind: a2a.PartKindText, Text: "chunk echoed as status"}},
			},
		},
	})

	require.Len(t, state.Blocks, 1)
	assert.Empty(t, state.Blocks[0].(*StatusBlock).Text)
}

func TestHandler_ArtifactDiscardsEchoedActiveText(t *testing.T) {
	handler, state, _ := newTestHandler(t)

	handle(t, handler,
		&a2a.TextDeltaEvent{TaskID: "task-1", Text: "# Report\n\nFindings"},
		&a2a.ArtifactUpdateEvent{
			TaskID: "task-1",
			Artifact: a2a.Artifact{
				ArtifactID: "a1",
				Name:       "report",
				Parts:      []a2a.Part{{Kind: a2a.PartKindText, Text: "# Report\n\nFindings so far."}},
			},
		},
	)

	// Streamed text was an echo of the artifact content and must not be
	// committed as a separate text block.
	require.Len(t, state.Blocks, 1)
	artifact := state.Blocks[0].(*ArtifactBlock)
	assert.Equal(t, "a1", artifact.ArtifactID)
	assert.Nil(t, state.ActiveText)
}

func TestHandler_ArtifactCommitsUnrelatedActiveText(t *testing.T) {
	handler, state, _ := newTestHandler(t)

	handle(t, handler,
		&a2a.TextDeltaEvent{TaskID: "task-1", Text: "Here is the report you asked for:"},
		&a2a.ArtifactUpdateEvent{
			TaskID: "task-1",
			Artifact: a2a.Artifact{
				ArtifactID: "a1",
				Parts:      []a2a.Part{{Kind: a2a.PartKindText, Text: "# Report"}},
			},
		},
	)

	require.Len(t, state.Blocks, 2)
	assert.Equal(t, "Here is the report you asked for:", state.Blocks[0].(*TextBlock).Text)
	assert.Equal(t, BlockKindArtifact, state.Blocks[1].Kind())
}

func TestHandler_ArtifactChunksAppendAndConsolidate(t *testing.T) {
	handler, state, _ := newTestHandler(t)

	handle(t, handler,
		&a2a.ArtifactUpdateEvent{
			TaskID: "task-1",
			Artifact: a2a.Artifact{
				ArtifactID: "a1",
				Parts:      []a2a.Part{{Kind: a2a.PartKindText, Text: "first "}},
			},
		},
		&a2a.ArtifactUpdateEvent{
			TaskID: "task-1",
			Artifact: a2a.Artifact{
				ArtifactID: "a1",
				Parts:      []a2a.Part{{Kind: a2a.PartKindText, Text: "second"}},
			},
		},
	)

	require.Len(t, state.Blocks, 1)
	artifact := state.Blocks[0].(*ArtifactBlock)
	require.Len(t, artifact.Parts, 1)
	assert.Equal(t, "first second", artifact.Parts[0].Text)
}

func TestHandler_UsageFromStatusMetadata(t *testing.T) {
	handler, state, _ := newTestHandler(t)

	handle(t, handler, &a2a.StatusUpdateEvent{
		TaskID: "task-1",
		Final:  true,
		Status: a2a.TaskStatus{
			State: a2a.TaskStateCompleted,
			Message: &a2a.Message{
				Parts: []a2a.Part{{Kind: a2a.PartKindText, Text: "Done."}},
				Metadata: map[string]any{
					"usage": map[string]any{
						"input_tokens":  float64(120),
						"output_tokens": float64(480),
					},
				},
			},
		},
	})

	status := state.Blocks[0].(*StatusBlock)
	require.NotNil(t, status.Usage)
	assert.Equal(t, int64(120), status.Usage.InputTokens)
	assert.Equal(t, int64(480), status.Usage.OutputTokens)
	assert.True(t, status.Final)
}

func TestHandler_FinalStatusMakesStateTerminal(t *testing.T) {
	handler, state, _ := newTestHandler(t)

	handle(t, handler,
		&a2a.TaskEvent{Task: a2a.Task{ID: "task-1", Status: a2a.TaskStatus{State: a2a.TaskStateWorking}}},
	)
	assert.True(t, state.Resubscribable())

	handle(t, handler, &a2a.StatusUpdateEvent{
		TaskID: "task-1",
		Final:  true,
		Status: a2a.TaskStatus{State: a2a.TaskStateCompleted},
	})
	assert.False(t, state.Resubscribable())
}

func TestResubscribable(t *testing.T) {
	state := NewStreamingState()
	assert.False(t, state.Resubscribable(), "no task id")

	state.TaskID = "task-1"
	assert.False(t, state.Resubscribable(), "no task state")

	state.TaskState = a2a.TaskStateWorking
	assert.True(t, state.Resubscribable())

	state.TaskState = a2a.TaskStateFailed
	assert.False(t, state.Resubscribable(), "terminal state")
}
