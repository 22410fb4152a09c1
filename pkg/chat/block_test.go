package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentchat/pkg/a2a"
)

func TestConsolidateTextParts_MergesAdjacentText(t *testing.T) {
	parts := []ArtifactPart{
		{Kind: a2a.PartKindText, Text: "# Title\n\n"},
		{Kind: a2a.PartKindText, Text: "Some "},
		{Kind: a2a.PartKindText, Text: "content "},
		{Kind: a2a.PartKindText, Text: "here."},
	}

	consolidated := ConsolidateTextParts(parts)

	require.Len(t, consolidated, 1)
	assert.Equal(t, "# Title\n\nSome content here.", consolidated[0].Text)
}

func TestConsolidateTextParts_NonTextBreaksRun(t *testing.T) {
	parts := []ArtifactPart{
		{Kind: a2a.PartKindText, Text: "before "},
		{Kind: a2a.PartKindText, Text: "file"},
		{Kind: a2a.PartKindFile, File: &a2a.FileContent{Name: "out.csv", MimeType: "text/csv"}},
		{Kind: a2a.PartKindText, Text: "after"},
	}

	consolidated := ConsolidateTextParts(parts)

	require.Len(t, consolidated, 3)
	assert.Equal(t, "before file", consolidated[0].Text)
	assert.Equal(t, a2a.PartKindFile, consolidated[1].Kind)
	assert.Equal(t, "after", consolidated[2].Text)
}

func TestConsolidateTextParts_Idempotent(t *testing.T) {
	parts := []ArtifactPart{
		{Kind: a2a.PartKindText, Text: "a"},
		{Kind: a2a.PartKindText, Text: "b"},
		{Kind: a2a.PartKindData, Data: map[string]any{"x": 1}},
		{Kind: a2a.PartKindText, Text: "c"},
	}

	once := ConsolidateTextParts(parts)
	twice := ConsolidateTextParts(once)

	assert.Equal(t, once, twice)
}

func TestConsolidateTextParts_Empty(t *testing.T) {
	assert.Nil(t, ConsolidateTextParts(nil))
}

func TestSortContentBlocks_StableAndNonMutating(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	blocks := []ContentBlock{
		&StatusBlock{TaskState: a2a.TaskStateCompleted, Timestamp: t0.Add(2 * time.Second)},
		&TextBlock{Text: "first", Timestamp: t0},
		&ToolBlock{ToolCallID: "tc1", Timestamp: t0.Add(time.Second)},
		// Same timestamp as the text block; stable sort keeps arrival order.
		&ToolBlock{ToolCallID: "tc2", Timestamp: t0},
	}

	sorted := SortContentBlocks(blocks)

	require.Len(t, sorted, 4)
	assert.Equal(t, "first", sorted[0].(*TextBlock).Text)
	assert.Equal(t, "tc2", sorted[1].(*ToolBlock).ToolCallID)
	assert.Equal(t, "tc1", sorted[2].(*ToolBlock).ToolCallID)
	assert.Equal(t, BlockKindTaskStatus, sorted[3].Kind())

	// Input order untouched.
	assert.Equal(t, BlockKindTaskStatus, blocks[0].Kind())
}

func TestCloseActiveTextBlock(t *testing.T) {
	blocks := []ContentBlock{}

	blocks = CloseActiveTextBlock(blocks, nil)
	assert.Empty(t, blocks)

	blocks = CloseActiveTextBlock(blocks, &TextBlock{})
	assert.Empty(t, blocks)

	blocks = CloseActiveTextBlock(blocks, &TextBlock{Text: "hello"})
	require.Len(t, blocks, 1)
	assert.Equal(t, "hello", blocks[0].(*TextBlock).Text)
}

func TestReplaceConnectionStatus_NeverStacks(t *testing.T) {
	t0 := time.Now()
	blocks := []ContentBlock{
		&TextBlock{Text: "partial", Timestamp: t0},
		&ConnectionBlock{Status: ConnectionDisconnected, Timestamp: t0},
	}

	blocks = ReplaceConnectionStatus(blocks, &ConnectionBlock{Status: ConnectionReconnecting, Attempt: 1})
	blocks = ReplaceConnectionStatus(blocks, &ConnectionBlock{Status: ConnectionReconnected, Attempt: 1})

	var connections []*ConnectionBlock
	for _, b := range blocks {
		if cb, ok := b.(*ConnectionBlock); ok {
			connections = append(connections, cb)
		}
	}
	require.Len(t, connections, 1)
	assert.Equal(t, ConnectionReconnected, connections[0].Status)

	// Other blocks survive replacement.
	assert.Equal(t, BlockKindText, blocks[0].Kind())
}

func TestResolveStaleToolBlocks(t *testing.T) {
	mk := func() []ContentBlock {
		return []ContentBlock{
			&ToolBlock{ToolCallID: "pending", State: ToolStateInputAvailable},
			&ToolBlock{ToolCallID: "resolved", State: ToolStateOutputAvailable, Output: "kept"},
			&TextBlock{Text: "prose"},
		}
	}

	blocks := mk()
	ResolveStaleToolBlocks(blocks, a2a.TaskStateCompleted)
	assert.Equal(t, ToolStateOutputAvailable, blocks[0].(*ToolBlock).State)
	assert.Equal(t, "kept", blocks[1].(*ToolBlock).Output)

	blocks = mk()
	ResolveStaleToolBlocks(blocks, a2a.TaskStateFailed)
	assert.Equal(t, ToolStateOutputError, blocks[0].(*ToolBlock).State)
	assert.NotEmpty(t, blocks[0].(*ToolBlock).ErrorText)
	// Already-resolved blocks untouched.
	assert.Equal(t, ToolStateOutputAvailable, blocks[1].(*ToolBlock).State)

	blocks = mk()
	ResolveStaleToolBlocks(blocks, a2a.TaskStateWorking)
	assert.Equal(t, ToolStateInputAvailable, blocks[0].(*ToolBlock).State)
}

func TestBuildMessage_SortsAndOverlaysIdentity(t *testing.T) {
	t0 := time.Now()
	base := &ChatMessage{ID: "msg_1", Role: MessageRoleAssistant}
	blocks := []ContentBlock{
		&StatusBlock{TaskState: a2a.TaskStateCompleted, Timestamp: t0.Add(time.Second)},
		&TextBlock{Text: "hi", Timestamp: t0},
	}

	built := BuildMessage(base, blocks, "task-1", a2a.TaskStateCompleted)

	assert.Equal(t, "task-1", built.TaskID)
	assert.Equal(t, a2a.TaskStateCompleted, built.TaskState)
	assert.Equal(t, BlockKindText, built.ContentBlocks[0].Kind())
	// base is untouched
	assert.Empty(t, base.TaskID)
	assert.Nil(t, base.ContentBlocks)
}

func TestIsResponseID(t *testing.T) {
	assert.True(t, IsResponseID("msg_abc"))
	assert.False(t, IsResponseID("task-1"))
	assert.Equal(t, "msg_x", NewResponseID("x"))
	assert.Equal(t, "msg_x", NewResponseID("msg_x"))
}
