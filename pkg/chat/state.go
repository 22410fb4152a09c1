package chat

import (
	"time"

	"github.com/kadirpekel/agentchat/pkg/a2a"
)

// StreamingState accumulates one in-flight assistant turn. It is created at
// turn start, mutated in place by every event handler, and discarded after
// the final message is built. One stream consumer drives one StreamingState;
// the struct is not safe for concurrent use.
type StreamingState struct {
	// Closed content blocks, in arrival order. Sorted by timestamp only
	// when a message is built from them.
	Blocks []ContentBlock

	// ActiveText is the open run of concatenated text deltas. It is pushed
	// into Blocks whenever a non-text event arrives or the stream ends.
	ActiveText *TextBlock

	// TaskID and TaskState are captured from the stream, first write wins
	// for the id. An empty TaskID after the stream ends means the agent
	// answered without creating a task.
	TaskID    string
	TaskState a2a.TaskState

	// LastEventAt tracks stream liveness for reconnection bookkeeping.
	LastEventAt time.Time

	Usage *TokenUsage
}

// NewStreamingState returns an empty accumulator for one turn.
func NewStreamingState() *StreamingState {
	return &StreamingState{}
}

// CaptureTaskID records id unless one is already captured or id looks like
// a response message id.
func (s *StreamingState) CaptureTaskID(id string) {
	if s.TaskID != "" || id == "" || IsResponseID(id) {
		return
	}
	s.TaskID = id
}

// CloseActiveText commits the active text block to Blocks if it holds any
// text, and clears it either way.
func (s *StreamingState) CloseActiveText() {
	s.Blocks = CloseActiveTextBlock(s.Blocks, s.ActiveText)
	s.ActiveText = nil
}

// DiscardActiveText drops the active text block without committing it.
func (s *StreamingState) DiscardActiveText() {
	s.ActiveText = nil
}

// SnapshotBlocks returns the closed blocks plus the active text block if it
// is non-empty. The active block itself is shared, not copied; callers must
// treat the snapshot as read-only.
func (s *StreamingState) SnapshotBlocks() []ContentBlock {
	if s.ActiveText == nil || s.ActiveText.Text == "" {
		return s.Blocks
	}
	snapshot := make([]ContentBlock, 0, len(s.Blocks)+1)
	snapshot = append(snapshot, s.Blocks...)
	return append(snapshot, s.ActiveText)
}

// Resubscribable reports whether a dropped stream for this state can be
// resumed: a task id and a non-terminal task state must both have been
// captured. A turn without a task has nothing to resubscribe to, and a
// terminal task has nothing left to deliver.
func (s *StreamingState) Resubscribable() bool {
	return s.TaskID != "" && s.TaskState != "" && !s.TaskState.Terminal()
}

// BuildMessage overlays the accumulated blocks and task identity onto base,
// returning a new message. Blocks are sorted ascending by timestamp; base
// is not mutated.
func BuildMessage(base *ChatMessage, blocks []ContentBlock, taskID string, taskState a2a.TaskState) *ChatMessage {
	built := *base
	built.ContentBlocks = SortContentBlocks(blocks)
	built.TaskID = taskID
	built.TaskState = taskState
	return &built
}
