// Package chat implements the streaming-chat core of the agent console:
// content-block accumulation over an A2A event stream, reconnection with
// bounded resubscription, and reconstruction of conversations from server
// task history after a reload.
package chat

import (
	"sort"
	"time"

	"github.com/kadirpekel/agentchat/pkg/a2a"
)

// BlockKind discriminates content block types.
type BlockKind string

const (
	BlockKindText             BlockKind = "text"
	BlockKindTool             BlockKind = "tool"
	BlockKindArtifact         BlockKind = "artifact"
	BlockKindTaskStatus       BlockKind = "task-status-update"
	BlockKindConnectionStatus BlockKind = "connection-status"
	BlockKindError            BlockKind = "a2a-error"
)

// ContentBlock is one temporally-ordered unit of an assistant turn's content.
// Concrete types are TextBlock, ToolBlock, ArtifactBlock, StatusBlock,
// ConnectionBlock and ErrorBlock.
type ContentBlock interface {
	Kind() BlockKind
	Time() time.Time
}

// TextBlock is a run of streamed assistant prose.
type TextBlock struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func (b *TextBlock) Kind() BlockKind { return BlockKindText }
func (b *TextBlock) Time() time.Time { return b.Timestamp }

// ToolState is the lifecycle state of a tool call. Transitions are
// monotonic: input-available may move to output-available or output-error,
// never backward.
type ToolState string

const (
	ToolStateInputAvailable  ToolState = "input-available"
	ToolStateOutputAvailable ToolState = "output-available"
	ToolStateOutputError     ToolState = "output-error"
)

// ToolBlock is one tool invocation. At most one block exists per ToolCallID.
type ToolBlock struct {
	ToolCallID   string     `json:"toolCallId"`
	ToolName     string     `json:"toolName"`
	State        ToolState  `json:"state"`
	Input        any        `json:"input,omitempty"`
	Output       any        `json:"output,omitempty"`
	ErrorText    string     `json:"errorText,omitempty"`
	MessageID    string     `json:"messageId,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
	EndTimestamp *time.Time `json:"endTimestamp,omitempty"`
}

func (b *ToolBlock) Kind() BlockKind { return BlockKindTool }
func (b *ToolBlock) Time() time.Time { return b.Timestamp }

// ArtifactBlock is a streamed artifact. At most one block exists per
// ArtifactID; later events with the same id append parts.
type ArtifactBlock struct {
	ArtifactID  string         `json:"artifactId"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parts       []ArtifactPart `json:"parts"`
	Timestamp   time.Time      `json:"timestamp"`
}

func (b *ArtifactBlock) Kind() BlockKind { return BlockKindArtifact }
func (b *ArtifactBlock) Time() time.Time { return b.Timestamp }

// StatusBlock records a task state transition. Multiple are allowed per
// turn; Final marks the terminal status.
type StatusBlock struct {
	TaskState     a2a.TaskState `json:"taskState,omitempty"`
	PreviousState a2a.TaskState `json:"previousState,omitempty"`
	Text          string        `json:"text,omitempty"`
	MessageID     string        `json:"messageId,omitempty"`
	Final         bool          `json:"final"`
	Usage         *TokenUsage   `json:"usage,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

func (b *StatusBlock) Kind() BlockKind { return BlockKindTaskStatus }
func (b *StatusBlock) Time() time.Time { return b.Timestamp }

// ConnectionStatus is the reconnection state shown to the user.
type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionReconnecting ConnectionStatus = "reconnecting"
	ConnectionReconnected  ConnectionStatus = "reconnected"
	ConnectionGaveUp       ConnectionStatus = "gave-up"
)

// ConnectionBlock annotates the turn with reconnection progress. Only the
// latest connection-status block is kept: producing a new status replaces
// the prior one rather than stacking.
type ConnectionBlock struct {
	Status      ConnectionStatus `json:"status"`
	Attempt     int              `json:"attempt,omitempty"`
	MaxAttempts int              `json:"maxAttempts,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

func (b *ConnectionBlock) Kind() BlockKind { return BlockKindConnectionStatus }
func (b *ConnectionBlock) Time() time.Time { return b.Timestamp }

// ErrorBlock is a protocol-level error, terminal for the turn unless
// recovery succeeds.
type ErrorBlock struct {
	Code      int       `json:"code"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (b *ErrorBlock) Kind() BlockKind { return BlockKindError }
func (b *ErrorBlock) Time() time.Time { return b.Timestamp }

// TokenUsage carries token accounting reported by the agent runtime.
type TokenUsage struct {
	InputTokens  int64 `json:"inputTokens,omitempty"`
	OutputTokens int64 `json:"outputTokens,omitempty"`
}

// ============================================================================
// ARTIFACT PARTS
// ============================================================================

// ArtifactPart is one unit of artifact content (union type, mirroring the
// wire part kinds).
type ArtifactPart struct {
	Kind a2a.PartKind     `json:"kind"`
	Text string           `json:"text,omitempty"`
	File *a2a.FileContent `json:"file,omitempty"`
	Data map[string]any   `json:"data,omitempty"`
}

// ArtifactPartsFromWire converts wire parts into artifact parts.
// Unrecognized kinds degrade to empty text rather than failing.
func ArtifactPartsFromWire(parts []a2a.Part) []ArtifactPart {
	converted := make([]ArtifactPart, 0, len(parts))
	for _, p := range parts {
		switch p.Kind {
		case a2a.PartKindText:
			converted = append(converted, ArtifactPart{Kind: a2a.PartKindText, Text: p.Text})
		case a2a.PartKindFile:
			converted = append(converted, ArtifactPart{Kind: a2a.PartKindFile, File: p.File})
		case a2a.PartKindData:
			converted = append(converted, ArtifactPart{Kind: a2a.PartKindData, Data: p.Data})
		default:
			converted = append(converted, ArtifactPart{Kind: a2a.PartKindText})
		}
	}
	return converted
}

// ConsolidateTextParts merges consecutive text parts into one. Non-text
// parts break the run and are never merged or reordered. Reloading a
// streamed artifact without consolidation yields one part per streamed
// chunk, which renders as a wall of fragments.
func ConsolidateTextParts(parts []ArtifactPart) []ArtifactPart {
	if len(parts) == 0 {
		return nil
	}

	consolidated := make([]ArtifactPart, 0, len(parts))
	for _, p := range parts {
		if p.Kind == a2a.PartKindText && len(consolidated) > 0 {
			if last := &consolidated[len(consolidated)-1]; last.Kind == a2a.PartKindText {
				last.Text += p.Text
				continue
			}
		}
		consolidated = append(consolidated, p)
	}
	return consolidated
}

// ArtifactText concatenates the text parts of an artifact.
func ArtifactText(parts []ArtifactPart) string {
	var text string
	for _, p := range parts {
		if p.Kind == a2a.PartKindText {
			text += p.Text
		}
	}
	return text
}

// ============================================================================
// BLOCK LIST OPERATIONS
// ============================================================================

// SortContentBlocks returns a new slice sorted ascending by timestamp.
// The sort is stable and the input is not mutated.
func SortContentBlocks(blocks []ContentBlock) []ContentBlock {
	sorted := make([]ContentBlock, len(blocks))
	copy(sorted, blocks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time().Before(sorted[j].Time())
	})
	return sorted
}

// CloseActiveTextBlock appends the active text block to blocks if it holds
// any text. A nil or empty active block is a no-op.
func CloseActiveTextBlock(blocks []ContentBlock, active *TextBlock) []ContentBlock {
	if active == nil || active.Text == "" {
		return blocks
	}
	return append(blocks, active)
}

// ReplaceConnectionStatus removes any existing connection-status block and
// appends the given one, keeping at most one live connection annotation.
func ReplaceConnectionStatus(blocks []ContentBlock, status *ConnectionBlock) []ContentBlock {
	kept := blocks[:0]
	for _, b := range blocks {
		if b.Kind() != BlockKindConnectionStatus {
			kept = append(kept, b)
		}
	}
	return append(kept, status)
}

// FindToolBlock returns the tool block with the given call id, or nil.
func FindToolBlock(blocks []ContentBlock, toolCallID string) *ToolBlock {
	for _, b := range blocks {
		if tb, ok := b.(*ToolBlock); ok && tb.ToolCallID == toolCallID {
			return tb
		}
	}
	return nil
}

// FindArtifactBlock returns the artifact block with the given id, or nil.
func FindArtifactBlock(blocks []ContentBlock, artifactID string) *ArtifactBlock {
	for _, b := range blocks {
		if ab, ok := b.(*ArtifactBlock); ok && ab.ArtifactID == artifactID {
			return ab
		}
	}
	return nil
}

// ResolveStaleToolBlocks forces tool blocks still awaiting output into a
// terminal state once their owning task has finished. Many agent runtimes
// never emit an explicit tool-response event; without this inference the
// UI shows an indefinite spinner for a tool whose task already completed.
// Blocks already resolved are untouched; a non-terminal task state leaves
// everything untouched.
func ResolveStaleToolBlocks(blocks []ContentBlock, finalState a2a.TaskState) {
	if !finalState.Terminal() {
		return
	}
	for _, b := range blocks {
		tb, ok := b.(*ToolBlock)
		if !ok || tb.State != ToolStateInputAvailable {
			continue
		}
		if finalState == a2a.TaskStateCompleted {
			tb.State = ToolStateOutputAvailable
		} else {
			tb.State = ToolStateOutputError
			tb.ErrorText = "Tool call did not complete before the task finished"
		}
	}
}
