package chat

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kadirpekel/agentchat/pkg/a2a"
)

// ============================================================================
// EVENT HANDLERS
// Reducers that fold one protocol event into the streaming state. Handler
// updates are the sole channel by which streaming progress becomes
// observable to the caller.
// ============================================================================

// UpdateFunc receives a freshly built message after each observable change.
type UpdateFunc func(*ChatMessage)

// Data-part tags used by agent runtimes to smuggle tool calls through
// status-update messages.
const (
	dataTypeKey      = "data_type"
	dataTypeToolReq  = "tool_request"
	dataTypeToolResp = "tool_response"
)

// Synthetic text injected by agent runtimes alongside tool-call data parts.
// It is internal bookkeeping and must never surface as prose.
var syntheticTextPrefixes = []string{
	"Tool request:",
	"Tool response:",
}

// EventHandler folds protocol events into a StreamingState for one turn.
type EventHandler struct {
	state    *StreamingState
	base     *ChatMessage
	onUpdate UpdateFunc
	log      *slog.Logger

	// now is the block timestamp source, injectable for tests.
	now func() time.Time
}

// NewEventHandler binds a handler chain to one turn's state and base
// message. onUpdate may be nil.
func NewEventHandler(state *StreamingState, base *ChatMessage, onUpdate UpdateFunc, log *slog.Logger) *EventHandler {
	if log == nil {
		log = slog.Default()
	}
	return &EventHandler{
		state:    state,
		base:     base,
		onUpdate: onUpdate,
		log:      log,
		now:      time.Now,
	}
}

// HandleEvent dispatches one event to its reducer. Unknown event types are
// impossible by construction: the switch is exhaustive over the closed
// event set decoded by the protocol package.
func (h *EventHandler) HandleEvent(ev a2a.Event) error {
	h.state.LastEventAt = h.now()

	switch e := ev.(type) {
	case *a2a.ResponseMetadataEvent:
		h.handleResponseMetadata(e)
	case *a2a.TaskEvent:
		h.handleTask(e)
	case *a2a.StatusUpdateEvent:
		h.handleStatusUpdate(e)
	case *a2a.ArtifactUpdateEvent:
		h.handleArtifactUpdate(e)
	case *a2a.TextDeltaEvent:
		h.handleTextDelta(e)
	default:
		return fmt.Errorf("unhandled event type %T", ev)
	}
	return nil
}

func (h *EventHandler) emitUpdate() {
	if h.onUpdate == nil {
		return
	}
	h.onUpdate(BuildMessage(h.base, h.state.SnapshotBlocks(), h.state.TaskID, h.state.TaskState))
}

// handleResponseMetadata captures the task id from an opaque response
// identifier. Ids minted for response messages are never task ids, so they
// are skipped; CaptureTaskID enforces both that and first-write-wins.
func (h *EventHandler) handleResponseMetadata(ev *a2a.ResponseMetadataEvent) {
	h.state.CaptureTaskID(ev.ResponseID)
}

// handleTask captures task identity and initial state from a task-creation
// event.
func (h *EventHandler) handleTask(ev *a2a.TaskEvent) {
	h.state.CaptureTaskID(ev.ID)
	if ev.Status.State != "" {
		h.state.TaskState = ev.Status.State
	}
}

// handleStatusUpdate folds a task state transition. The embedded message
// may carry tool-call data parts, synthetic bookkeeping text, or genuine
// status prose; only the latter becomes status-block text.
func (h *EventHandler) handleStatusUpdate(ev *a2a.StatusUpdateEvent) {
	h.state.CaptureTaskID(ev.TaskID)

	previous := h.state.TaskState
	if ev.Status.State != "" {
		h.state.TaskState = ev.Status.State
	}

	timestamp := ev.Status.Timestamp
	if timestamp.IsZero() {
		timestamp = h.now()
	}

	var text, messageID string
	if msg := ev.Status.Message; msg != nil {
		messageID = msg.MessageID
		h.applyToolParts(msg, timestamp)
		text = statusText(msg)
	}

	usage := usageFromMetadata(ev.Status.Message)
	if usage != nil {
		h.state.Usage = usage
	}

	h.state.CloseActiveText()
	h.state.Blocks = append(h.state.Blocks, &StatusBlock{
		TaskState:     h.state.TaskState,
		PreviousState: previous,
		Text:          text,
		MessageID:     messageID,
		Final:         ev.Final,
		Usage:         usage,
		Timestamp:     timestamp,
	})
	h.emitUpdate()
}

// applyToolParts opens tool blocks for tool_request data parts and resolves
// matching blocks for tool_response parts. A response with no matching
// request is dropped silently.
func (h *EventHandler) applyToolParts(msg *a2a.Message, at time.Time) {
	for _, part := range msg.Parts {
		if part.Kind != a2a.PartKindData || part.Data == nil {
			continue
		}
		switch part.Data[dataTypeKey] {
		case dataTypeToolReq:
			h.openToolBlock(part.Data, msg.MessageID, at)
		case dataTypeToolResp:
			h.resolveToolBlock(part.Data, at)
		}
	}
}

func (h *EventHandler) openToolBlock(data map[string]any, messageID string, at time.Time) {
	callID := stringField(data, "tool_call_id")
	if callID == "" {
		return
	}
	if FindToolBlock(h.state.Blocks, callID) != nil {
		return
	}
	h.state.CloseActiveText()
	h.state.Blocks = append(h.state.Blocks, &ToolBlock{
		ToolCallID: callID,
		ToolName:   stringField(data, "tool_name"),
		State:      ToolStateInputAvailable,
		Input:      data["arguments"],
		MessageID:  messageID,
		Timestamp:  at,
	})
}

func (h *EventHandler) resolveToolBlock(data map[string]any, at time.Time) {
	callID := stringField(data, "tool_call_id")
	block := FindToolBlock(h.state.Blocks, callID)
	if block == nil {
		h.log.Debug("Dropping tool response with no matching request", "tool_call_id", callID)
		return
	}
	if block.State != ToolStateInputAvailable {
		return
	}
	end := at
	block.EndTimestamp = &end
	if errText := stringField(data, "error"); errText != "" {
		block.State = ToolStateOutputError
		block.ErrorText = errText
		return
	}
	block.State = ToolStateOutputAvailable
	block.Output = data["result"]
}

// statusText extracts displayable prose from a status-update's embedded
// message: synthetic tool bookkeeping text and artifact-update echo
// messages yield nothing.
func statusText(msg *a2a.Message) string {
	if msg.Kind == "artifact-update" {
		return ""
	}
	if kind, ok := msg.Metadata["kind"].(string); ok && kind == "artifact-update" {
		return ""
	}

	var texts []string
	for _, part := range msg.Parts {
		if part.Kind != a2a.PartKindText || part.Text == "" {
			continue
		}
		if isSyntheticToolText(part.Text) {
			continue
		}
		texts = append(texts, part.Text)
	}
	return strings.Join(texts, "\n")
}

func isSyntheticToolText(text string) bool {
	trimmed := strings.TrimSpace(text)
	for _, prefix := range syntheticTextPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

func usageFromMetadata(msg *a2a.Message) *TokenUsage {
	if msg == nil || msg.Metadata == nil {
		return nil
	}
	raw, ok := msg.Metadata["usage"].(map[string]any)
	if !ok {
		return nil
	}
	usage := &TokenUsage{}
	if v, ok := raw["input_tokens"].(float64); ok {
		usage.InputTokens = int64(v)
	}
	if v, ok := raw["output_tokens"].(float64); ok {
		usage.OutputTokens = int64(v)
	}
	if usage.InputTokens == 0 && usage.OutputTokens == 0 {
		return nil
	}
	return usage
}

// handleArtifactUpdate folds one artifact chunk. Streamed text and
// artifacts are mutually exclusive at the same instant: an arriving
// artifact closes the active text run, discarding it when its content is
// just an echo of the artifact itself.
func (h *EventHandler) handleArtifactUpdate(ev *a2a.ArtifactUpdateEvent) {
	parts := ArtifactPartsFromWire(ev.Artifact.Parts)

	if active := h.state.ActiveText; active != nil && active.Text != "" {
		if strings.Contains(ArtifactText(parts), active.Text) {
			h.state.DiscardActiveText()
		} else {
			h.state.CloseActiveText()
		}
	}

	if existing := FindArtifactBlock(h.state.Blocks, ev.Artifact.ArtifactID); existing != nil {
		existing.Parts = ConsolidateTextParts(append(existing.Parts, parts...))
	} else {
		h.state.Blocks = append(h.state.Blocks, &ArtifactBlock{
			ArtifactID:  ev.Artifact.ArtifactID,
			Name:        ev.Artifact.Name,
			Description: ev.Artifact.Description,
			Parts:       ConsolidateTextParts(parts),
			Timestamp:   h.now(),
		})
	}
	h.emitUpdate()
}

// handleTextDelta appends to the active text run, creating it if absent.
// The in-progress text is visible to the caller before being closed.
func (h *EventHandler) handleTextDelta(ev *a2a.TextDeltaEvent) {
	h.state.CaptureTaskID(ev.TaskID)
	if h.state.ActiveText == nil {
		h.state.ActiveText = &TextBlock{Timestamp: h.now()}
	}
	h.state.ActiveText.Text += ev.Text
	h.emitUpdate()
}

func stringField(data map[string]any, key string) string {
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}
