package chat

import (
	"context"
	"fmt"
	"log/slog"
)

// ============================================================================
// CONVERSATION LOADING
// Reconciles locally persisted messages against server task history.
// ============================================================================

// History reloads persisted conversations, rehydrating assistant turns from
// server task history.
type History struct {
	client ProtocolClient
	store  MessageStore
	log    *slog.Logger
}

// NewHistory creates a conversation loader.
func NewHistory(client ProtocolClient, store MessageStore, log *slog.Logger) *History {
	if log == nil {
		log = slog.Default()
	}
	return &History{client: client, store: store, log: log}
}

// LoadConversation returns the stored conversation with assistant turns
// rebuilt from their server tasks. User turns and assistant turns with
// directly persisted blocks (error paths, task-less answers) pass through
// unchanged. A task fetch failure degrades to the stored message rather
// than failing the whole load: one unreachable task must not hide the rest
// of the conversation.
func (h *History) LoadConversation(ctx context.Context, agentID, contextID, agentCardURL string) ([]*ChatMessage, error) {
	messages, err := h.store.LoadMessages(ctx, agentID, contextID, agentCardURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	for _, msg := range messages {
		if msg.Role != MessageRoleAssistant || msg.TaskID == "" || len(msg.ContentBlocks) > 0 {
			continue
		}

		task, err := h.client.GetTask(ctx, msg.TaskID)
		if err != nil {
			h.log.Warn("Failed to fetch task for hydration",
				"task_id", msg.TaskID,
				"message_id", msg.ID,
				"error", err)
			continue
		}

		msg.ContentBlocks = SortContentBlocks(TaskToContentBlocks(task))
		msg.TaskState = task.Status.State

		// A turn stored as still-streaming whose task has since finished
		// is settled in place.
		if msg.IsStreaming && task.Status.State.Terminal() {
			msg.IsStreaming = false
			h.settle(ctx, msg)
		}
	}

	return messages, nil
}

func (h *History) settle(ctx context.Context, msg *ChatMessage) {
	stored := *msg
	stored.ContentBlocks = nil
	if err := h.store.UpdateMessage(ctx, &stored); err != nil {
		h.log.Warn("Failed to settle streamed message", "message_id", msg.ID, "error", err)
	}
}

// ClearConversation deletes the stored conversation for one agent/context.
func (h *History) ClearConversation(ctx context.Context, agentID, contextID string) error {
	if err := h.store.ClearChatHistory(ctx, agentID, contextID); err != nil {
		return fmt.Errorf("failed to clear chat history: %w", err)
	}
	return nil
}
