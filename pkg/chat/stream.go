package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/agentchat/pkg/a2a"
)

// ============================================================================
// STREAMING ORCHESTRATOR
// Drives a single conversational turn: open a stream, fold its events,
// persist checkpoints, and on failure run the bounded resubscription
// protocol to resume where the stream left off.
// ============================================================================

// DefaultMaxResubscribeAttempts caps consecutive fruitless reconnection
// attempts per dropped turn.
const DefaultMaxResubscribeAttempts = 5

// ProtocolClient is the wire-level collaborator, implemented by *a2a.Client.
type ProtocolClient interface {
	SendMessage(ctx context.Context, params a2a.MessageSendParams) (*a2a.Task, error)
	SendMessageStream(ctx context.Context, params a2a.MessageSendParams) iter.Seq2[a2a.Event, error]
	ResubscribeTask(ctx context.Context, taskID string) iter.Seq2[a2a.Event, error]
	GetTask(ctx context.Context, taskID string) (*a2a.Task, error)
	AgentCard(ctx context.Context) (*a2a.AgentCard, error)
}

// ClientFactory creates a fresh protocol client for one resubscribe
// attempt. A dropped SSE connection can leave the transport in a bad
// state, so each attempt gets its own client.
type ClientFactory func() (ProtocolClient, error)

// MessageStore is the persistence collaborator.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *ChatMessage) error
	UpdateMessage(ctx context.Context, msg *ChatMessage) error
	LoadMessages(ctx context.Context, agentID, contextID, agentCardURL string) ([]*ChatMessage, error)
	DeleteMessages(ctx context.Context, ids []string) error
	ClearChatHistory(ctx context.Context, agentID, contextID string) error
}

// FatalError marks a programming defect signaled during streaming. It is
// never retried: retrying cannot fix wrong code, only flaky networks.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as non-retryable.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err is a non-retryable defect.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// StreamRequest describes one conversational turn.
type StreamRequest struct {
	Prompt       string
	AgentID      string
	AgentCardURL string
	Model        string
	ContextID    string
}

// Streamer orchestrates conversational turns against one agent.
type Streamer struct {
	client      ProtocolClient
	reconnect   ClientFactory
	store       MessageStore
	log         *slog.Logger
	maxAttempts int

	// sleep is the backoff delay, injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	newID func() string
}

// StreamerOption configures a Streamer.
type StreamerOption func(*Streamer)

// WithMaxResubscribeAttempts overrides the consecutive-fruitless-attempt cap.
func WithMaxResubscribeAttempts(n int) StreamerOption {
	return func(s *Streamer) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithSleep overrides the backoff sleeper.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) StreamerOption {
	return func(s *Streamer) { s.sleep = sleep }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) StreamerOption {
	return func(s *Streamer) { s.now = now }
}

// NewStreamer creates a turn orchestrator. reconnect is invoked once per
// resubscribe attempt; pass a factory returning the same client if per-
// attempt clients are not needed. store may be nil for ephemeral sessions.
func NewStreamer(client ProtocolClient, reconnect ClientFactory, store MessageStore, log *slog.Logger, opts ...StreamerOption) *Streamer {
	if log == nil {
		log = slog.Default()
	}
	if reconnect == nil {
		reconnect = func() (ProtocolClient, error) { return client, nil }
	}
	s := &Streamer{
		client:      client,
		reconnect:   reconnect,
		store:       store,
		log:         log,
		maxAttempts: DefaultMaxResubscribeAttempts,
		sleep:       sleepContext,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StreamMessage drives one turn. The returned message is never nil once the
// placeholder exists: on failure it preserves all content accumulated
// before the failure, with a trailing connection-status or error block. The
// error is non-nil exactly when the turn did not complete successfully.
func (s *Streamer) StreamMessage(ctx context.Context, req StreamRequest, onUpdate UpdateFunc) (*ChatMessage, error) {
	base := &ChatMessage{
		ID:           NewResponseID(s.newID()),
		Role:         MessageRoleAssistant,
		ContextID:    req.ContextID,
		AgentID:      req.AgentID,
		AgentCardURL: req.AgentCardURL,
		Timestamp:    s.now(),
		IsStreaming:  true,
	}

	// Persist and emit the empty placeholder before any network activity
	// so the caller shows an immediate pending turn. Storage hiccups are
	// logged, not fatal: durability is best-effort, the in-session turn
	// must proceed.
	s.saveMessage(ctx, base)
	if onUpdate != nil {
		onUpdate(base)
	}

	state := NewStreamingState()
	handler := NewEventHandler(state, base, onUpdate, s.log)
	handler.now = s.now

	params := a2a.MessageSendParams{
		Message: a2a.NewUserMessage(s.newID(), req.ContextID, req.Prompt),
	}
	if req.Model != "" {
		params.Configuration = &a2a.MessageConfiguration{Model: req.Model}
	}

	streamErr := s.consume(s.client.SendMessageStream(ctx, params), handler, nil)
	if streamErr == nil {
		return s.finalize(ctx, base, state, onUpdate)
	}
	if IsFatal(streamErr) {
		turnsTotal.WithLabelValues("fatal").Inc()
		return base, streamErr
	}

	if !state.Resubscribable() {
		return s.failTurn(ctx, base, state, onUpdate, streamErr)
	}

	s.log.Warn("Stream dropped, attempting resubscription",
		"task_id", state.TaskID,
		"task_state", state.TaskState,
		"error", streamErr)

	recovered, resubErr := s.resubscribe(ctx, base, state, handler, onUpdate)
	if resubErr != nil {
		if IsFatal(resubErr) {
			turnsTotal.WithLabelValues("fatal").Inc()
			return base, resubErr
		}
		return s.failTurn(ctx, base, state, onUpdate, resubErr)
	}
	if !recovered {
		return s.giveUp(ctx, base, state, onUpdate, streamErr)
	}

	state.Blocks = ReplaceConnectionStatus(state.Blocks, &ConnectionBlock{
		Status:    ConnectionReconnected,
		Timestamp: s.now(),
	})
	return s.finalize(ctx, base, state, onUpdate)
}

// consume folds one event stream through the handler. onFirst, if non-nil,
// runs once before the first event is handled.
func (s *Streamer) consume(stream iter.Seq2[a2a.Event, error], handler *EventHandler, onFirst func()) error {
	first := true
	for ev, err := range stream {
		if err != nil {
			return err
		}
		if ev == nil {
			continue
		}
		if first && onFirst != nil {
			onFirst()
		}
		first = false
		streamEventsTotal.WithLabelValues(a2a.EventKind(ev)).Inc()
		if err := handler.HandleEvent(ev); err != nil {
			return Fatal(err)
		}
	}
	return nil
}

// resubscribe runs the bounded retry loop. It returns (true, nil) once the
// task reaches a terminal state, (false, nil) when the attempt budget is
// exhausted, and a non-nil error only for fatal defects or cancellation.
//
// Only consecutive fruitless attempts count toward the cap: an attempt that
// delivers at least one event resets the counter, so an agent that keeps
// reconnecting but takes a long time to finish is never abandoned.
func (s *Streamer) resubscribe(ctx context.Context, base *ChatMessage, state *StreamingState, handler *EventHandler, onUpdate UpdateFunc) (bool, error) {
	emitConnection := func(block *ConnectionBlock) {
		state.Blocks = ReplaceConnectionStatus(state.Blocks, block)
		if onUpdate != nil {
			onUpdate(BuildMessage(base, state.SnapshotBlocks(), state.TaskID, state.TaskState))
		}
	}

	emitConnection(&ConnectionBlock{
		Status:      ConnectionDisconnected,
		MaxAttempts: s.maxAttempts,
		Timestamp:   s.now(),
	})

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if err := s.sleep(ctx, time.Duration(1<<attempt)*time.Second); err != nil {
			return false, err
		}

		emitConnection(&ConnectionBlock{
			Status:      ConnectionReconnecting,
			Attempt:     attempt + 1,
			MaxAttempts: s.maxAttempts,
			Timestamp:   s.now(),
		})
		resubscribeAttemptsTotal.Inc()

		client, err := s.reconnect()
		if err != nil {
			s.log.Warn("Resubscribe client creation failed", "attempt", attempt+1, "error", err)
			continue
		}

		progressed := false
		streamErr := s.consume(client.ResubscribeTask(ctx, state.TaskID), handler, func() {
			// Show recovery as soon as any data arrives, not only on
			// eventual completion.
			progressed = true
			emitConnection(&ConnectionBlock{
				Status:      ConnectionReconnected,
				Attempt:     attempt + 1,
				MaxAttempts: s.maxAttempts,
				Timestamp:   s.now(),
			})
		})

		if streamErr == nil && state.TaskState.Terminal() {
			return true, nil
		}
		if streamErr != nil && IsFatal(streamErr) {
			return false, streamErr
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		if progressed {
			s.log.Info("Resubscribe made progress before dropping, resetting attempt counter",
				"task_id", state.TaskID, "attempt", attempt+1)
			attempt = -1
		}
	}

	return false, nil
}

// finalize builds and persists the completed turn. On the success path
// content blocks are not re-persisted: they are reconstructed on demand
// from server task history. A turn that never produced a task id has no
// history to re-fetch, so its blocks are stored directly.
func (s *Streamer) finalize(ctx context.Context, base *ChatMessage, state *StreamingState, onUpdate UpdateFunc) (*ChatMessage, error) {
	state.CloseActiveText()

	final := BuildMessage(base, state.Blocks, state.TaskID, state.TaskState)
	final.IsStreaming = false
	final.Usage = state.Usage
	if onUpdate != nil {
		onUpdate(final)
	}

	stored := *final
	if stored.TaskID != "" {
		stored.ContentBlocks = nil
	}
	if err := s.updateMessage(ctx, &stored); err != nil {
		// Network recovery is not a successfully persisted turn. The task
		// state achieved during recovery is preserved, not overwritten.
		turnsTotal.WithLabelValues("persist_failed").Inc()
		return final, fmt.Errorf("failed to persist finalized message: %w", err)
	}

	turnsTotal.WithLabelValues("success").Inc()
	return final, nil
}

// failTurn ends the turn with an error block appended after all content
// accumulated so far.
func (s *Streamer) failTurn(ctx context.Context, base *ChatMessage, state *StreamingState, onUpdate UpdateFunc, cause error) (*ChatMessage, error) {
	state.CloseActiveText()

	parsed := a2a.ParseError(cause)
	state.Blocks = append(state.Blocks, &ErrorBlock{
		Code:      parsed.Code,
		Message:   parsed.Message,
		Data:      parsed.Data,
		Timestamp: s.now(),
	})

	final := BuildMessage(base, state.Blocks, state.TaskID, state.TaskState)
	final.IsStreaming = false
	if onUpdate != nil {
		onUpdate(final)
	}

	// Error blocks have no server-side task to re-fetch, so they are
	// persisted directly.
	if err := s.updateMessage(ctx, final); err != nil {
		s.log.Warn("Failed to persist failed turn", "message_id", final.ID, "error", err)
	}

	turnsTotal.WithLabelValues("error").Inc()
	return final, fmt.Errorf("streaming failed: %w", cause)
}

// giveUp ends the turn after exhausting the resubscribe budget, settling
// the connection-status sequence with gave-up.
func (s *Streamer) giveUp(ctx context.Context, base *ChatMessage, state *StreamingState, onUpdate UpdateFunc, cause error) (*ChatMessage, error) {
	state.CloseActiveText()
	state.Blocks = ReplaceConnectionStatus(state.Blocks, &ConnectionBlock{
		Status:      ConnectionGaveUp,
		Attempt:     s.maxAttempts,
		MaxAttempts: s.maxAttempts,
		Timestamp:   s.now(),
	})

	parsed := a2a.ParseError(cause)
	state.Blocks = append(state.Blocks, &ErrorBlock{
		Code:      parsed.Code,
		Message:   parsed.Message,
		Data:      parsed.Data,
		Timestamp: s.now(),
	})

	final := BuildMessage(base, state.Blocks, state.TaskID, state.TaskState)
	final.IsStreaming = false
	if onUpdate != nil {
		onUpdate(final)
	}

	if err := s.updateMessage(ctx, final); err != nil {
		s.log.Warn("Failed to persist abandoned turn", "message_id", final.ID, "error", err)
	}

	turnsTotal.WithLabelValues("gave_up").Inc()
	return final, fmt.Errorf("gave up after %d resubscribe attempts: %w", s.maxAttempts, cause)
}

// saveMessage persists a new message, logging failures instead of
// propagating them.
func (s *Streamer) saveMessage(ctx context.Context, msg *ChatMessage) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		s.log.Warn("Failed to persist message", "message_id", msg.ID, "error", err)
	}
}

func (s *Streamer) updateMessage(ctx context.Context, msg *ChatMessage) error {
	if s.store == nil {
		return nil
	}
	return s.store.UpdateMessage(ctx, msg)
}
