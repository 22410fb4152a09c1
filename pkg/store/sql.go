// Package store persists chat conversations in SQL databases
// (sqlite, postgres, mysql).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kadirpekel/agentchat/pkg/chat"
	"github.com/kadirpekel/agentchat/pkg/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore implements chat.MessageStore on a SQL database. Messages are
// stored as JSON documents with the query-relevant identity fields broken
// out into columns.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

const createMessagesTableSQL = `
CREATE TABLE IF NOT EXISTS chat_messages (
    id VARCHAR(255) PRIMARY KEY,
    agent_id VARCHAR(255) NOT NULL,
    agent_card_url VARCHAR(1024),
    context_id VARCHAR(255),
    task_id VARCHAR(255),
    task_state VARCHAR(50),
    role VARCHAR(50) NOT NULL,
    message_json TEXT NOT NULL,
    is_streaming BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation ON chat_messages(agent_id, context_id);
CREATE INDEX IF NOT EXISTS idx_chat_messages_created_at ON chat_messages(created_at);
`

// NewSQLStore creates a message store on an open database connection.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite":

	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLStore{
		db:      db,
		dialect: dialect,
	}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// NewSQLStoreFromConfig opens the configured database and creates the store.
func NewSQLStoreFromConfig(cfg *config.DatabaseConfig) (*SQLStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store configuration is required")
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := sql.Open(cfg.DriverName(), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Driver, err)
	}

	return NewSQLStore(db, cfg.Dialect())
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, createMessagesTableSQL); err != nil {
		return fmt.Errorf("failed to create chat_messages table: %w", err)
	}

	return nil
}

// SaveMessage inserts a new message row.
func (s *SQLStore) SaveMessage(ctx context.Context, msg *chat.ChatMessage) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}
	if msg.ID == "" {
		return fmt.Errorf("message ID cannot be empty")
	}

	messageJSON, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	query := `
INSERT INTO chat_messages (id, agent_id, agent_card_url, context_id, task_id, task_state, role, message_json, is_streaming, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`
	if s.dialect == "postgres" {
		query = `
INSERT INTO chat_messages (id, agent_id, agent_card_url, context_id, task_id, task_state, role, message_json, is_streaming, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	}

	_, err = s.db.ExecContext(ctx, query,
		msg.ID, msg.AgentID, msg.AgentCardURL, msg.ContextID, msg.TaskID,
		string(msg.TaskState), string(msg.Role), string(messageJSON),
		msg.IsStreaming, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

// UpdateMessage replaces the stored state of an existing message.
func (s *SQLStore) UpdateMessage(ctx context.Context, msg *chat.ChatMessage) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}
	if msg.ID == "" {
		return fmt.Errorf("message ID cannot be empty")
	}

	messageJSON, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	query := `
UPDATE chat_messages
SET task_id = ?, task_state = ?, message_json = ?, is_streaming = ?
WHERE id = ?
`
	if s.dialect == "postgres" {
		query = `
UPDATE chat_messages
SET task_id = $1, task_state = $2, message_json = $3, is_streaming = $4
WHERE id = $5
`
	}

	result, err := s.db.ExecContext(ctx, query,
		msg.TaskID, string(msg.TaskState), string(messageJSON), msg.IsStreaming, msg.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("message %s not found", msg.ID)
	}

	return nil
}

// LoadMessages returns the conversation for one agent/context in
// chronological order. agentCardURL narrows the match when non-empty, so
// conversations with same-named agents at different endpoints stay apart.
func (s *SQLStore) LoadMessages(ctx context.Context, agentID, contextID, agentCardURL string) ([]*chat.ChatMessage, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agentID cannot be empty")
	}

	query := `
SELECT message_json
FROM chat_messages
WHERE agent_id = ? AND context_id = ?
`
	args := []interface{}{agentID, contextID}

	if s.dialect == "postgres" {
		query = `
SELECT message_json
FROM chat_messages
WHERE agent_id = $1 AND context_id = $2
`
	}

	if agentCardURL != "" {
		if s.dialect == "postgres" {
			query += ` AND agent_card_url = $3`
		} else {
			query += ` AND agent_card_url = ?`
		}
		args = append(args, agentCardURL)
	}

	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*chat.ChatMessage
	for rows.Next() {
		var messageJSON string
		if err := rows.Scan(&messageJSON); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		message := &chat.ChatMessage{}
		if err := json.Unmarshal([]byte(messageJSON), message); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}

		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// DeleteMessages removes messages by id.
func (s *SQLStore) DeleteMessages(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if s.dialect == "postgres" {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		} else {
			placeholders[i] = "?"
		}
		args[i] = id
	}

	query := `DELETE FROM chat_messages WHERE id IN (` + strings.Join(placeholders, ", ") + `)`

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}

	return nil
}

// ClearChatHistory removes the whole conversation for one agent/context.
func (s *SQLStore) ClearChatHistory(ctx context.Context, agentID, contextID string) error {
	if agentID == "" {
		return fmt.Errorf("agentID cannot be empty")
	}

	query := `DELETE FROM chat_messages WHERE agent_id = ? AND context_id = ?`
	if s.dialect == "postgres" {
		query = `DELETE FROM chat_messages WHERE agent_id = $1 AND context_id = $2`
	}

	if _, err := s.db.ExecContext(ctx, query, agentID, contextID); err != nil {
		return fmt.Errorf("failed to clear chat history: %w", err)
	}

	return nil
}

// MessageCount returns the number of stored messages across all
// conversations.
func (s *SQLStore) MessageCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_messages`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
