package a2a

import (
	"strings"
)

// ============================================================================
// A2A MESSAGE HELPER FUNCTIONS
// Utilities for working with A2A protocol messages
// ============================================================================

// ExtractText concatenates all text parts of a message with newlines.
func ExtractText(msg *Message) string {
	if msg == nil {
		return ""
	}
	var texts []string
	for _, part := range msg.Parts {
		if part.Kind == PartKindText && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// NewUserMessage creates a user message with a single text part.
func NewUserMessage(messageID, contextID, text string) Message {
	return Message{
		MessageID: messageID,
		ContextID: contextID,
		Role:      MessageRoleUser,
		Parts: []Part{
			{Kind: PartKindText, Text: text},
		},
	}
}

// HasTextContent reports whether a message contains any non-empty text part.
func HasTextContent(msg *Message) bool {
	if msg == nil {
		return false
	}
	for _, part := range msg.Parts {
		if part.Kind == PartKindText && part.Text != "" {
			return true
		}
	}
	return false
}
