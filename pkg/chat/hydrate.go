package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/kadirpekel/agentchat/pkg/a2a"
)

// ============================================================================
// TASK HYDRATION
// Reconstructs content blocks from a fully-fetched server task after a
// reload. The stream that originally produced the blocks is gone; the task
// history and artifacts are the authoritative record.
// ============================================================================

// TaskToContentBlocks converts a server task into content blocks. User
// messages in the history are excluded: they are reconstructed from local
// persistence, not from server history.
func TaskToContentBlocks(task *a2a.Task) []ContentBlock {
	if task == nil {
		return nil
	}

	var blocks []ContentBlock

	for i := range task.History {
		msg := &task.History[i]
		if msg.Role != a2a.MessageRoleAgent {
			continue
		}
		blocks = hydrateMessage(blocks, msg, task.Status.Timestamp)
	}

	for _, artifact := range task.Artifacts {
		blocks = append(blocks, &ArtifactBlock{
			ArtifactID:  artifact.ArtifactID,
			Name:        artifact.Name,
			Description: artifact.Description,
			Parts:       ConsolidateTextParts(ArtifactPartsFromWire(artifact.Parts)),
			Timestamp:   task.Status.Timestamp,
		})
	}

	blocks = append(blocks, &StatusBlock{
		TaskState: task.Status.State,
		Text:      statusTextFromMessage(task.Status.Message),
		Final:     true,
		Timestamp: task.Status.Timestamp,
	})

	ResolveStaleToolBlocks(blocks, task.Status.State)

	return blocks
}

// hydrateMessage folds one agent-authored history message into blocks:
// display text plus a tool-call synopsis, tool blocks from tool_request
// data parts, and resolution from tool_response parts.
func hydrateMessage(blocks []ContentBlock, msg *a2a.Message, at time.Time) []ContentBlock {
	var texts []string
	var requests []map[string]any

	for _, part := range msg.Parts {
		switch part.Kind {
		case a2a.PartKindText:
			if part.Text != "" && !isSyntheticToolText(part.Text) {
				texts = append(texts, part.Text)
			}
		case a2a.PartKindData:
			if part.Data == nil {
				continue
			}
			switch part.Data[dataTypeKey] {
			case dataTypeToolReq:
				requests = append(requests, part.Data)
			case dataTypeToolResp:
				blocks = resolveHydratedTool(blocks, part.Data)
			}
		}
	}

	text := strings.Join(texts, "\n")
	if synopsis := toolSynopsis(requests); synopsis != "" {
		if text != "" {
			text += "\n\n" + synopsis
		} else {
			text = synopsis
		}
	}
	if text != "" {
		blocks = append(blocks, &TextBlock{Text: text, Timestamp: at})
	}

	for _, req := range requests {
		callID := stringField(req, "tool_call_id")
		if callID == "" || FindToolBlock(blocks, callID) != nil {
			continue
		}
		blocks = append(blocks, &ToolBlock{
			ToolCallID: callID,
			ToolName:   stringField(req, "tool_name"),
			State:      ToolStateInputAvailable,
			Input:      req["arguments"],
			MessageID:  msg.MessageID,
			Timestamp:  at,
		})
	}

	return blocks
}

func resolveHydratedTool(blocks []ContentBlock, data map[string]any) []ContentBlock {
	block := FindToolBlock(blocks, stringField(data, "tool_call_id"))
	if block == nil || block.State != ToolStateInputAvailable {
		return blocks
	}
	if errText := stringField(data, "error"); errText != "" {
		block.State = ToolStateOutputError
		block.ErrorText = errText
		return blocks
	}
	block.State = ToolStateOutputAvailable
	block.Output = data["result"]
	return blocks
}

// toolSynopsis renders tool requests as a human-readable summary line.
func toolSynopsis(requests []map[string]any) string {
	switch len(requests) {
	case 0:
		return ""
	case 1:
		return "Calling tool: " + toolDisplayName(requests[0])
	default:
		names := make([]string, len(requests))
		for i, req := range requests {
			names[i] = toolDisplayName(req)
		}
		return fmt.Sprintf("Calling %d tools: %s", len(requests), strings.Join(names, ", "))
	}
}

func toolDisplayName(req map[string]any) string {
	if name := stringField(req, "tool_name"); name != "" {
		return name
	}
	return "unknown"
}

func statusTextFromMessage(msg *a2a.Message) string {
	if msg == nil {
		return ""
	}
	return statusText(msg)
}
