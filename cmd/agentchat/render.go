// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/kadirpekel/agentchat/pkg/chat"
)

// renderer prints streaming message updates incrementally: prose as it
// grows, every other block once when it first appears or changes state.
type renderer struct {
	w        io.Writer
	printed  string
	notified map[string]bool
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w, notified: make(map[string]bool)}
}

// Update renders the difference since the previous update.
func (r *renderer) Update(msg *chat.ChatMessage) {
	text := msg.Text()
	if strings.HasPrefix(text, r.printed) {
		fmt.Fprint(r.w, text[len(r.printed):])
	} else if text != "" {
		// Text was restructured (e.g. duplicate streamed prose superseded
		// by an artifact); reprint from a clean line.
		fmt.Fprintf(r.w, "\n%s", text)
	}
	r.printed = text

	for _, block := range msg.ContentBlocks {
		key := blockKey(block)
		if key == "" || r.notified[key] {
			continue
		}
		r.notified[key] = true
		r.printNotice(block)
	}
}

// Finish terminates the output line.
func (r *renderer) Finish() {
	fmt.Fprintln(r.w)
}

// blockKey identifies one renderable notification. Text blocks render
// through the prose path and carry no key.
func blockKey(block chat.ContentBlock) string {
	switch b := block.(type) {
	case *chat.ToolBlock:
		return fmt.Sprintf("tool/%s/%s", b.ToolCallID, b.State)
	case *chat.ArtifactBlock:
		return "artifact/" + b.ArtifactID
	case *chat.StatusBlock:
		return fmt.Sprintf("status/%s/%s", b.TaskState, b.Timestamp.Format("15:04:05.000"))
	case *chat.ConnectionBlock:
		return fmt.Sprintf("connection/%s/%d", b.Status, b.Attempt)
	case *chat.ErrorBlock:
		return fmt.Sprintf("error/%d/%s", b.Code, b.Message)
	default:
		return ""
	}
}

func (r *renderer) printNotice(block chat.ContentBlock) {
	switch b := block.(type) {
	case *chat.ToolBlock:
		switch b.State {
		case chat.ToolStateInputAvailable:
			fmt.Fprintf(r.w, "\n[tool %s running]\n", b.ToolName)
		case chat.ToolStateOutputError:
			fmt.Fprintf(r.w, "\n[tool %s failed: %s]\n", b.ToolName, b.ErrorText)
		default:
			fmt.Fprintf(r.w, "\n[tool %s done]\n", b.ToolName)
		}
	case *chat.ArtifactBlock:
		name := b.Name
		if name == "" {
			name = b.ArtifactID
		}
		fmt.Fprintf(r.w, "\n[artifact: %s]\n%s\n", name, chat.ArtifactText(b.Parts))
	case *chat.StatusBlock:
		if b.Text != "" {
			fmt.Fprintf(r.w, "\n[%s] %s\n", b.TaskState, b.Text)
		}
	case *chat.ConnectionBlock:
		switch b.Status {
		case chat.ConnectionReconnecting:
			fmt.Fprintf(r.w, "\n[connection lost, reconnecting %d/%d]\n", b.Attempt, b.MaxAttempts)
		case chat.ConnectionReconnected:
			fmt.Fprintf(r.w, "\n[reconnected]\n")
		case chat.ConnectionGaveUp:
			fmt.Fprintf(r.w, "\n[gave up after %d attempts]\n", b.MaxAttempts)
		}
	case *chat.ErrorBlock:
		fmt.Fprintf(r.w, "\n[error %d] %s\n", b.Code, b.Message)
	}
}

// printBlock renders one stored block for non-streaming output.
func printBlock(w io.Writer, block chat.ContentBlock) {
	switch b := block.(type) {
	case *chat.TextBlock:
		fmt.Fprintln(w, b.Text)
	case *chat.ToolBlock:
		fmt.Fprintf(w, "[tool %s: %s]\n", b.ToolName, b.State)
	case *chat.ArtifactBlock:
		name := b.Name
		if name == "" {
			name = b.ArtifactID
		}
		fmt.Fprintf(w, "[artifact: %s]\n%s\n", name, chat.ArtifactText(b.Parts))
	case *chat.StatusBlock:
		if b.Text != "" {
			fmt.Fprintf(w, "[%s] %s\n", b.TaskState, b.Text)
		}
	case *chat.ConnectionBlock:
		fmt.Fprintf(w, "[connection: %s]\n", b.Status)
	case *chat.ErrorBlock:
		fmt.Fprintf(w, "[error %d] %s\n", b.Code, b.Message)
	}
}
