package chat

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// CONTENT BLOCK JSON CODEC
// Blocks are persisted as a JSON array of kind-tagged envelopes so a stored
// conversation round-trips without losing the concrete block types.
// ============================================================================

type blockEnvelope struct {
	Kind BlockKind       `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// MarshalContentBlocks encodes blocks as kind-tagged JSON envelopes.
func MarshalContentBlocks(blocks []ContentBlock) ([]byte, error) {
	envelopes := make([]blockEnvelope, 0, len(blocks))
	for _, b := range blocks {
		body, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s block: %w", b.Kind(), err)
		}
		envelopes = append(envelopes, blockEnvelope{Kind: b.Kind(), Body: body})
	}
	return json.Marshal(envelopes)
}

// UnmarshalContentBlocks decodes kind-tagged JSON envelopes back into
// concrete blocks. Unknown kinds are an error: stored data is produced by
// this package, so an unknown kind means corruption or a version skew that
// must surface rather than silently drop content.
func UnmarshalContentBlocks(data []byte) ([]ContentBlock, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var envelopes []blockEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal content blocks: %w", err)
	}

	blocks := make([]ContentBlock, 0, len(envelopes))
	for _, env := range envelopes {
		var block ContentBlock
		switch env.Kind {
		case BlockKindText:
			block = &TextBlock{}
		case BlockKindTool:
			block = &ToolBlock{}
		case BlockKindArtifact:
			block = &ArtifactBlock{}
		case BlockKindTaskStatus:
			block = &StatusBlock{}
		case BlockKindConnectionStatus:
			block = &ConnectionBlock{}
		case BlockKindError:
			block = &ErrorBlock{}
		default:
			return nil, fmt.Errorf("unknown content block kind: %q", env.Kind)
		}
		if err := json.Unmarshal(env.Body, block); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s block: %w", env.Kind, err)
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}
