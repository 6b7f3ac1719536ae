package claudeadapter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MessagesRequest represents a Claude Messages API request as sent by clients.
// Content fields that may be either a string or an array of blocks are kept
// as json.RawMessage and decoded through the helpers below.
type MessagesRequest struct {
	Model         string          `json:"model" validate:"required"`
	Messages      []Message       `json:"messages" validate:"required,min=1,dive"`
	System        json.RawMessage `json:"system,omitempty"` // string or []ContentBlock
	MaxTokens     int             `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	Temperature   *float64        `json:"temperature,omitempty" validate:"omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	Tools         []Tool          `json:"tools,omitempty" validate:"omitempty,dive"`
	ToolChoice    json.RawMessage `json:"tool_choice,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// Message is one conversation turn. Content is either a plain string or an
// array of content blocks; ContentBlocks normalizes both shapes.
type Message struct {
	Role    string          `json:"role" validate:"required,oneof=user assistant"`
	Content json.RawMessage `json:"content" validate:"required"`
}

// Content block discriminator values.
const (
	BlockTypeText       = "text"
	BlockTypeToolUse    = "tool_use"
	BlockTypeToolResult = "tool_result"
	BlockTypeImage      = "image"
)

// ContentBlock is the tagged union over Claude content block variants.
// Type selects which of the remaining fields are meaningful:
//
//	text        → Text
//	tool_use    → ID, Name, Input
//	tool_result → ToolUseID, Content, IsError
//
// Every translation boundary must switch on Type exhaustively and route
// unknown variants to UnsupportedContentError rather than dropping them.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"` // string or []ContentBlock
	IsError   bool            `json:"is_error,omitempty"`
}

// ContentBlocks decodes a message's content into block form. A bare string
// becomes a single text block so downstream translation only handles one
// shape.
func (m Message) ContentBlocks() ([]ContentBlock, error) {
	return DecodeBlocks(m.Content)
}

// DecodeBlocks decodes a string-or-array content payload into content blocks.
func DecodeBlocks(raw json.RawMessage) ([]ContentBlock, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil, nil
		}
		return []ContentBlock{{Type: BlockTypeText, Text: s}}, nil
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, fmt.Errorf("decode content blocks: %w", err)
	}
	return blocks, nil
}

// TextContent flattens a string-or-blocks payload into plain text,
// concatenating the text blocks and ignoring the rest.
func TextContent(raw json.RawMessage) string {
	blocks, err := DecodeBlocks(raw)
	if err != nil {
		return ""
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == BlockTypeText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// LatestUserText returns the text of the most recent user message, used by
// the parameter optimizer for task classification.
func (r *MessagesRequest) LatestUserText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return TextContent(r.Messages[i].Content)
		}
	}
	return ""
}

// Tool is a Claude tool definition. InputSchema is a JSON-schema object and
// passes through translation unchanged in semantics.
type Tool struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema" validate:"required"`
}

// ToolChoice is the decoded form of a Claude tool_choice object.
type ToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// MessagesResponse is a Claude Messages API response.
type MessagesResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   string         `json:"stop_reason,omitempty"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

// Usage is token accounting in Claude vocabulary.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Claude stop reason vocabulary. These exact strings are part of the
// client-facing compatibility contract.
const (
	StopReasonEndTurn      = "end_turn"
	StopReasonMaxTokens    = "max_tokens"
	StopReasonStopSequence = "stop_sequence"
	StopReasonToolUse      = "tool_use"
)
