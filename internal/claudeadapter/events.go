package claudeadapter

import "encoding/json"

// StreamEvent is one Claude server-sent event. Event returns the SSE event
// name; the value itself is the JSON payload. Field names and enumeration
// values below are the client-facing compatibility contract and must not be
// approximated.
type StreamEvent interface {
	Event() string
}

// MessageStartEvent opens a streamed message. The embedded message carries a
// generated id, the served model name, empty content and zeroed usage.
type MessageStartEvent struct {
	Type    string           `json:"type"`
	Message MessagesResponse `json:"message"`
}

func (MessageStartEvent) Event() string { return "message_start" }

// NewMessageStartEvent builds the opening event for a streamed exchange.
func NewMessageStartEvent(messageID, model string) MessageStartEvent {
	return MessageStartEvent{
		Type: "message_start",
		Message: MessagesResponse{
			ID:      messageID,
			Type:    "message",
			Role:    "assistant",
			Model:   model,
			Content: []ContentBlock{},
		},
	}
}

// StreamContentBlock is the block header carried by content_block_start.
// Text is a pointer so that text blocks serialize an explicit empty "text"
// field while tool_use blocks omit it.
type StreamContentBlock struct {
	Type  string          `json:"type"`
	Text  *string         `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// ContentBlockStartEvent opens content block Index.
type ContentBlockStartEvent struct {
	Type         string             `json:"type"`
	Index        int                `json:"index"`
	ContentBlock StreamContentBlock `json:"content_block"`
}

func (ContentBlockStartEvent) Event() string { return "content_block_start" }

// NewTextBlockStartEvent opens a text content block at the given index.
func NewTextBlockStartEvent(index int) ContentBlockStartEvent {
	empty := ""
	return ContentBlockStartEvent{
		Type:         "content_block_start",
		Index:        index,
		ContentBlock: StreamContentBlock{Type: BlockTypeText, Text: &empty},
	}
}

// NewToolUseBlockStartEvent opens a tool_use content block at the given index.
// The input object starts empty; arguments arrive as input_json_delta events.
func NewToolUseBlockStartEvent(index int, id, name string) ContentBlockStartEvent {
	return ContentBlockStartEvent{
		Type:  "content_block_start",
		Index: index,
		ContentBlock: StreamContentBlock{
			Type:  BlockTypeToolUse,
			ID:    id,
			Name:  name,
			Input: json.RawMessage("{}"),
		},
	}
}

// BlockDelta is the delta payload of a content_block_delta event: either a
// text_delta fragment or an input_json_delta argument fragment.
type BlockDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// ContentBlockDeltaEvent appends a fragment to the open block at Index.
type ContentBlockDeltaEvent struct {
	Type  string     `json:"type"`
	Index int        `json:"index"`
	Delta BlockDelta `json:"delta"`
}

func (ContentBlockDeltaEvent) Event() string { return "content_block_delta" }

// NewTextDeltaEvent carries a text fragment for the block at index.
func NewTextDeltaEvent(index int, text string) ContentBlockDeltaEvent {
	return ContentBlockDeltaEvent{
		Type:  "content_block_delta",
		Index: index,
		Delta: BlockDelta{Type: "text_delta", Text: text},
	}
}

// NewInputJSONDeltaEvent carries a partial tool-argument fragment for the
// block at index. The fragment is forwarded unparsed; validation happens when
// the call completes.
func NewInputJSONDeltaEvent(index int, partial string) ContentBlockDeltaEvent {
	return ContentBlockDeltaEvent{
		Type:  "content_block_delta",
		Index: index,
		Delta: BlockDelta{Type: "input_json_delta", PartialJSON: partial},
	}
}

// ContentBlockStopEvent closes the block at Index.
type ContentBlockStopEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

func (ContentBlockStopEvent) Event() string { return "content_block_stop" }

// NewContentBlockStopEvent closes the block at index.
func NewContentBlockStopEvent(index int) ContentBlockStopEvent {
	return ContentBlockStopEvent{Type: "content_block_stop", Index: index}
}

// MessageDelta carries the final stop reason in Claude vocabulary.
type MessageDelta struct {
	StopReason   string  `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

// MessageDeltaEvent carries the stop reason and cumulative usage for the
// completed message.
type MessageDeltaEvent struct {
	Type  string       `json:"type"`
	Delta MessageDelta `json:"delta"`
	Usage Usage        `json:"usage"`
}

func (MessageDeltaEvent) Event() string { return "message_delta" }

// NewMessageDeltaEvent builds the closing delta with stop reason and usage.
func NewMessageDeltaEvent(stopReason string, usage Usage) MessageDeltaEvent {
	return MessageDeltaEvent{
		Type:  "message_delta",
		Delta: MessageDelta{StopReason: stopReason},
		Usage: usage,
	}
}

// MessageStopEvent terminates a successful stream.
type MessageStopEvent struct {
	Type string `json:"type"`
}

func (MessageStopEvent) Event() string { return "message_stop" }

// NewMessageStopEvent builds the terminal event.
func NewMessageStopEvent() MessageStopEvent {
	return MessageStopEvent{Type: "message_stop"}
}

// ErrorEvent reports a mid-stream failure. No further events may follow it.
type ErrorEvent struct {
	Type  string `json:"type"`
	Error Error  `json:"error"`
}

func (ErrorEvent) Event() string { return "error" }

// NewErrorEvent wraps a Claude-format error detail as a stream event.
func NewErrorEvent(detail Error) ErrorEvent {
	return ErrorEvent{Type: "error", Error: detail}
}
