package deepseekchat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localhost/deepseek-proxy/internal/claudeadapter"
)

func textChunk(text string) *ChatChunk {
	return &ChatChunk{
		ID:      "cmpl-1",
		Model:   "deepseek-chat",
		Choices: []ChunkChoice{{Delta: ChunkDelta{Content: &text}}},
	}
}

func finishChunk(reason string) *ChatChunk {
	return &ChatChunk{
		ID:      "cmpl-1",
		Choices: []ChunkChoice{{FinishReason: &reason}},
	}
}

func eventNames(events []claudeadapter.StreamEvent) []string {
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.Event()
	}
	return names
}

func TestTranscoder_TextStream(t *testing.T) {
	tr := NewTranscoder(NewConversionContext(), "claude-requested-model")

	var events []claudeadapter.StreamEvent
	events = append(events, tr.Process(textChunk("Hello"))...)
	events = append(events, tr.Process(textChunk(" world"))...)
	events = append(events, tr.Process(finishChunk("stop"))...)
	events = append(events, tr.Process(&ChatChunk{Usage: &ChatUsage{PromptTokens: 3, CompletionTokens: 2}})...)
	events = append(events, tr.Done()...)

	assert.Equal(t, []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}, eventNames(events))

	start := events[0].(claudeadapter.MessageStartEvent)
	assert.Equal(t, "claude-requested-model", start.Message.Model)
	assert.Equal(t, "msg_cmpl-1", start.Message.ID)
	assert.NotNil(t, start.Message.Content)

	delta := events[5].(claudeadapter.MessageDeltaEvent)
	assert.Equal(t, claudeadapter.StopReasonEndTurn, delta.Delta.StopReason)
	assert.Equal(t, 3, delta.Usage.InputTokens)
	assert.Equal(t, 2, delta.Usage.OutputTokens)
}

func TestTranscoder_ToolCallStream(t *testing.T) {
	tr := NewTranscoder(NewConversionContext(), "m")

	var events []claudeadapter.StreamEvent
	events = append(events, tr.Process(textChunk("Looking it up."))...)
	events = append(events, tr.Process(&ChatChunk{
		ID: "cmpl-1",
		Choices: []ChunkChoice{{Delta: ChunkDelta{ToolCalls: []ToolCallDelta{{
			Index:    0,
			ID:       "call_w1",
			Type:     "function",
			Function: FunctionCallDelta{Name: "weather", Arguments: `{"city":`},
		}}}}},
	})...)
	events = append(events, tr.Process(&ChatChunk{
		ID: "cmpl-1",
		Choices: []ChunkChoice{{Delta: ChunkDelta{ToolCalls: []ToolCallDelta{{
			Index:    0,
			Function: FunctionCallDelta{Arguments: `"Paris"}`},
		}}}}},
	})...)
	events = append(events, tr.Process(finishChunk("tool_calls"))...)
	events = append(events, tr.Done()...)

	assert.Equal(t, []string{
		"message_start",
		"content_block_start", // text
		"content_block_delta",
		"content_block_stop", // text closes before tool block opens
		"content_block_start", // tool_use
		"content_block_delta", // input_json_delta
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}, eventNames(events))

	toolStart := events[4].(claudeadapter.ContentBlockStartEvent)
	assert.Equal(t, claudeadapter.BlockTypeToolUse, toolStart.ContentBlock.Type)
	assert.Equal(t, "weather", toolStart.ContentBlock.Name)
	assert.Equal(t, 1, toolStart.Index)

	frag1 := events[5].(claudeadapter.ContentBlockDeltaEvent)
	frag2 := events[6].(claudeadapter.ContentBlockDeltaEvent)
	assert.Equal(t, `{"city":`, frag1.Delta.PartialJSON)
	assert.Equal(t, `"Paris"}`, frag2.Delta.PartialJSON)

	delta := events[8].(claudeadapter.MessageDeltaEvent)
	assert.Equal(t, claudeadapter.StopReasonToolUse, delta.Delta.StopReason)
}

// Block indices must increase monotonically from zero with exactly one block
// open at a time.
func TestTranscoder_OrderingInvariant(t *testing.T) {
	tr := NewTranscoder(NewConversionContext(), "m")

	var events []claudeadapter.StreamEvent
	events = append(events, tr.Process(textChunk("a"))...)
	events = append(events, tr.Process(&ChatChunk{
		Choices: []ChunkChoice{{Delta: ChunkDelta{ToolCalls: []ToolCallDelta{{
			Index: 0, ID: "call_1", Function: FunctionCallDelta{Name: "f", Arguments: `{}`},
		}}}}},
	})...)
	events = append(events, tr.Process(textChunk("b"))...)
	events = append(events, tr.Process(finishChunk("stop"))...)
	events = append(events, tr.Done()...)

	open := -1
	nextIndex := 0
	for _, ev := range events {
		switch e := ev.(type) {
		case claudeadapter.ContentBlockStartEvent:
			require.Equal(t, -1, open, "block %d opened while %d still open", e.Index, open)
			require.Equal(t, nextIndex, e.Index, "indices must be monotonic")
			open = e.Index
			nextIndex++
		case claudeadapter.ContentBlockDeltaEvent:
			require.Equal(t, open, e.Index, "delta for a block that is not open")
		case claudeadapter.ContentBlockStopEvent:
			require.Equal(t, open, e.Index)
			open = -1
		}
	}
	assert.Equal(t, -1, open, "stream ended with an open block")
	assert.Equal(t, 3, nextIndex)
}

func TestTranscoder_MalformedStreamedToolCall(t *testing.T) {
	tr := NewTranscoder(NewConversionContext(), "m")

	var events []claudeadapter.StreamEvent
	events = append(events, tr.Process(&ChatChunk{
		Choices: []ChunkChoice{{Delta: ChunkDelta{ToolCalls: []ToolCallDelta{{
			Index: 0, ID: "call_1", Function: FunctionCallDelta{Name: "search", Arguments: `{"q": oops`},
		}}}}},
	})...)
	events = append(events, tr.Process(finishChunk("tool_calls"))...)
	events = append(events, tr.Done()...)

	// The tool block closes and is followed by an error-flagged text block.
	names := eventNames(events)
	assert.Equal(t, []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_stop",
		"content_block_start",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}, names)

	recovery := events[5].(claudeadapter.ContentBlockDeltaEvent)
	assert.Contains(t, recovery.Delta.Text, "search")
}

func TestTranscoder_ErrorIsTerminal(t *testing.T) {
	tr := NewTranscoder(NewConversionContext(), "m")

	_ = tr.Process(textChunk("partial"))
	events := tr.Fail(claudeadapter.Error{Type: claudeadapter.ErrTypeAPI, Message: "upstream died"})
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].Event())

	// Nothing may follow the terminal event.
	assert.Empty(t, tr.Process(textChunk("more")))
	assert.Empty(t, tr.Done())
	assert.Empty(t, tr.Fail(claudeadapter.Error{Type: claudeadapter.ErrTypeAPI, Message: "again"}))
}

func TestTranscoder_EmptyStream(t *testing.T) {
	tr := NewTranscoder(NewConversionContext(), "m")
	events := tr.Done()

	assert.Equal(t, []string{"message_start", "message_delta", "message_stop"}, eventNames(events))
	delta := events[1].(claudeadapter.MessageDeltaEvent)
	assert.Equal(t, claudeadapter.StopReasonEndTurn, delta.Delta.StopReason)
}

func TestTranscoder_ReasoningAcrossChunks(t *testing.T) {
	tr := NewTranscoder(NewConversionContext(), "m")

	// Markers split across chunk boundaries must still be rewritten.
	var events []claudeadapter.StreamEvent
	for _, fragment := range []string{"<th", "ink>pondering</th", "ink>forty-two"} {
		events = append(events, tr.Process(textChunk(fragment))...)
	}
	events = append(events, tr.Process(finishChunk("stop"))...)
	events = append(events, tr.Done()...)

	var text strings.Builder
	for _, ev := range events {
		if delta, ok := ev.(claudeadapter.ContentBlockDeltaEvent); ok {
			text.WriteString(delta.Delta.Text)
		}
	}
	assert.Equal(t, "**Reasoning Process:**\npondering\n\n**Answer:**\nforty-two", text.String())
}

func TestThinkRewriter_PartialMarkerAtEOF(t *testing.T) {
	var r thinkRewriter
	out := r.Feed("maybe <thi")
	assert.Equal(t, "maybe ", out)
	// An incomplete marker at end of stream is literal text.
	assert.Equal(t, "<thi", r.Flush())
}
