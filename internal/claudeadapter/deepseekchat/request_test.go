package deepseekchat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localhost/deepseek-proxy/internal/claudeadapter"
)

func TestTranslateRequest_Basic(t *testing.T) {
	req := &claudeadapter.MessagesRequest{
		Model:  "deepseek-chat",
		System: json.RawMessage(`"You are terse."`),
		Messages: []claudeadapter.Message{
			{Role: "user", Content: json.RawMessage(`"hello"`)},
		},
	}

	out, err := TranslateRequest(req, NewConversionContext())
	require.NoError(t, err)

	require.Len(t, out.Messages, 2)
	assert.Equal(t, "system", out.Messages[0].Role)
	assert.Equal(t, "You are terse.", out.Messages[0].Content)
	assert.Equal(t, "user", out.Messages[1].Role)
	assert.Equal(t, "hello", out.Messages[1].Content)
	assert.Nil(t, out.Tools)
	assert.Nil(t, out.ToolChoice)
}

func TestTranslateRequest_OptimizerFillsParams(t *testing.T) {
	req := &claudeadapter.MessagesRequest{
		Model: "deepseek-chat",
		Messages: []claudeadapter.Message{
			{Role: "user", Content: json.RawMessage(`"debug this function"`)},
		},
	}

	cctx := NewConversionContext()
	out, err := TranslateRequest(req, cctx)
	require.NoError(t, err)

	assert.Equal(t, TaskCode, cctx.Task)
	require.NotNil(t, out.Temperature)
	assert.Equal(t, 0.1, *out.Temperature)
	require.NotNil(t, out.TopP)
	assert.Equal(t, 0.9, *out.TopP)
	require.NotNil(t, out.FrequencyPenalty)
	assert.Equal(t, 0.2, *out.FrequencyPenalty)
	assert.Equal(t, 8192, out.MaxTokens)
	assert.True(t, cctx.Thinking)
}

func TestTranslateRequest_CallerParamsWin(t *testing.T) {
	temp, topP := 0.55, 0.42
	req := &claudeadapter.MessagesRequest{
		Model:       "deepseek-chat",
		Temperature: &temp,
		TopP:        &topP,
		MaxTokens:   123,
		Messages: []claudeadapter.Message{
			{Role: "user", Content: json.RawMessage(`"debug this function"`)},
		},
	}

	out, err := TranslateRequest(req, NewConversionContext())
	require.NoError(t, err)

	assert.Equal(t, 0.55, *out.Temperature)
	assert.Equal(t, 0.42, *out.TopP)
	assert.Equal(t, 123, out.MaxTokens)
}

func TestTranslateRequest_ToolConversation(t *testing.T) {
	req := &claudeadapter.MessagesRequest{
		Model: "deepseek-chat",
		Messages: []claudeadapter.Message{
			{Role: "user", Content: json.RawMessage(`"what's the weather in Paris?"`)},
			{Role: "assistant", Content: json.RawMessage(`[
				{"type":"text","text":"Let me check."},
				{"type":"tool_use","id":"toolu_w1","name":"weather","input":{"city":"Paris"}}
			]`)},
			{Role: "user", Content: json.RawMessage(`[
				{"type":"tool_result","tool_use_id":"toolu_w1","content":"18C, sunny"}
			]`)},
		},
		Tools: []claudeadapter.Tool{{
			Name:        "weather",
			InputSchema: json.RawMessage(`{"type":"object"}`),
		}},
	}

	cctx := NewConversionContext()
	out, err := TranslateRequest(req, cctx)
	require.NoError(t, err)

	require.Len(t, out.Messages, 3)

	asst := out.Messages[1]
	assert.Equal(t, "assistant", asst.Role)
	assert.Equal(t, "Let me check.", asst.Content)
	require.Len(t, asst.ToolCalls, 1)
	assert.Equal(t, "weather", asst.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"city":"Paris"}`, asst.ToolCalls[0].Function.Arguments)

	tool := out.Messages[2]
	assert.Equal(t, "tool", tool.Role)
	assert.Equal(t, "18C, sunny", tool.Content)
	// The tool result correlates with the call that produced it.
	assert.Equal(t, asst.ToolCalls[0].ID, tool.ToolCallID)

	require.Len(t, out.Tools, 1)
	assert.Equal(t, "auto", out.ToolChoice)
}

func TestTranslateRequest_ErrorToolResult(t *testing.T) {
	req := &claudeadapter.MessagesRequest{
		Model: "deepseek-chat",
		Messages: []claudeadapter.Message{
			{Role: "assistant", Content: json.RawMessage(`[
				{"type":"tool_use","id":"toolu_1","name":"f","input":{}}
			]`)},
			{Role: "user", Content: json.RawMessage(`[
				{"type":"tool_result","tool_use_id":"toolu_1","content":"not found","is_error":true}
			]`)},
		},
	}

	out, err := TranslateRequest(req, NewConversionContext())
	require.NoError(t, err)
	assert.Equal(t, "Error: not found", out.Messages[1].Content)
}

func TestTranslateRequest_UnsupportedContent(t *testing.T) {
	req := &claudeadapter.MessagesRequest{
		Model: "deepseek-chat",
		Messages: []claudeadapter.Message{
			{Role: "user", Content: json.RawMessage(`[
				{"type":"image","text":""}
			]`)},
		},
	}

	_, err := TranslateRequest(req, NewConversionContext())
	var unsupported *claudeadapter.UnsupportedContentError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "image", unsupported.BlockType)
}

func TestTranslateRequest_StopSequencesAndStreaming(t *testing.T) {
	req := &claudeadapter.MessagesRequest{
		Model:         "deepseek-chat",
		Stream:        true,
		StopSequences: []string{"END"},
		Messages: []claudeadapter.Message{
			{Role: "user", Content: json.RawMessage(`"hi"`)},
		},
	}

	out, err := TranslateRequest(req, NewConversionContext())
	require.NoError(t, err)
	assert.True(t, out.Stream)
	assert.Equal(t, []string{"END"}, out.Stop)
	require.NotNil(t, out.StreamOptions)
	assert.True(t, out.StreamOptions.IncludeUsage)
}

func TestTranslateRequest_ManyToolsForceThinking(t *testing.T) {
	schema := json.RawMessage(`{"type":"object"}`)
	req := &claudeadapter.MessagesRequest{
		Model: "deepseek-chat",
		Messages: []claudeadapter.Message{
			{Role: "user", Content: json.RawMessage(`"tell me a story"`)},
		},
		Tools: []claudeadapter.Tool{
			{Name: "a", InputSchema: schema},
			{Name: "b", InputSchema: schema},
			{Name: "c", InputSchema: schema},
		},
	}

	cctx := NewConversionContext()
	_, err := TranslateRequest(req, cctx)
	require.NoError(t, err)

	// Creative tasks don't think, but three tools tip the scale.
	assert.Equal(t, TaskCreative, cctx.Task)
	assert.True(t, cctx.Thinking)
}
