package deepseekchat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localhost/deepseek-proxy/internal/claudeadapter"
)

func TestFromTools(t *testing.T) {
	tools := []claudeadapter.Tool{
		{
			Name:        "search",
			Description: "Search the web",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`),
		},
		{
			// Missing name: skipped.
			InputSchema: json.RawMessage(`{"type":"object"}`),
		},
		{
			// Non-object schema: skipped.
			Name:        "bad",
			InputSchema: json.RawMessage(`{"type":"string"}`),
		},
	}

	out := fromTools(tools)
	require.Len(t, out, 1)
	assert.Equal(t, "function", out[0].Type)
	assert.Equal(t, "search", out[0].Function.Name)
	assert.Equal(t, "Search the web", out[0].Function.Description)
}

func TestFromTools_Empty(t *testing.T) {
	assert.Nil(t, fromTools(nil))
	assert.Nil(t, fromTools([]claudeadapter.Tool{{Name: "bad", InputSchema: json.RawMessage(`{"type":"string"}`)}}))
}

func TestFromToolChoice(t *testing.T) {
	assert.Equal(t, "auto", fromToolChoice(nil))
	assert.Equal(t, "auto", fromToolChoice(json.RawMessage(`{"type":"auto"}`)))
	assert.Equal(t, "required", fromToolChoice(json.RawMessage(`{"type":"any"}`)))
	assert.Equal(t, "auto", fromToolChoice(json.RawMessage(`{"type":"unknown"}`)))

	forced := fromToolChoice(json.RawMessage(`{"type":"tool","name":"search"}`))
	assert.Equal(t, map[string]any{
		"type":     "function",
		"function": map[string]string{"name": "search"},
	}, forced)
}

func TestSanitizeToolID(t *testing.T) {
	assert.Equal(t, "call_abc-123", sanitizeToolID("call_abc-123"))
	assert.Equal(t, "call_abc_123", sanitizeToolID("call.abc 123"))
}

func TestToolIDRoundTrip(t *testing.T) {
	cctx := NewConversionContext()

	callID := cctx.CallID("toolu_original")
	assert.NotEmpty(t, callID)
	// The same external id always maps to the same call id.
	assert.Equal(t, callID, cctx.CallID("toolu_original"))
	// And back again.
	assert.Equal(t, "toolu_original", cctx.ExternalID(callID))
}

func TestCallToToolUse_MalformedArguments(t *testing.T) {
	cctx := NewConversionContext()
	call := ChatToolCall{
		ID:   "call_1",
		Type: "function",
		Function: FunctionCall{
			Name:      "search",
			Arguments: `{"q": "unterminated`,
		},
	}

	_, err := callToToolUse(call, cctx)
	var malformed *claudeadapter.MalformedToolArgumentsError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "call_1", malformed.CallID)
	assert.Equal(t, "search", malformed.Name)
}

func TestCallToToolUse_EmptyArguments(t *testing.T) {
	cctx := NewConversionContext()
	call := ChatToolCall{
		ID:       "call_1",
		Type:     "function",
		Function: FunctionCall{Name: "ping"},
	}

	block, err := callToToolUse(call, cctx)
	require.NoError(t, err)
	assert.Equal(t, claudeadapter.BlockTypeToolUse, block.Type)
	assert.JSONEq(t, `{}`, string(block.Input))
}

func TestCallAccumulator_FragmentReconstruction(t *testing.T) {
	acc := newCallAccumulator()
	acc.Begin(0, "call_1", "search")

	// Fragments split mid-token must reassemble into one valid value.
	for _, fragment := range []string{`{"a":`, `1`, `}`} {
		acc.Append(0, fragment)
	}

	input, err := acc.Finalize(0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(input))
}

func TestCallAccumulator_NoFragments(t *testing.T) {
	acc := newCallAccumulator()
	acc.Begin(0, "call_1", "ping")

	input, err := acc.Finalize(0)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(input))
}

func TestCallAccumulator_MalformedBuffer(t *testing.T) {
	acc := newCallAccumulator()
	acc.Begin(0, "call_1", "search")
	acc.Append(0, `{"q": [1, 2`)

	_, err := acc.Finalize(0)
	var malformed *claudeadapter.MalformedToolArgumentsError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "call_1", malformed.CallID)
}

func TestCallAccumulator_UnknownIndex(t *testing.T) {
	acc := newCallAccumulator()
	acc.Append(3, `{}`) // dropped
	assert.False(t, acc.Known(3))

	_, err := acc.Finalize(3)
	assert.Error(t, err)
}
