package deepseekchat

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"localhost/deepseek-proxy/internal/claudeadapter"
)

// mapFinishReason converts a gateway finish reason to Claude stop-reason
// vocabulary. Unknown reasons map to end_turn so clients always receive a
// value from the documented enumeration.
func mapFinishReason(reason string) string {
	switch reason {
	case "stop":
		return claudeadapter.StopReasonEndTurn
	case "length":
		return claudeadapter.StopReasonMaxTokens
	case "tool_calls", "function_call":
		return claudeadapter.StopReasonToolUse
	case "content_filter":
		return claudeadapter.StopReasonStopSequence
	default:
		return claudeadapter.StopReasonEndTurn
	}
}

// TranslateResponse converts a gateway completion into a Claude message.
// Reasoning traces embedded as <think> sections are reformatted into a
// structured text block; tool calls become tool_use blocks, with malformed
// argument payloads recovered into error-flagged text blocks so the rest of
// the message is still delivered.
func TranslateResponse(resp *ChatResponse, cctx *ConversionContext) (*claudeadapter.MessagesResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, &claudeadapter.UpstreamProtocolError{Reason: "completion response has no choices"}
	}
	choice := resp.Choices[0]

	var blocks []claudeadapter.ContentBlock
	if text := formatReasoning(choice.Message.Content); text != "" {
		blocks = append(blocks, claudeadapter.ContentBlock{
			Type: claudeadapter.BlockTypeText,
			Text: text,
		})
	}

	for _, call := range choice.Message.ToolCalls {
		block, err := callToToolUse(call, cctx)
		if err != nil {
			var malformed *claudeadapter.MalformedToolArgumentsError
			if errors.As(err, &malformed) {
				slog.Warn("recovered malformed tool call arguments",
					"call_id", malformed.CallID, "tool", malformed.Name, "error", malformed.Err)
				blocks = append(blocks, malformedCallBlock(malformed))
				continue
			}
			return nil, err
		}
		blocks = append(blocks, block)
	}

	if blocks == nil {
		blocks = []claudeadapter.ContentBlock{}
	}

	out := &claudeadapter.MessagesResponse{
		ID:         messageID(resp.ID),
		Type:       "message",
		Role:       "assistant",
		Model:      resp.Model,
		Content:    blocks,
		StopReason: mapFinishReason(choice.FinishReason),
	}
	if resp.Usage != nil {
		out.Usage = claudeadapter.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return out, nil
}

// messageID derives a Claude-style message id from the gateway's completion
// id, minting one when the gateway sent none.
func messageID(upstreamID string) string {
	if upstreamID == "" {
		return fmt.Sprintf("msg_%s", uuid.New().String()[:24])
	}
	return "msg_" + upstreamID
}

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// formatReasoning splits a DeepSeek reasoning trace out of the completion
// text. A <think>…</think> section is reformatted as a labeled reasoning
// prologue ahead of the answer; text without one passes through unchanged. An
// unterminated section is treated as all reasoning with no answer yet.
func formatReasoning(content string) string {
	start := strings.Index(content, thinkOpen)
	if start < 0 {
		return content
	}

	before := content[:start]
	rest := content[start+len(thinkOpen):]

	var reasoning, answer string
	if end := strings.Index(rest, thinkClose); end >= 0 {
		reasoning = rest[:end]
		answer = rest[end+len(thinkClose):]
	} else {
		reasoning = rest
	}

	reasoning = strings.TrimSpace(reasoning)
	answer = strings.TrimSpace(before + answer)

	if reasoning == "" {
		return answer
	}
	if answer == "" {
		return fmt.Sprintf("**Reasoning Process:**\n%s", reasoning)
	}
	return fmt.Sprintf("**Reasoning Process:**\n%s\n\n**Answer:**\n%s", reasoning, answer)
}
