package deepseekchat

import (
	"fmt"
	"strings"

	"localhost/deepseek-proxy/internal/claudeadapter"
)

// TranslateRequest converts a Claude Messages request into an outbound
// chat-completion request. Classification and parameter selection happen
// here; the chosen task and profile are recorded on the conversion context so
// the caller can log them and pick a cache lifetime class.
//
// Caller-supplied sampling parameters always win over the optimizer: the
// profile only fills fields the client left unset.
func TranslateRequest(req *claudeadapter.MessagesRequest, cctx *ConversionContext) (*ChatRequest, error) {
	out := &ChatRequest{
		Model:  req.Model,
		Stream: req.Stream,
	}

	if sys := claudeadapter.TextContent(req.System); sys != "" {
		out.Messages = append(out.Messages, ChatMessage{Role: "system", Content: sys})
	}

	for i, msg := range req.Messages {
		blocks, err := msg.ContentBlocks()
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		translated, err := translateMessage(msg.Role, blocks, cctx)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		out.Messages = append(out.Messages, translated...)
	}

	out.Stop = req.StopSequences

	cctx.Task = ClassifyTask(req.LatestUserText())
	cctx.Params = ProfileFor(cctx.Task)
	applyParams(out, req, cctx.Params)

	if tools := fromTools(req.Tools); tools != nil {
		out.Tools = tools
		out.ToolChoice = fromToolChoice(req.ToolChoice)
	}

	cctx.Thinking = cctx.Params.Thinking || len(out.Tools) > thinkingToolThreshold

	if req.Stream {
		out.StreamOptions = &StreamOptions{IncludeUsage: true}
	}

	return out, nil
}

// translateMessage expands one Claude turn into chat messages. A turn that
// mixes text and tool blocks can fan out into several messages: tool_result
// blocks become separate tool-role messages, and an assistant turn with
// tool_use blocks becomes one assistant message carrying tool_calls.
func translateMessage(role string, blocks []claudeadapter.ContentBlock, cctx *ConversionContext) ([]ChatMessage, error) {
	var (
		texts     []string
		toolCalls []ChatToolCall
		results   []ChatMessage
	)

	for _, b := range blocks {
		switch b.Type {
		case claudeadapter.BlockTypeText:
			if b.Text != "" {
				texts = append(texts, b.Text)
			}
		case claudeadapter.BlockTypeToolUse:
			if role != "assistant" {
				return nil, &claudeadapter.UnsupportedContentError{BlockType: b.Type}
			}
			toolCalls = append(toolCalls, toolUseToCall(b, cctx))
		case claudeadapter.BlockTypeToolResult:
			if role != "user" {
				return nil, &claudeadapter.UnsupportedContentError{BlockType: b.Type}
			}
			results = append(results, ChatMessage{
				Role:       "tool",
				Content:    toolResultText(b),
				ToolCallID: cctx.CallID(b.ToolUseID),
			})
		default:
			return nil, &claudeadapter.UnsupportedContentError{BlockType: b.Type}
		}
	}

	// Tool results precede the follow-up user text: the gateway requires tool
	// messages to directly follow the assistant message that issued the calls.
	out := results
	if len(texts) > 0 || len(toolCalls) > 0 {
		out = append(out, ChatMessage{
			Role:      role,
			Content:   strings.Join(texts, "\n"),
			ToolCalls: toolCalls,
		})
	}
	return out, nil
}

// toolResultText flattens a tool_result payload to plain text, prefixing an
// error marker when the result is flagged as an error.
func toolResultText(b claudeadapter.ContentBlock) string {
	text := claudeadapter.TextContent(b.Content)
	if text == "" {
		// Content may also be a bare JSON value; forward it verbatim.
		text = strings.TrimSpace(string(b.Content))
		if text != "" && text[0] == '"' {
			text = strings.Trim(text, `"`)
		}
	}
	if b.IsError {
		return "Error: " + text
	}
	return text
}

// applyParams fills sampling parameters, preferring the caller's explicit
// values over the tuned profile.
func applyParams(out *ChatRequest, req *claudeadapter.MessagesRequest, p TaskParams) {
	if req.Temperature != nil {
		out.Temperature = req.Temperature
	} else {
		out.Temperature = ptr(p.Temperature)
	}
	if req.TopP != nil {
		out.TopP = req.TopP
	} else {
		out.TopP = ptr(p.TopP)
	}
	if p.FrequencyPenalty != 0 {
		out.FrequencyPenalty = ptr(p.FrequencyPenalty)
	}
	if p.PresencePenalty != 0 {
		out.PresencePenalty = ptr(p.PresencePenalty)
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	} else {
		out.MaxTokens = p.MaxTokens
	}
}

func ptr[T any](v T) *T { return &v }
