package deepseekchat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"localhost/deepseek-proxy/internal/claudeadapter"
)

// toolIDClean matches characters outside Claude's tool id alphabet.
var toolIDClean = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// sanitizeToolID rewrites a gateway call id into Claude's id alphabet.
func sanitizeToolID(id string) string {
	return toolIDClean.ReplaceAllString(id, "_")
}

// newCallID generates a gateway-style call id (format: call_<8-char-uuid>).
func newCallID() string {
	return fmt.Sprintf("call_%s", uuid.New().String()[:8])
}

// newToolUseID generates a Claude-style tool_use id.
func newToolUseID() string {
	return fmt.Sprintf("toolu_%s", uuid.New().String()[:8])
}

// fromTools translates Claude tool definitions into the gateway's function
// schema. Name, description and parameter schema pass through unchanged in
// semantics. Definitions missing required fields are skipped with a warning
// rather than failing the exchange. Returns nil for an empty input so the
// outbound request omits tool-calling entirely instead of sending a
// degenerate empty array.
func fromTools(tools []claudeadapter.Tool) []ChatTool {
	if len(tools) == 0 {
		return nil
	}

	out := make([]ChatTool, 0, len(tools))
	for _, t := range tools {
		if !validTool(t) {
			slog.Warn("skipping invalid tool definition", "tool", t.Name)
			continue
		}
		out = append(out, ChatTool{
			Type: "function",
			Function: FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// validTool checks the fields the gateway requires: a name and an
// object-typed input schema.
func validTool(t claudeadapter.Tool) bool {
	if t.Name == "" || len(t.InputSchema) == 0 {
		return false
	}
	return gjson.GetBytes(t.InputSchema, "type").String() == "object"
}

// fromToolChoice maps a Claude tool_choice object to the gateway's
// representation. Absent or unrecognized choices default to auto, matching
// the gateway's own default when tools are present.
func fromToolChoice(raw json.RawMessage) any {
	if len(raw) == 0 {
		return "auto"
	}

	var tc claudeadapter.ToolChoice
	if err := json.Unmarshal(raw, &tc); err != nil {
		return "auto"
	}

	switch tc.Type {
	case "auto":
		return "auto"
	case "any":
		return "required"
	case "tool":
		return map[string]any{
			"type":     "function",
			"function": map[string]string{"name": tc.Name},
		}
	default:
		return "auto"
	}
}

// toolUseToCall converts an assistant tool_use block from conversation
// history into a gateway function call, recording the id correlation for any
// tool_result that references it later in the conversation.
func toolUseToCall(b claudeadapter.ContentBlock, cctx *ConversionContext) ChatToolCall {
	args := strings.TrimSpace(string(b.Input))
	if args == "" || args == "null" {
		args = "{}"
	}
	externalID := b.ID
	if externalID == "" {
		externalID = newToolUseID()
	}
	return ChatToolCall{
		ID:   cctx.CallID(externalID),
		Type: "function",
		Function: FunctionCall{
			Name:      b.Name,
			Arguments: args,
		},
	}
}

// callToToolUse reconstructs a Claude tool_use block from a gateway function
// call. A payload that is not valid structured data is surfaced as an
// error-flagged text block via MalformedToolArgumentsError handling in the
// caller — the rest of the message is still delivered.
func callToToolUse(call ChatToolCall, cctx *ConversionContext) (claudeadapter.ContentBlock, error) {
	id := cctx.ExternalID(call.ID)
	if call.ID == "" {
		id = newToolUseID()
	}

	input, err := parseCallArguments(call.Function.Arguments)
	if err != nil {
		return claudeadapter.ContentBlock{}, &claudeadapter.MalformedToolArgumentsError{
			CallID: call.ID,
			Name:   call.Function.Name,
			Err:    err,
		}
	}

	return claudeadapter.ContentBlock{
		Type:  claudeadapter.BlockTypeToolUse,
		ID:    id,
		Name:  call.Function.Name,
		Input: input,
	}, nil
}

// malformedCallBlock is the locally-recovered replacement for a tool call
// whose arguments failed parsing. The error indicator travels in-band so the
// remaining content is still delivered.
func malformedCallBlock(err *claudeadapter.MalformedToolArgumentsError) claudeadapter.ContentBlock {
	return claudeadapter.ContentBlock{
		Type:    claudeadapter.BlockTypeText,
		Text:    fmt.Sprintf("[tool call %s failed: malformed arguments]", err.Name),
		IsError: true,
	}
}

// parseCallArguments validates a function-call argument payload. An empty
// payload yields empty arguments, not an error.
func parseCallArguments(args string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(args)
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage("{}"), nil
	}
	if !gjson.Valid(trimmed) {
		return nil, fmt.Errorf("argument payload is not valid JSON")
	}
	return json.RawMessage(trimmed), nil
}

// callAccumulator collects streamed tool-call argument fragments keyed by the
// upstream call index. Fragments are concatenated in arrival order and only
// validated once the call-complete signal arrives, per the deferred-parsing
// contract. Owned by a single stream; not safe for concurrent use.
type callAccumulator struct {
	calls map[int]*partialCall
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

func newCallAccumulator() *callAccumulator {
	return &callAccumulator{calls: make(map[int]*partialCall)}
}

// Begin registers a new call at index. The first fragment for an index
// carries the gateway call id and function name.
func (a *callAccumulator) Begin(index int, id, name string) {
	a.calls[index] = &partialCall{id: id, name: name}
}

// Known reports whether a call has been opened at index.
func (a *callAccumulator) Known(index int) bool {
	_, ok := a.calls[index]
	return ok
}

// Append concatenates an argument fragment for the call at index. Fragments
// for unknown indices are dropped; a gateway that emits arguments before the
// call header is violating the protocol and the transcoder reports it.
func (a *callAccumulator) Append(index int, fragment string) {
	if c, ok := a.calls[index]; ok {
		c.args.WriteString(fragment)
	}
}

// Finalize validates the accumulated argument buffer for index and returns
// the parsed structured value. A call with no fragments yields empty
// arguments, not an error.
func (a *callAccumulator) Finalize(index int) (json.RawMessage, error) {
	c, ok := a.calls[index]
	if !ok {
		return nil, fmt.Errorf("no tool call open at index %d", index)
	}
	input, err := parseCallArguments(c.args.String())
	if err != nil {
		return nil, &claudeadapter.MalformedToolArgumentsError{CallID: c.id, Name: c.name, Err: err}
	}
	return input, nil
}
