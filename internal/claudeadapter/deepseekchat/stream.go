package deepseekchat

import (
	"errors"
	"log/slog"
	"strings"

	"localhost/deepseek-proxy/internal/claudeadapter"
)

// Transcoder converts a sequence of gateway stream chunks into Claude stream
// events. It owns the protocol invariants the gateway side does not express:
// block indices are assigned monotonically from zero, at most one block is
// open at a time, every opened block is closed, and nothing follows the
// terminal event. One transcoder serves exactly one stream and is not safe
// for concurrent use.
type Transcoder struct {
	cctx  *ConversionContext
	model string // model name reported to the client

	started  bool
	finished bool
	failed   bool

	nextIndex int
	openIndex int    // -1 when no block is open
	openKind  string // block type of the open block
	openCall  int    // upstream tool-call index backing an open tool_use block

	acc        *callAccumulator
	rewriter   thinkRewriter
	stopReason string
	usage      claudeadapter.Usage
}

// NewTranscoder returns a transcoder for one streamed exchange. model is the
// name reported back to the client, which may differ from what the gateway
// echoes.
func NewTranscoder(cctx *ConversionContext, model string) *Transcoder {
	return &Transcoder{
		cctx:      cctx,
		model:     model,
		openIndex: -1,
		openCall:  -1,
		acc:       newCallAccumulator(),
	}
}

// Process converts one gateway chunk into zero or more Claude events. After
// the stream has terminated (success or failure) further chunks are ignored.
func (t *Transcoder) Process(chunk *ChatChunk) []claudeadapter.StreamEvent {
	if t.finished || t.failed {
		return nil
	}

	var events []claudeadapter.StreamEvent
	if !t.started {
		t.started = true
		events = append(events, claudeadapter.NewMessageStartEvent(messageID(chunk.ID), t.model))
	}

	if chunk.Usage != nil {
		t.usage = claudeadapter.Usage{
			InputTokens:  chunk.Usage.PromptTokens,
			OutputTokens: chunk.Usage.CompletionTokens,
		}
	}

	if len(chunk.Choices) == 0 {
		return events
	}
	choice := chunk.Choices[0]

	if choice.Delta.Content != nil && *choice.Delta.Content != "" {
		events = append(events, t.textDelta(*choice.Delta.Content)...)
	}

	for _, call := range choice.Delta.ToolCalls {
		events = append(events, t.toolCallDelta(call)...)
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		t.stopReason = mapFinishReason(*choice.FinishReason)
		events = append(events, t.closeOpenBlock()...)
	}

	return events
}

// Done emits the closing event sequence for a successful stream. Safe to call
// after a failure; it then emits nothing.
func (t *Transcoder) Done() []claudeadapter.StreamEvent {
	if t.finished || t.failed {
		return nil
	}
	t.finished = true

	var events []claudeadapter.StreamEvent
	if !t.started {
		// The gateway closed the stream without a single chunk. Open a
		// message anyway so the client receives a well-formed sequence.
		t.started = true
		events = append(events, claudeadapter.NewMessageStartEvent(messageID(""), t.model))
	}
	events = append(events, t.closeOpenBlock()...)

	stop := t.stopReason
	if stop == "" {
		stop = claudeadapter.StopReasonEndTurn
	}
	events = append(events,
		claudeadapter.NewMessageDeltaEvent(stop, t.usage),
		claudeadapter.NewMessageStopEvent(),
	)
	return events
}

// Fail terminates the stream with an error event. The event is terminal:
// Process and Done become no-ops afterwards.
func (t *Transcoder) Fail(detail claudeadapter.Error) []claudeadapter.StreamEvent {
	if t.finished || t.failed {
		return nil
	}
	t.failed = true
	return []claudeadapter.StreamEvent{claudeadapter.NewErrorEvent(detail)}
}

// textDelta routes a text fragment through the reasoning rewriter and into an
// open text block, opening one (and closing any open tool block) as needed.
func (t *Transcoder) textDelta(text string) []claudeadapter.StreamEvent {
	var events []claudeadapter.StreamEvent
	if t.openKind != claudeadapter.BlockTypeText {
		events = append(events, t.closeOpenBlock()...)
		t.openIndex = t.nextIndex
		t.nextIndex++
		t.openKind = claudeadapter.BlockTypeText
		events = append(events, claudeadapter.NewTextBlockStartEvent(t.openIndex))
	}
	if out := t.rewriter.Feed(text); out != "" {
		events = append(events, claudeadapter.NewTextDeltaEvent(t.openIndex, out))
	}
	return events
}

// toolCallDelta handles one tool-call fragment. A fragment carrying an id
// starts a new call: any open block is closed and a tool_use block opens.
// Argument fragments are forwarded as input_json_delta and accumulated for
// validation at close.
func (t *Transcoder) toolCallDelta(call ToolCallDelta) []claudeadapter.StreamEvent {
	var events []claudeadapter.StreamEvent

	if !t.acc.Known(call.Index) {
		id := call.ID
		if id == "" {
			id = newCallID()
		}
		t.acc.Begin(call.Index, id, call.Function.Name)

		events = append(events, t.closeOpenBlock()...)
		t.openIndex = t.nextIndex
		t.nextIndex++
		t.openKind = claudeadapter.BlockTypeToolUse
		t.openCall = call.Index
		events = append(events, claudeadapter.NewToolUseBlockStartEvent(
			t.openIndex, t.cctx.ExternalID(id), call.Function.Name))
	}

	if call.Function.Arguments != "" {
		t.acc.Append(call.Index, call.Function.Arguments)
		if t.openKind == claudeadapter.BlockTypeToolUse && t.openCall == call.Index {
			events = append(events, claudeadapter.NewInputJSONDeltaEvent(t.openIndex, call.Function.Arguments))
		}
	}

	return events
}

// closeOpenBlock closes the currently open block, if any. Closing a tool_use
// block validates the accumulated argument buffer; a malformed buffer is
// recovered into an error-flagged text block after the close so the client
// learns the call is unusable without losing the stream.
func (t *Transcoder) closeOpenBlock() []claudeadapter.StreamEvent {
	if t.openIndex < 0 {
		return nil
	}

	var events []claudeadapter.StreamEvent
	if t.openKind == claudeadapter.BlockTypeText {
		if tail := t.rewriter.Flush(); tail != "" {
			events = append(events, claudeadapter.NewTextDeltaEvent(t.openIndex, tail))
		}
	}
	events = append(events, claudeadapter.NewContentBlockStopEvent(t.openIndex))

	if t.openKind == claudeadapter.BlockTypeToolUse {
		if _, err := t.acc.Finalize(t.openCall); err != nil {
			var malformed *claudeadapter.MalformedToolArgumentsError
			if errors.As(err, &malformed) {
				slog.Warn("recovered malformed streamed tool call arguments",
					"call_id", malformed.CallID, "tool", malformed.Name, "error", malformed.Err)
				block := malformedCallBlock(malformed)
				idx := t.nextIndex
				t.nextIndex++
				events = append(events,
					claudeadapter.NewTextBlockStartEvent(idx),
					claudeadapter.NewTextDeltaEvent(idx, block.Text),
					claudeadapter.NewContentBlockStopEvent(idx),
				)
			}
		}
	}

	t.openIndex = -1
	t.openKind = ""
	t.openCall = -1
	return events
}

// thinkRewriter reformats a streamed <think>…</think> reasoning section into
// the labeled prologue used by the non-streaming path. Because markers can
// straddle chunk boundaries, it withholds any trailing text that could be the
// start of the marker it is scanning for until more input arrives.
type thinkRewriter struct {
	pending string
	state   int // 0 before <think>, 1 inside, 2 after </think>
}

func (r *thinkRewriter) Feed(text string) string {
	r.pending += text
	var out strings.Builder

	for {
		switch r.state {
		case 0:
			pos := strings.Index(r.pending, thinkOpen)
			if pos < 0 {
				out.WriteString(r.emitSafe(thinkOpen))
				return out.String()
			}
			out.WriteString(r.pending[:pos])
			out.WriteString("**Reasoning Process:**\n")
			r.pending = r.pending[pos+len(thinkOpen):]
			r.state = 1
		case 1:
			pos := strings.Index(r.pending, thinkClose)
			if pos < 0 {
				out.WriteString(r.emitSafe(thinkClose))
				return out.String()
			}
			out.WriteString(r.pending[:pos])
			out.WriteString("\n\n**Answer:**\n")
			r.pending = r.pending[pos+len(thinkClose):]
			r.state = 2
		default:
			out.WriteString(r.pending)
			r.pending = ""
			return out.String()
		}
	}
}

// Flush releases any withheld text; an incomplete marker at end of stream is
// literal text after all.
func (r *thinkRewriter) Flush() string {
	out := r.pending
	r.pending = ""
	return out
}

// emitSafe returns the pending text minus the longest suffix that is a proper
// prefix of marker, which stays withheld.
func (r *thinkRewriter) emitSafe(marker string) string {
	hold := 0
	max := len(marker) - 1
	if max > len(r.pending) {
		max = len(r.pending)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(r.pending, marker[:n]) {
			hold = n
			break
		}
	}
	out := r.pending[:len(r.pending)-hold]
	r.pending = r.pending[len(r.pending)-hold:]
	return out
}
