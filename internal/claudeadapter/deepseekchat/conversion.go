package deepseekchat

// ConversionContext is per-exchange scratch state owned by a single
// request/response pair and discarded when the exchange completes. It is
// never shared across requests, so no locking is needed.
type ConversionContext struct {
	// externalToCall maps Claude tool_use ids to gateway call ids, and
	// callToExternal the reverse, so tool results in conversation history
	// correlate with the calls that produced them.
	externalToCall map[string]string
	callToExternal map[string]string

	// Task classification and the sampling parameters chosen for it.
	Task     TaskType
	Params   TaskParams
	Thinking bool
}

// NewConversionContext returns an empty conversion context for one exchange.
func NewConversionContext() *ConversionContext {
	return &ConversionContext{
		externalToCall: make(map[string]string),
		callToExternal: make(map[string]string),
	}
}

// CallID returns the gateway call id for an external tool_use id, minting and
// recording a fresh one on first sight.
func (c *ConversionContext) CallID(externalID string) string {
	if id, ok := c.externalToCall[externalID]; ok {
		return id
	}
	id := newCallID()
	c.externalToCall[externalID] = id
	c.callToExternal[id] = externalID
	return id
}

// ExternalID returns the Claude-visible id for a gateway call id. Ids minted
// by the gateway itself (never seen in conversation history) are sanitized
// into Claude's id alphabet.
func (c *ConversionContext) ExternalID(callID string) string {
	if id, ok := c.callToExternal[callID]; ok {
		return id
	}
	id := sanitizeToolID(callID)
	if id == "" {
		id = newToolUseID()
	}
	c.callToExternal[callID] = id
	c.externalToCall[id] = callID
	return id
}
