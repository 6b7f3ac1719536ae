// Package cache provides a bounded in-memory response cache for
// deterministic Messages exchanges. Entries are keyed by a fingerprint over
// the semantically relevant parts of the request and expire on a per-class
// TTL; capacity is bounded by LRU eviction.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"localhost/deepseek-proxy/internal/claudeadapter"
)

// Class selects the lifetime applied to a stored entry. Code answers stay
// valid longest among dynamic content; reasoning is shorter-lived because
// phrasing varies more across regenerations.
type Class string

const (
	ClassCode      Class = "code"
	ClassReasoning Class = "reasoning"
	ClassStatic    Class = "static_info"
	ClassDefault   Class = "default"
)

// DefaultTTLs returns the built-in per-class lifetime table, used when the
// configuration does not supply one. ClassDefault uses the configured default
// TTL instead.
func DefaultTTLs() map[Class]time.Duration {
	return map[Class]time.Duration{
		ClassCode:      time.Hour,
		ClassReasoning: 30 * time.Minute,
		ClassStatic:    24 * time.Hour,
	}
}

// staticMarkers flag definitional lookups whose answers stay valid far longer
// than generated content.
var staticMarkers = []string{"what is", "define", "explain"}

// ClassForRequest maps a task classification and the latest user text to a
// cache lifetime class. Definitional questions that classify as neither code
// nor reasoning are treated as static information.
func ClassForRequest(task, userText string) Class {
	switch task {
	case "code":
		return ClassCode
	case "reasoning":
		return ClassReasoning
	}
	text := strings.ToLower(userText)
	for _, marker := range staticMarkers {
		if strings.Contains(text, marker) {
			return ClassStatic
		}
	}
	return ClassDefault
}

// Error wraps cache-internal failures. Callers treat any cache error as a
// miss: the cache is an optimization and never fails an exchange.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type entry struct {
	response  *claudeadapter.MessagesResponse
	expiresAt time.Time
}

// Cache is a TTL-bounded LRU over translated responses. Safe for concurrent
// use.
type Cache struct {
	entries    *lru.Cache[string, entry]
	defaultTTL time.Duration
	classTTL   map[Class]time.Duration
	now        func() time.Time
}

// New builds a cache holding at most size entries. defaultTTL applies to
// ClassDefault entries and any class missing from classTTLs; a nil classTTLs
// uses DefaultTTLs.
func New(size int, defaultTTL time.Duration, classTTLs map[Class]time.Duration) (*Cache, error) {
	entries, err := lru.New[string, entry](size)
	if err != nil {
		return nil, &Error{Op: "init", Err: err}
	}
	if classTTLs == nil {
		classTTLs = DefaultTTLs()
	}
	return &Cache{entries: entries, defaultTTL: defaultTTL, classTTL: classTTLs, now: time.Now}, nil
}

// Cacheable reports whether an exchange may be served from or stored into the
// cache. Streaming exchanges and tool-bearing requests are never cached: the
// former have no single response to store, the latter depend on tool results
// outside the fingerprint.
func Cacheable(req *claudeadapter.MessagesRequest) bool {
	return !req.Stream && len(req.Tools) == 0
}

// fingerprintRequest is the canonical subset of a request that determines the
// response. Client identity, metadata and request ids are deliberately
// excluded so identical questions from different callers share entries.
type fingerprintRequest struct {
	Model         string    `json:"model"`
	System        any       `json:"system,omitempty"`
	Messages      []any     `json:"messages"`
	Tools         any       `json:"tools,omitempty"`
	ToolChoice    any       `json:"tool_choice,omitempty"`
	MaxTokens     int       `json:"max_tokens,omitempty"`
	Temperature   *float64  `json:"temperature,omitempty"`
	TopP          *float64  `json:"top_p,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
}

// Key computes the fingerprint for a request. Raw JSON fields are normalized
// through a decode/encode round trip so formatting differences between
// clients do not split the keyspace.
func (c *Cache) Key(req *claudeadapter.MessagesRequest) (string, error) {
	fp := fingerprintRequest{
		Model:         req.Model,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.StopSequences,
	}

	var err error
	if fp.System, err = normalize(req.System); err != nil {
		return "", &Error{Op: "fingerprint system", Err: err}
	}
	if fp.ToolChoice, err = normalize(req.ToolChoice); err != nil {
		return "", &Error{Op: "fingerprint tool_choice", Err: err}
	}
	if len(req.Tools) > 0 {
		raw, err := json.Marshal(req.Tools)
		if err != nil {
			return "", &Error{Op: "fingerprint tools", Err: err}
		}
		if fp.Tools, err = normalize(raw); err != nil {
			return "", &Error{Op: "fingerprint tools", Err: err}
		}
	}
	for i, msg := range req.Messages {
		content, err := normalize(msg.Content)
		if err != nil {
			return "", &Error{Op: fmt.Sprintf("fingerprint message %d", i), Err: err}
		}
		fp.Messages = append(fp.Messages, map[string]any{
			"role":    msg.Role,
			"content": content,
		})
	}

	canonical, err := json.Marshal(fp)
	if err != nil {
		return "", &Error{Op: "fingerprint encode", Err: err}
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// normalize round-trips raw JSON through generic decoding so key order and
// whitespace become canonical (encoding/json sorts map keys on output).
func normalize(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Get returns the cached response for key, or false when absent or expired.
// Expired entries are removed on access.
func (c *Cache) Get(key string) (*claudeadapter.MessagesResponse, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.entries.Remove(key)
		return nil, false
	}
	return e.response, true
}

// Store inserts a response under key with the lifetime of class.
func (c *Cache) Store(key string, resp *claudeadapter.MessagesResponse, class Class) {
	c.entries.Add(key, entry{
		response:  resp,
		expiresAt: c.now().Add(c.ttlFor(class)),
	})
}

// Len returns the number of resident entries, counting any not yet expired
// lazily.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) ttlFor(class Class) time.Duration {
	if ttl, ok := c.classTTL[class]; ok {
		return ttl
	}
	return c.defaultTTL
}
