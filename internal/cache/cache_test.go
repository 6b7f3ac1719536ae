package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localhost/deepseek-proxy/internal/claudeadapter"
)

func testRequest() *claudeadapter.MessagesRequest {
	return &claudeadapter.MessagesRequest{
		Model:  "deepseek-chat",
		System: json.RawMessage(`"be brief"`),
		Messages: []claudeadapter.Message{
			{Role: "user", Content: json.RawMessage(`"what is a goroutine?"`)},
		},
	}
}

func testResponse() *claudeadapter.MessagesResponse {
	return &claudeadapter.MessagesResponse{
		ID:      "msg_1",
		Type:    "message",
		Role:    "assistant",
		Content: []claudeadapter.ContentBlock{{Type: claudeadapter.BlockTypeText, Text: "a lightweight thread"}},
	}
}

func TestKey_Deterministic(t *testing.T) {
	c, err := New(8, time.Minute, nil)
	require.NoError(t, err)

	k1, err := c.Key(testRequest())
	require.NoError(t, err)
	k2, err := c.Key(testRequest())
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64) // sha256 hex
}

func TestKey_IgnoresFormattingAndMetadata(t *testing.T) {
	c, err := New(8, time.Minute, nil)
	require.NoError(t, err)

	base := testRequest()
	k1, err := c.Key(base)
	require.NoError(t, err)

	// Same content, different whitespace and an added metadata object.
	variant := testRequest()
	variant.System = json.RawMessage(`  "be brief"  `)
	variant.Metadata = json.RawMessage(`{"user_id":"u-42"}`)
	k2, err := c.Key(variant)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
}

func TestKey_SensitiveToContent(t *testing.T) {
	c, err := New(8, time.Minute, nil)
	require.NoError(t, err)

	k1, err := c.Key(testRequest())
	require.NoError(t, err)

	other := testRequest()
	other.Messages[0].Content = json.RawMessage(`"what is a channel?"`)
	k2, err := c.Key(other)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)

	sampled := testRequest()
	temp := 0.9
	sampled.Temperature = &temp
	k3, err := c.Key(sampled)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestCacheable(t *testing.T) {
	assert.True(t, Cacheable(testRequest()))

	streaming := testRequest()
	streaming.Stream = true
	assert.False(t, Cacheable(streaming))

	withTools := testRequest()
	withTools.Tools = []claudeadapter.Tool{{Name: "f", InputSchema: json.RawMessage(`{"type":"object"}`)}}
	assert.False(t, Cacheable(withTools))
}

func TestGetStore(t *testing.T) {
	c, err := New(8, time.Minute, nil)
	require.NoError(t, err)

	key, err := c.Key(testRequest())
	require.NoError(t, err)

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Store(key, testResponse(), ClassDefault)
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "msg_1", got.ID)
}

func TestTTLExpiry(t *testing.T) {
	c, err := New(8, time.Minute, nil)
	require.NoError(t, err)

	now := time.Now()
	c.now = func() time.Time { return now }

	c.Store("k", testResponse(), ClassDefault)

	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(time.Minute + time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entry is removed on access")
}

func TestClassTTLs(t *testing.T) {
	c, err := New(8, time.Minute, nil)
	require.NoError(t, err)

	now := time.Now()
	c.now = func() time.Time { return now }

	c.Store("code", testResponse(), ClassCode)
	c.Store("reasoning", testResponse(), ClassReasoning)

	// Past the reasoning TTL but inside the code TTL.
	now = now.Add(31 * time.Minute)
	_, ok := c.Get("code")
	assert.True(t, ok)
	_, ok = c.Get("reasoning")
	assert.False(t, ok)
}

func TestLRUEviction(t *testing.T) {
	c, err := New(2, time.Minute, nil)
	require.NoError(t, err)

	c.Store("a", testResponse(), ClassDefault)
	c.Store("b", testResponse(), ClassDefault)
	c.Store("c", testResponse(), ClassDefault)

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry evicted at capacity")
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestConfiguredTTLs(t *testing.T) {
	c, err := New(8, time.Minute, map[Class]time.Duration{
		ClassCode:   5 * time.Minute,
		ClassStatic: time.Hour,
	})
	require.NoError(t, err)

	now := time.Now()
	c.now = func() time.Time { return now }

	c.Store("code", testResponse(), ClassCode)
	c.Store("static", testResponse(), ClassStatic)
	// Reasoning is absent from the table and falls back to the default TTL.
	c.Store("reasoning", testResponse(), ClassReasoning)

	now = now.Add(6 * time.Minute)
	_, ok := c.Get("code")
	assert.False(t, ok, "configured code TTL overrides the built-in hour")
	_, ok = c.Get("static")
	assert.True(t, ok)
	_, ok = c.Get("reasoning")
	assert.False(t, ok)
}

func TestClassForRequest(t *testing.T) {
	assert.Equal(t, ClassCode, ClassForRequest("code", "write a parser"))
	assert.Equal(t, ClassReasoning, ClassForRequest("reasoning", "why does this work"))
	assert.Equal(t, ClassDefault, ClassForRequest("creative", "write a poem"))
	assert.Equal(t, ClassDefault, ClassForRequest("", ""))

	// Definitional lookups cache as static information.
	assert.Equal(t, ClassStatic, ClassForRequest("general", "What is a goroutine?"))
	assert.Equal(t, ClassStatic, ClassForRequest("general", "define idempotency"))

	// Task classification wins over the marker scan.
	assert.Equal(t, ClassCode, ClassForRequest("code", "what is a goroutine? show code"))
}
