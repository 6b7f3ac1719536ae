// Package deepseekchat adapts the Claude Messages protocol onto an
// OpenAI-compatible chat-completions gateway serving DeepSeek models.
//
// The package covers both directions of the exchange: request translation
// with task-aware parameter tuning, tool-call adaptation with id correlation
// across conversation turns, non-streaming response translation including
// DeepSeek reasoning-trace formatting, and a streaming transcoder that
// rebuilds the Claude event sequence from chat-completion chunks.
package deepseekchat
