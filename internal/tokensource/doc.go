// Package tokensource attaches upstream credentials to outbound requests.
//
// The chat-completions gateway authenticates with a static bearer key. The
// key is wrapped in an oauth2.TokenSource and applied through oauth2.Transport
// so the HTTP layer stays uniform: handlers receive a plain RoundTripper and
// never see credentials.
package tokensource
