package tokensource

import (
	"net/http"

	"golang.org/x/oauth2"
)

// Static wraps an API key as an oauth2.TokenSource so it can plug into the
// standard oauth2 transport machinery.
func Static(apiKey string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey})
}

// Transport returns a RoundTripper that attaches the bearer key to every
// upstream request. An empty key returns base unchanged, for gateways that
// run unauthenticated on a private network.
func Transport(apiKey string, base http.RoundTripper) http.RoundTripper {
	if apiKey == "" {
		return base
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &oauth2.Transport{
		Source: Static(apiKey),
		Base:   base,
	}
}
