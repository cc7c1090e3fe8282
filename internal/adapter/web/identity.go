package web

import (
	"math/rand/v2"
	"net/http"
)

// Identity is a browser-like request fingerprint.
type Identity struct {
	Name           string
	UserAgent      string
	AcceptLanguage string
}

// defaultIdentities is the rotation pool used when a fetch is rejected.
var defaultIdentities = []Identity{
	{
		Name:           "chrome-windows",
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		AcceptLanguage: "en-US,en;q=0.9",
	},
	{
		Name:           "safari-macos",
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
		AcceptLanguage: "en-US,en;q=0.9",
	},
	{
		Name:           "firefox-windows",
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:123.0) Gecko/20100101 Firefox/123.0",
		AcceptLanguage: "en-US,en;q=0.5",
	},
	{
		Name:           "chrome-linux",
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		AcceptLanguage: "en-GB,en;q=0.9",
	},
}

// DefaultIdentities returns a copy of the built-in identity pool.
func DefaultIdentities() []Identity {
	return append([]Identity(nil), defaultIdentities...)
}

// Apply sets the identity's headers on req.
func (id Identity) Apply(req *http.Request) {
	req.Header.Set("User-Agent", id.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", id.AcceptLanguage)
	// Identity keeps the transport from negotiating a compressed body we would have to decode.
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("DNT", "1")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

// identityPool picks identities for one attempt, preferring ones not yet tried.
type identityPool struct {
	identities []Identity
	intN       func(n int) int
}

func newIdentityPool(identities []Identity) *identityPool {
	if len(identities) == 0 {
		identities = DefaultIdentities()
	}
	return &identityPool{identities: identities, intN: rand.IntN}
}

// pick returns a random identity not in tried. ok is false when every
// identity has been tried.
func (p *identityPool) pick(tried map[string]struct{}) (Identity, bool) {
	untried := make([]Identity, 0, len(p.identities))
	for _, id := range p.identities {
		if _, seen := tried[id.UserAgent]; !seen {
			untried = append(untried, id)
		}
	}
	if len(untried) == 0 {
		return Identity{}, false
	}
	return untried[p.intN(len(untried))], true
}

func (p *identityPool) size() int { return len(p.identities) }
