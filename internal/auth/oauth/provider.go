// Package oauth models external identity providers as a closed set of
// variants behind one interface. Each variant owns its protocol quirks and
// hands the rest of the system a canonical profile; adding a provider means
// adding one variant, not touching the auth service.
package oauth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/tradepost/tradepost/internal/auth"
)

var (
	// ErrInvalidState marks a callback whose state is missing, expired, or
	// already consumed.
	ErrInvalidState = errors.New("oauth: invalid or expired state")

	// ErrInvalidCode marks a failed authorization-code exchange.
	ErrInvalidCode = errors.New("oauth: invalid authorization code")

	// ErrUnknownProvider marks a request naming a provider outside the
	// closed set.
	ErrUnknownProvider = errors.New("oauth: unknown provider")
)

const profileFetchTimeout = 10 * time.Second

// Provider is one external identity provider.
type Provider interface {
	// Name returns the stable provider identifier, e.g. "google".
	Name() string

	// AuthCodeURL builds the provider authorization URL carrying state.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for provider tokens. Invalid
	// codes surface ErrInvalidCode.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// Profile fetches the provider's raw profile and normalizes it into the
	// canonical shape; missing name parts and a missing email come back as
	// empty strings.
	Profile(ctx context.Context, tok *oauth2.Token) (auth.OAuthProfile, error)
}

// Registry is the closed set of configured providers keyed by name.
type Registry map[string]Provider

// NewRegistry builds a registry from the given providers.
func NewRegistry(providers ...Provider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		r[p.Name()] = p
	}
	return r
}

// Get returns the named provider or ErrUnknownProvider.
func (r Registry) Get(name string) (Provider, error) {
	p, ok := r[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

func httpClient() *http.Client {
	return &http.Client{Timeout: profileFetchTimeout}
}

// refreshToken extracts the refresh token, which some providers omit.
func refreshToken(tok *oauth2.Token) string {
	if tok == nil {
		return ""
	}
	return tok.RefreshToken
}
