package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/tradepost/tradepost/internal/auth"
)

// GoogleConfig holds Google OAuth application credentials.
type GoogleConfig struct {
	ClientID     string   `env:"GOOGLE_OAUTH_CLIENT_ID"`
	ClientSecret string   `env:"GOOGLE_OAUTH_CLIENT_SECRET"`
	RedirectURL  string   `env:"GOOGLE_OAUTH_REDIRECT_URL"`
	Scopes       []string `env:"GOOGLE_OAUTH_SCOPES" envSeparator:"," envDefault:"https://www.googleapis.com/auth/userinfo.email,https://www.googleapis.com/auth/userinfo.profile"`
}

// GoogleProvider implements Provider for Google.
type GoogleProvider struct {
	config *oauth2.Config
}

// NewGoogleProvider creates the Google variant.
func NewGoogleProvider(cfg GoogleConfig) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     google.Endpoint,
		},
	}
}

func (p *GoogleProvider) Name() string { return auth.ProviderGoogle }

func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, ErrInvalidCode
	}
	return tok, nil
}

// googleUser is the relevant subset of Google's userinfo payload.
type googleUser struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
}

func (p *GoogleProvider) Profile(ctx context.Context, tok *oauth2.Token) (auth.OAuthProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.googleapis.com/oauth2/v2/userinfo", nil)
	if err != nil {
		return auth.OAuthProfile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := httpClient().Do(req)
	if err != nil {
		return auth.OAuthProfile{}, fmt.Errorf("fetch google profile: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return auth.OAuthProfile{}, fmt.Errorf("google api returned status %d", resp.StatusCode)
	}

	var raw googleUser
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return auth.OAuthProfile{}, fmt.Errorf("decode google profile: %w", err)
	}

	return normalizeGoogle(raw, tok), nil
}

// normalizeGoogle maps Google's userinfo shape onto the canonical profile.
// Google supplies given and family names directly.
func normalizeGoogle(raw googleUser, tok *oauth2.Token) auth.OAuthProfile {
	return auth.OAuthProfile{
		Provider:     auth.ProviderGoogle,
		ExternalID:   raw.ID,
		Email:        raw.Email,
		FirstName:    raw.GivenName,
		LastName:     raw.FamilyName,
		Avatar:       raw.Picture,
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken(tok),
	}
}
