package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/tradepost/tradepost/internal/auth"
)

// GitHubConfig holds GitHub OAuth application credentials.
type GitHubConfig struct {
	ClientID     string   `env:"GITHUB_OAUTH_CLIENT_ID"`
	ClientSecret string   `env:"GITHUB_OAUTH_CLIENT_SECRET"`
	RedirectURL  string   `env:"GITHUB_OAUTH_REDIRECT_URL"`
	Scopes       []string `env:"GITHUB_OAUTH_SCOPES" envSeparator:"," envDefault:"user:email"`
}

// GitHubProvider implements Provider for GitHub.
type GitHubProvider struct {
	config *oauth2.Config
}

// NewGitHubProvider creates the GitHub variant.
func NewGitHubProvider(cfg GitHubConfig) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     github.Endpoint,
		},
	}
}

func (p *GitHubProvider) Name() string { return auth.ProviderGithub }

func (p *GitHubProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, ErrInvalidCode
	}
	return tok, nil
}

// githubUser is the relevant subset of GitHub's /user payload. GitHub has
// no split name fields, only a display name, and may omit the email.
type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (p *GitHubProvider) Profile(ctx context.Context, tok *oauth2.Token) (auth.OAuthProfile, error) {
	var raw githubUser
	if err := p.getJSON(ctx, tok, "https://api.github.com/user", &raw); err != nil {
		return auth.OAuthProfile{}, err
	}

	// The /user endpoint only carries a public email; fall back to the
	// emails endpoint for the primary verified address.
	if raw.Email == "" {
		var emails []githubEmail
		if err := p.getJSON(ctx, tok, "https://api.github.com/user/emails", &emails); err != nil {
			return auth.OAuthProfile{}, err
		}
		raw.Email = pickGitHubEmail(emails)
	}

	return normalizeGitHub(raw, tok), nil
}

func (p *GitHubProvider) getJSON(ctx context.Context, tok *oauth2.Token, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("fetch github profile: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github api returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode github response: %w", err)
	}
	return nil
}

// pickGitHubEmail prefers the primary verified address, then any verified
// one. An account without a usable email still authenticates with an empty
// email.
func pickGitHubEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}
	return ""
}

// normalizeGitHub maps GitHub's shape onto the canonical profile. The
// display name splits on whitespace: first token, remainder joined.
func normalizeGitHub(raw githubUser, tok *oauth2.Token) auth.OAuthProfile {
	parts := strings.Fields(raw.Name)
	first, last := "", ""
	if len(parts) > 0 {
		first = parts[0]
		last = strings.Join(parts[1:], " ")
	}

	return auth.OAuthProfile{
		Provider:     auth.ProviderGithub,
		ExternalID:   strconv.FormatInt(raw.ID, 10),
		Email:        raw.Email,
		FirstName:    first,
		LastName:     last,
		Avatar:       raw.AvatarURL,
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken(tok),
	}
}
