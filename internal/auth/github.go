package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

// GitHubProvider implements the GitHub OAuth flow. GitHub issues no
// ID token: the adapter exchanges the code, then makes two API calls,
// since the user's email is not part of the profile endpoint.
type GitHubProvider struct {
	config   *oauth2.Config
	apiBase  string
	client   *http.Client
	resolver IdentityResolver
}

// NewGitHubProvider builds the adapter.
func NewGitHubProvider(clientID, clientSecret, redirectURL string, resolver IdentityResolver) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     githuboauth.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		apiBase:  "https://api.github.com",
		client:   &http.Client{Timeout: providerTimeout},
		resolver: resolver,
	}
}

// AuthorizationURL builds the consent URL. GitHub does not use PKCE.
func (g *GitHubProvider) AuthorizationURL(state, _ string) string {
	return g.config.AuthCodeURL(state)
}

type githubProfile struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// CreateSession exchanges the authorization code, fetches the profile
// and email list, and resolves the identity. An account without a
// primary email cannot sign in.
func (g *GitHubProvider) CreateSession(ctx context.Context, in ProviderInput) (SessionToken, error) {
	if in.IDToken != "" {
		return SessionToken{}, createSessionErrorf("github does not support token login")
	}

	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	token, err := g.config.Exchange(context.WithValue(ctx, oauth2.HTTPClient, g.client), in.Code)
	if err != nil {
		return SessionToken{}, createSessionErrorf("code exchange failed")
	}

	var profile githubProfile
	if err := g.getJSON(ctx, token.AccessToken, "/user", &profile); err != nil {
		return SessionToken{}, createSessionErrorf("profile fetch failed")
	}

	var emails []githubEmail
	if err := g.getJSON(ctx, token.AccessToken, "/user/emails", &emails); err != nil {
		return SessionToken{}, createSessionErrorf("email fetch failed")
	}

	var primary *githubEmail
	for i := range emails {
		if emails[i].Primary {
			primary = &emails[i]
			break
		}
	}
	if primary == nil {
		return SessionToken{}, createSessionErrorf("github account has no primary email")
	}

	name := profile.Name
	if name == "" {
		name = profile.Login
	}

	return g.resolver.ResolveIdentity(ctx, LinkInput{
		Identity: Identity{
			Provider:       ProviderGitHub,
			ProviderUserID: strconv.FormatInt(profile.ID, 10),
			Email:          primary.Email,
			EmailVerified:  primary.Verified,
			Name:           name,
			AvatarURL:      profile.AvatarURL,
		},
		SessionToken: in.SessionToken,
	})
}

func (g *GitHubProvider) getJSON(ctx context.Context, accessToken, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github api %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
