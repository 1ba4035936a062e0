package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	defaultAPIBaseURL     = "https://discord.com/api"
	defaultRequestTimeout = 10 * time.Second
)

var (
	errMissingClientID      = errors.New("discord client id required")
	errMissingClientSecret  = errors.New("discord client secret required")
	errMissingRedirectURL   = errors.New("discord redirect url required")
	errMissingAuthCode      = errors.New("authorization code must not be empty")
	ErrInvalidDiscordConfig = errors.New("auth: invalid discord client config")
)

// Identity is the authenticated caller as established by the Discord OAuth
// exchange and the guild membership lookup. The voting core trusts these
// fields as given and never talks to Discord itself.
type Identity struct {
	UserID          string
	Username        string
	Discriminator   string
	AvatarRef       string
	IsGuildMember   bool
	HasRequiredRole bool
	IsAdmin         bool
}

// DiscordClientConfig bundles configuration for the Discord OAuth client.
type DiscordClientConfig struct {
	ClientID       string
	ClientSecret   string
	BotToken       string
	GuildID        string
	RequiredRoleID string
	AdminRoleID    string
	RedirectURL    string

	// APIBaseURL overrides the Discord API root, used by tests.
	APIBaseURL string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// DiscordClient performs the authorization-code exchange and resolves guild
// membership and roles. All of its calls involve network latency and must
// happen outside the ledger's critical section.
type DiscordClient struct {
	oauth        *oauth2.Config
	botToken     string
	guildID      string
	requiredRole string
	adminRole    string
	baseURL      string
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewDiscordClient constructs a client with validated configuration.
func NewDiscordClient(cfg DiscordClientConfig) (*DiscordClient, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDiscordConfig, errMissingClientID)
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDiscordConfig, errMissingClientSecret)
	}
	if strings.TrimSpace(cfg.RedirectURL) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDiscordConfig, errMissingRedirectURL)
	}

	baseURL := strings.TrimRight(cfg.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DiscordClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"identify", "guilds"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   baseURL + "/oauth2/authorize",
				TokenURL:  baseURL + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		botToken:     cfg.BotToken,
		guildID:      cfg.GuildID,
		requiredRole: cfg.RequiredRoleID,
		adminRole:    cfg.AdminRoleID,
		baseURL:      baseURL,
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// AuthURL returns the Discord authorization URL carrying the given state.
func (c *DiscordClient) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

type discordUser struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	Avatar        string `json:"avatar"`
}

type discordMember struct {
	Roles []string `json:"roles"`
}

// Authenticate exchanges the authorization code, fetches the user's profile,
// and resolves guild membership with the bot token. A user outside the guild
// still authenticates, just with every privilege flag false, mirroring how
// the voting role gate treats strangers.
func (c *DiscordClient) Authenticate(ctx context.Context, code string) (Identity, error) {
	if strings.TrimSpace(code) == "" {
		return Identity{}, errMissingAuthCode
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("exchange authorization code: %w", err)
	}

	user, err := c.fetchUser(ctx, token.AccessToken)
	if err != nil {
		return Identity{}, err
	}

	identity := Identity{
		UserID:        user.ID,
		Username:      user.Username,
		Discriminator: user.Discriminator,
		AvatarRef:     user.Avatar,
	}

	member, ok, err := c.fetchMember(ctx, user.ID)
	if err != nil {
		// Membership resolution is best effort: a Discord hiccup should not
		// block login, it just leaves the caller without voting privileges.
		c.logger.Warn("guild membership lookup failed",
			zap.String("user_id", user.ID), zap.Error(err))
		return identity, nil
	}
	if ok {
		identity.IsGuildMember = true
		identity.HasRequiredRole = containsRole(member.Roles, c.requiredRole)
		identity.IsAdmin = containsRole(member.Roles, c.adminRole)
	}
	return identity, nil
}

func (c *DiscordClient) fetchUser(ctx context.Context, accessToken string) (discordUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/@me", nil)
	if err != nil {
		return discordUser{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return discordUser{}, fmt.Errorf("fetch discord user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return discordUser{}, fmt.Errorf("fetch discord user: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return discordUser{}, err
	}
	var user discordUser
	if err := json.Unmarshal(body, &user); err != nil {
		return discordUser{}, fmt.Errorf("decode discord user: %w", err)
	}
	if user.ID == "" {
		return discordUser{}, errors.New("discord user response missing id")
	}
	return user, nil
}

// fetchMember resolves the user's guild membership via the bot token. The
// second return is false when the user is not a member of the guild.
func (c *DiscordClient) fetchMember(ctx context.Context, userID string) (discordMember, bool, error) {
	if c.botToken == "" || c.guildID == "" {
		return discordMember{}, false, nil
	}

	url := fmt.Sprintf("%s/guilds/%s/members/%s", c.baseURL, c.guildID, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return discordMember{}, false, err
	}
	req.Header.Set("Authorization", "Bot "+c.botToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return discordMember{}, false, fmt.Errorf("fetch guild member: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return discordMember{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return discordMember{}, false, fmt.Errorf("fetch guild member: unexpected status %d", resp.StatusCode)
	}

	var member discordMember
	if err := json.NewDecoder(resp.Body).Decode(&member); err != nil {
		return discordMember{}, false, fmt.Errorf("decode guild member: %w", err)
	}
	return member, true, nil
}

func containsRole(roles []string, roleID string) bool {
	if roleID == "" {
		return false
	}
	for _, role := range roles {
		if role == roleID {
			return true
		}
	}
	return false
}
