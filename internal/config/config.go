package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "GUILDVOTE"
	defaultHTTPAddress   = "0.0.0.0:4000"
	defaultStorePath     = "votes.json"
	defaultStaticDir     = "public"
	defaultLogLevel      = "info"
	defaultCookieName    = "guildvote_session"
	defaultSessionTTLMin = 7 * 24 * 60
)

// AppConfig captures runtime configuration for the voting API server.
type AppConfig struct {
	HTTPAddress string
	StorePath   string
	StaticDir   string
	LogLevel    string

	DiscordClientID       string
	DiscordClientSecret   string
	DiscordBotToken       string
	DiscordGuildID        string
	DiscordRequiredRoleID string
	DiscordAdminRoleID    string
	DiscordRedirectURL    string

	SessionSigningSecret string
	SessionCookieName    string
	SessionTTL           time.Duration
	SecureCookies        bool
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("store.path", defaultStorePath)
	configViper.SetDefault("static.dir", defaultStaticDir)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.ttl_minutes", defaultSessionTTLMin)
	configViper.SetDefault("session.secure_cookies", false)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress: configViper.GetString("http.address"),
		StorePath:   configViper.GetString("store.path"),
		StaticDir:   configViper.GetString("static.dir"),
		LogLevel:    configViper.GetString("log.level"),

		DiscordClientID:       configViper.GetString("discord.client_id"),
		DiscordClientSecret:   configViper.GetString("discord.client_secret"),
		DiscordBotToken:       configViper.GetString("discord.bot_token"),
		DiscordGuildID:        configViper.GetString("discord.guild_id"),
		DiscordRequiredRoleID: configViper.GetString("discord.required_role_id"),
		DiscordAdminRoleID:    configViper.GetString("discord.admin_role_id"),
		DiscordRedirectURL:    configViper.GetString("discord.redirect_url"),

		SessionSigningSecret: configViper.GetString("session.signing_secret"),
		SessionCookieName:    configViper.GetString("session.cookie_name"),
		SessionTTL:           time.Duration(configViper.GetInt("session.ttl_minutes")) * time.Minute,
		SecureCookies:        configViper.GetBool("session.secure_cookies"),
	}

	if cfg.DiscordRedirectURL == "" {
		cfg.DiscordRedirectURL = defaultRedirectURL(cfg.HTTPAddress)
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// defaultRedirectURL derives a local callback URL from the listen address for
// development setups that do not configure one explicitly.
func defaultRedirectURL(httpAddress string) string {
	port := "4000"
	if i := strings.LastIndex(httpAddress, ":"); i >= 0 && i+1 < len(httpAddress) {
		port = httpAddress[i+1:]
	}
	return fmt.Sprintf("http://localhost:%s/auth/discord/callback", port)
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.StorePath) == "" {
		return fmt.Errorf("store.path is required")
	}
	if strings.TrimSpace(c.DiscordClientID) == "" {
		return fmt.Errorf("discord.client_id is required")
	}
	if strings.TrimSpace(c.DiscordClientSecret) == "" {
		return fmt.Errorf("discord.client_secret is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl_minutes must be positive")
	}
	return nil
}
