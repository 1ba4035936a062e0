package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func minimalViper() *viper.Viper {
	configViper := NewViper()
	configViper.Set("session.signing_secret", "secret")
	configViper.Set("discord.client_id", "client-id")
	configViper.Set("discord.client_secret", "client-secret")
	return configViper
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(minimalViper())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTPAddress != "0.0.0.0:4000" {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.StorePath != "votes.json" || cfg.StaticDir != "public" {
		t.Fatalf("unexpected paths: %+v", cfg)
	}
	if cfg.SessionCookieName != "guildvote_session" {
		t.Fatalf("unexpected cookie name %q", cfg.SessionCookieName)
	}
	if cfg.SessionTTL != 7*24*time.Hour {
		t.Fatalf("unexpected session ttl %v", cfg.SessionTTL)
	}
	if cfg.SecureCookies {
		t.Fatalf("secure cookies should default off")
	}
}

func TestLoadDerivesRedirectURLFromAddress(t *testing.T) {
	vp := minimalViper()
	vp.Set("http.address", "0.0.0.0:8123")
	cfg, err := Load(vp)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DiscordRedirectURL != "http://localhost:8123/auth/discord/callback" {
		t.Fatalf("unexpected derived redirect url %q", cfg.DiscordRedirectURL)
	}

	vp.Set("discord.redirect_url", "https://vote.example.com/auth/discord/callback")
	cfg, err = Load(vp)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DiscordRedirectURL != "https://vote.example.com/auth/discord/callback" {
		t.Fatalf("explicit redirect url must win: %q", cfg.DiscordRedirectURL)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name    string
		unset   string
		wantErr string
	}{
		{name: "missing signing secret", unset: "session.signing_secret", wantErr: "session.signing_secret"},
		{name: "missing client id", unset: "discord.client_id", wantErr: "discord.client_id"},
		{name: "missing client secret", unset: "discord.client_secret", wantErr: "discord.client_secret"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			vp := minimalViper()
			vp.Set(tc.unset, "")
			if _, err := Load(vp); err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tc.wantErr, err)
			}
		})
	}

	vp := minimalViper()
	vp.Set("session.ttl_minutes", 0)
	if _, err := Load(vp); err == nil || !strings.Contains(err.Error(), "ttl_minutes") {
		t.Fatalf("expected ttl validation error, got %v", err)
	}
}
