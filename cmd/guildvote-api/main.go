package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/craterlabs/guildvote/internal/auth"
	"github.com/craterlabs/guildvote/internal/config"
	"github.com/craterlabs/guildvote/internal/logging"
	"github.com/craterlabs/guildvote/internal/server"
	"github.com/craterlabs/guildvote/internal/voting"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "guildvote-api",
		Short: "Discord community project voting service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("store-path", defaults.GetString("store.path"), "Vote document path")
	cmd.PersistentFlags().String("static-dir", defaults.GetString("static.dir"), "Static assets directory")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("discord-client-id", defaults.GetString("discord.client_id"), "Discord OAuth client ID")
	cmd.PersistentFlags().String("discord-guild-id", defaults.GetString("discord.guild_id"), "Discord guild ID")
	cmd.PersistentFlags().String("discord-redirect-url", defaults.GetString("discord.redirect_url"), "Discord OAuth redirect URL")
	cmd.PersistentFlags().String("session-cookie-name", defaults.GetString("session.cookie_name"), "Session cookie name")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("session.ttl_minutes"), "Session TTL in minutes")
	cmd.PersistentFlags().Bool("secure-cookies", defaults.GetBool("session.secure_cookies"), "Mark cookies Secure (behind HTTPS)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "store.path", "store-path")
	bindFlag(cmd, "static.dir", "static-dir")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "discord.client_id", "discord-client-id")
	bindFlag(cmd, "discord.guild_id", "discord-guild-id")
	bindFlag(cmd, "discord.redirect_url", "discord-redirect-url")
	bindFlag(cmd, "session.cookie_name", "session-cookie-name")
	bindFlag(cmd, "session.ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "session.secure_cookies", "secure-cookies")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	// Secrets commonly live in a local .env during development; load it
	// before viper consults the environment.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	logStartupConfig(logger, appConfig)

	store, err := voting.NewFileStore(appConfig.StorePath, logger)
	if err != nil {
		return err
	}

	votingService, err := voting.NewService(voting.ServiceConfig{
		Store:      store,
		Clock:      time.Now,
		IDProvider: voting.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	discordClient, err := auth.NewDiscordClient(auth.DiscordClientConfig{
		ClientID:       appConfig.DiscordClientID,
		ClientSecret:   appConfig.DiscordClientSecret,
		BotToken:       appConfig.DiscordBotToken,
		GuildID:        appConfig.DiscordGuildID,
		RequiredRoleID: appConfig.DiscordRequiredRoleID,
		AdminRoleID:    appConfig.DiscordAdminRoleID,
		RedirectURL:    appConfig.DiscordRedirectURL,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	sessionManager, err := auth.NewSessionManager(auth.SessionManagerConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		Issuer:        "guildvote",
		CookieName:    appConfig.SessionCookieName,
		SessionTTL:    appConfig.SessionTTL,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Discord:       discordClient,
		Sessions:      sessionManager,
		Votes:         votingService,
		Logger:        logger,
		StaticDir:     appConfig.StaticDir,
		SecureCookies: appConfig.SecureCookies,
		PublicConfig: server.PublicConfig{
			GuildID:        appConfig.DiscordGuildID,
			RequiredRoleID: appConfig.DiscordRequiredRoleID,
		},
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// logStartupConfig summarizes which credentials are present without echoing
// their values.
func logStartupConfig(logger *zap.Logger, cfg config.AppConfig) {
	logger.Info("configuration loaded",
		zap.Bool("discord_client_id_set", cfg.DiscordClientID != ""),
		zap.Bool("discord_client_secret_set", cfg.DiscordClientSecret != ""),
		zap.Bool("discord_bot_token_set", cfg.DiscordBotToken != ""),
		zap.String("discord_guild_id", cfg.DiscordGuildID),
		zap.String("discord_required_role_id", cfg.DiscordRequiredRoleID),
		zap.String("redirect_url", cfg.DiscordRedirectURL),
		zap.String("store_path", cfg.StorePath))
}
