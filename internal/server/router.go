package server

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/craterlabs/guildvote/internal/auth"
	"github.com/craterlabs/guildvote/internal/voting"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	identityContextKey = "guildvote_identity"
	stateCookieSuffix  = "_oauth_state"
	stateCookieMaxAge  = 600
)

var (
	errMissingDiscordClient  = errors.New("discord authenticator dependency required")
	errMissingSessionManager = errors.New("session manager dependency required")
	errMissingVotingService  = errors.New("voting service dependency required")
)

// DiscordAuthenticator abstracts the Discord OAuth client for the router.
type DiscordAuthenticator interface {
	AuthURL(state string) string
	Authenticate(ctx context.Context, code string) (auth.Identity, error)
}

// SessionManager abstracts session and state token handling for the router.
type SessionManager interface {
	CookieName() string
	SessionTTL() time.Duration
	IssueSession(identity auth.Identity) (string, error)
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	IssueState() (string, error)
	ValidateState(token string) error
}

// PublicConfig is the subset of configuration exposed to the frontend.
type PublicConfig struct {
	GuildID        string
	RequiredRoleID string
}

// Dependencies wires the router's collaborators.
type Dependencies struct {
	Discord       DiscordAuthenticator
	Sessions      SessionManager
	Votes         *voting.Service
	Logger        *zap.Logger
	StaticDir     string
	SecureCookies bool
	PublicConfig  PublicConfig
}

// NewHTTPHandler builds the Gin handler serving the voting API, the OAuth
// flow, and the static pages.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Discord == nil {
		return nil, errMissingDiscordClient
	}
	if deps.Sessions == nil {
		return nil, errMissingSessionManager
	}
	if deps.Votes == nil {
		return nil, errMissingVotingService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		discord:       deps.Discord,
		sessions:      deps.Sessions,
		votes:         deps.Votes,
		logger:        logger,
		staticDir:     deps.StaticDir,
		secureCookies: deps.SecureCookies,
		publicConfig:  deps.PublicConfig,
	}

	router.Use(handler.loadSession)

	if deps.StaticDir != "" {
		router.GET("/", handler.serveIndex)
		router.NoRoute(gin.WrapH(http.FileServer(http.Dir(deps.StaticDir))))
	}
	router.GET("/admin", handler.requireAuth, handler.requireAdmin, handler.serveAdmin)

	router.GET("/auth/discord", handler.handleLogin)
	router.GET("/auth/discord/callback", handler.handleCallback)
	router.POST("/auth/logout", handler.handleLogout)

	api := router.Group("/api")
	{
		api.GET("/me", handler.handleMe)
		api.GET("/config", handler.handlePublicConfig)
		api.GET("/votes/current", handler.handleCurrentResults)
		api.GET("/votes/history", handler.handleHistory)

		voter := api.Group("/", handler.requireAuth, handler.requireRole)
		{
			voter.POST("/vote", handler.handleCast)
			voter.DELETE("/vote", handler.handleRetract)
		}

		admin := api.Group("/admin", handler.requireAuth, handler.requireAdmin)
		{
			admin.GET("/votes", handler.handleAdminListVotes)
			admin.DELETE("/votes", handler.handleAdminClearVotes)
			admin.DELETE("/votes/:voteId", handler.handleAdminRemoveVote)
			admin.GET("/voting-status", handler.handleAdminVotingStatus)
			admin.POST("/voting-status", handler.handleAdminSetVotingStatus)
			admin.GET("/settings", handler.handleAdminGetSettings)
			admin.POST("/settings", handler.handleAdminUpdateSettings)
			admin.POST("/projects/:slug/disable", handler.handleAdminDisableProject)
			admin.POST("/projects/:slug/enable", handler.handleAdminEnableProject)
		}
	}

	return router, nil
}

type httpHandler struct {
	discord       DiscordAuthenticator
	sessions      SessionManager
	votes         *voting.Service
	logger        *zap.Logger
	staticDir     string
	secureCookies bool
	publicConfig  PublicConfig
}

func (h *httpHandler) serveIndex(c *gin.Context) {
	c.File(filepath.Join(h.staticDir, "index.html"))
}

func (h *httpHandler) serveAdmin(c *gin.Context) {
	if h.staticDir == "" {
		c.Status(http.StatusNotFound)
		return
	}
	c.File(filepath.Join(h.staticDir, "admin.html"))
}

// loadSession attaches the caller's identity to the request context when a
// valid session cookie is present. Requests without one proceed anonymously.
func (h *httpHandler) loadSession(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err == nil {
		c.Set(identityContextKey, claims.Identity())
	}
	c.Next()
}

func currentIdentity(c *gin.Context) (auth.Identity, bool) {
	value, ok := c.Get(identityContextKey)
	if !ok {
		return auth.Identity{}, false
	}
	identity, ok := value.(auth.Identity)
	return identity, ok
}

func (h *httpHandler) requireAuth(c *gin.Context) {
	if _, ok := currentIdentity(c); !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	c.Next()
}

func (h *httpHandler) requireRole(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok || !identity.HasRequiredRole {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have the required role to vote"})
		return
	}
	c.Next()
}

func (h *httpHandler) requireAdmin(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok || !identity.IsAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return
	}
	c.Next()
}

// respondDomainError maps a voting domain failure to a 400 with its display
// message; anything else is an internal error.
func (h *httpHandler) respondDomainError(c *gin.Context, err error) {
	if voting.KindOf(err) != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.Error("voting operation failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
