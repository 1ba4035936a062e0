package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) stateCookieName() string {
	return h.sessions.CookieName() + stateCookieSuffix
}

// handleLogin starts the Discord OAuth flow: a short-lived signed state token
// goes into both the redirect URL and a cookie, pairing the callback with the
// browser that initiated it.
func (h *httpHandler) handleLogin(c *gin.Context) {
	state, err := h.sessions.IssueState()
	if err != nil {
		h.logger.Error("failed to issue oauth state", zap.Error(err))
		c.Redirect(http.StatusFound, "/?error=oauth_error")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.stateCookieName(), state, stateCookieMaxAge, "/", "", h.secureCookies, true)
	c.Redirect(http.StatusFound, h.discord.AuthURL(state))
}

// handleCallback completes the OAuth flow. The Discord network calls happen
// here, before any ledger access, so they never run inside the document lock.
func (h *httpHandler) handleCallback(c *gin.Context) {
	if c.Query("error") != "" {
		c.Redirect(http.StatusFound, "/?error=oauth_denied")
		return
	}
	code := c.Query("code")
	if code == "" {
		c.Redirect(http.StatusFound, "/?error=no_code")
		return
	}

	stateCookie, err := c.Cookie(h.stateCookieName())
	state := c.Query("state")
	if err != nil || state == "" || state != stateCookie || h.sessions.ValidateState(state) != nil {
		c.Redirect(http.StatusFound, "/?error=state_mismatch")
		return
	}
	// Single use.
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.stateCookieName(), "", -1, "/", "", h.secureCookies, true)

	identity, err := h.discord.Authenticate(c.Request.Context(), code)
	if err != nil {
		h.logger.Warn("discord authentication failed", zap.Error(err))
		c.Redirect(http.StatusFound, "/?error=oauth_error")
		return
	}

	session, err := h.sessions.IssueSession(identity)
	if err != nil {
		h.logger.Error("failed to issue session", zap.String("user_id", identity.UserID), zap.Error(err))
		c.Redirect(http.StatusFound, "/?error=oauth_error")
		return
	}

	maxAge := int(h.sessions.SessionTTL().Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), session, maxAge, "/", "", h.secureCookies, true)

	h.logger.Info("user logged in",
		zap.String("user_id", identity.UserID),
		zap.Bool("guild_member", identity.IsGuildMember),
		zap.Bool("has_required_role", identity.HasRequiredRole),
		zap.Bool("is_admin", identity.IsAdmin))
	c.Redirect(http.StatusFound, "/")
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), "", -1, "/", "", h.secureCookies, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
