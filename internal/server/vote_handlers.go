package server

import (
	"net/http"

	"github.com/craterlabs/guildvote/internal/voting"
	"github.com/gin-gonic/gin"
)

type currentVotePayload struct {
	ProjectSlug string `json:"projectSlug"`
	ProjectName string `json:"projectName"`
	VoteCount   int    `json:"voteCount"`
}

// handleMe reports the viewer state: the settings snapshot for everyone, plus
// quota usage and current records when a session is present.
func (h *httpHandler) handleMe(c *gin.Context) {
	settings := h.votes.SettingsSnapshot()
	response := gin.H{
		"votingEnabled":        settings.VotingEnabled,
		"votingPeriod":         settings.VotingPeriod,
		"votesPerUser":         settings.VotesPerUser,
		"disabledProjects":     settings.DisabledProjects,
		"distributionAmount":   settings.DistributionAmount,
		"distributionCurrency": settings.DistributionCurrency,
	}

	identity, ok := currentIdentity(c)
	if !ok {
		response["authenticated"] = false
		c.JSON(http.StatusOK, response)
		return
	}

	status := h.votes.UserStatus(identity.UserID)
	currentVotes := make([]currentVotePayload, 0, len(status.Records))
	for _, record := range status.Records {
		currentVotes = append(currentVotes, currentVotePayload{
			ProjectSlug: record.ProjectSlug,
			ProjectName: record.ProjectName,
			VoteCount:   record.Weight,
		})
	}

	response["authenticated"] = true
	response["user"] = gin.H{
		"id":              identity.UserID,
		"username":        identity.Username,
		"discriminator":   identity.Discriminator,
		"avatar":          identity.AvatarRef,
		"isGuildMember":   identity.IsGuildMember,
		"hasRequiredRole": identity.HasRequiredRole,
		"isAdmin":         identity.IsAdmin,
	}
	response["hasVotedThisMonth"] = len(status.Records) > 0
	response["votesUsed"] = status.VotesUsed
	response["remainingVotes"] = status.RemainingVotes
	response["currentVotes"] = currentVotes
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handlePublicConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"guildId":        h.publicConfig.GuildID,
		"requiredRoleId": h.publicConfig.RequiredRoleID,
	})
}

func (h *httpHandler) handleCurrentResults(c *gin.Context) {
	snapshot := h.votes.Results()
	c.JSON(http.StatusOK, gin.H{
		"month":         snapshot.Period,
		"votingEnabled": snapshot.VotingEnabled,
		"results":       snapshot.Results,
	})
}

func (h *httpHandler) handleHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"history": h.votes.AllResults(),
	})
}

type castPayload struct {
	ProjectSlug string `json:"projectSlug"`
	ProjectName string `json:"projectName"`
	VoteCount   int    `json:"voteCount"`
}

func (h *httpHandler) handleCast(c *gin.Context) {
	identity, _ := currentIdentity(c)

	if !h.votes.SettingsSnapshot().VotingEnabled {
		c.JSON(http.StatusForbidden, gin.H{"error": "Voting is currently disabled"})
		return
	}

	var payload castPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Project slug and name are required"})
		return
	}
	if payload.ProjectSlug == "" || payload.ProjectName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Project slug and name are required"})
		return
	}
	weight := payload.VoteCount
	if weight == 0 {
		weight = 1
	}

	result, err := h.votes.Cast(c.Request.Context(), voting.CastRequest{
		UserID:      identity.UserID,
		Username:    identity.Username,
		AvatarRef:   identity.AvatarRef,
		ProjectSlug: payload.ProjectSlug,
		ProjectName: payload.ProjectName,
		Weight:      weight,
	})
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        "Vote recorded successfully",
		"remainingVotes": result.RemainingVotes,
		"results":        h.votes.Results().Results,
	})
}

type retractPayload struct {
	ProjectSlug string `json:"projectSlug"`
}

func (h *httpHandler) handleRetract(c *gin.Context) {
	identity, _ := currentIdentity(c)

	// The body is optional; without a project slug every vote for the active
	// period is retracted.
	var payload retractPayload
	_ = c.ShouldBindJSON(&payload)

	result, err := h.votes.Retract(c.Request.Context(), identity.UserID, payload.ProjectSlug)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        "Vote removed successfully",
		"remainingVotes": result.RemainingVotes,
		"results":        h.votes.Results().Results,
	})
}
