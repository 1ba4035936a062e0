package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/craterlabs/guildvote/internal/voting"
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleAdminListVotes(c *gin.Context) {
	period := h.votes.CurrentPeriod()
	c.JSON(http.StatusOK, gin.H{
		"month":   period,
		"votes":   h.votes.PeriodRecords(period),
		"results": h.votes.Results().Results,
	})
}

func (h *httpHandler) handleAdminRemoveVote(c *gin.Context) {
	voteID := c.Param("voteId")
	if err := h.votes.AdminRemove(c.Request.Context(), voteID); err != nil {
		h.respondDomainError(c, err)
		return
	}

	period := h.votes.CurrentPeriod()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Vote removed successfully",
		"votes":   h.votes.PeriodRecords(period),
		"results": h.votes.Results().Results,
	})
}

func (h *httpHandler) handleAdminClearVotes(c *gin.Context) {
	if err := h.votes.ClearCurrent(c.Request.Context()); err != nil {
		h.respondDomainError(c, err)
		return
	}

	period := h.votes.CurrentPeriod()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "All votes cleared for current month",
		"votes":   h.votes.PeriodRecords(period),
		"results": h.votes.Results().Results,
	})
}

func (h *httpHandler) handleAdminVotingStatus(c *gin.Context) {
	settings := h.votes.SettingsSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"votingEnabled": settings.VotingEnabled,
		"votingPeriod":  settings.VotingPeriod,
	})
}

type votingStatusPayload struct {
	Enabled *bool `json:"enabled"`
}

func (h *httpHandler) handleAdminSetVotingStatus(c *gin.Context) {
	var payload votingStatusPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled must be a boolean"})
		return
	}

	status, err := h.votes.SetVotingEnabled(c.Request.Context(), *payload.Enabled)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	message := "Voting has been disabled"
	if status.VotingEnabled {
		message = "Voting has been enabled"
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"votingEnabled": status.VotingEnabled,
		"votingPeriod":  status.VotingPeriod,
		"message":       message,
	})
}

func (h *httpHandler) handleAdminGetSettings(c *gin.Context) {
	settings := h.votes.SettingsSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"votesPerUser":         settings.VotesPerUser,
		"distributionAmount":   settings.DistributionAmount,
		"distributionCurrency": settings.DistributionCurrency,
		"disabledProjects":     settings.DisabledProjects,
	})
}

type adminSettingsPayload struct {
	VotesPerUser         *int            `json:"votesPerUser"`
	DistributionAmount   json.RawMessage `json:"distributionAmount"`
	DistributionCurrency *string         `json:"distributionCurrency"`
}

func (h *httpHandler) handleAdminUpdateSettings(c *gin.Context) {
	var payload adminSettingsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	update := voting.SettingsUpdate{
		VotesPerUser:         payload.VotesPerUser,
		DistributionCurrency: payload.DistributionCurrency,
	}

	amount, set, err := parseDistributionAmount(payload.DistributionAmount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Distribution amount must be a positive number"})
		return
	}
	update.DistributionAmount = amount
	update.DistributionAmountSet = set

	settings, err := h.votes.UpdateSettings(c.Request.Context(), update)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":              true,
		"votesPerUser":         settings.VotesPerUser,
		"distributionAmount":   settings.DistributionAmount,
		"distributionCurrency": settings.DistributionCurrency,
	})
}

// parseDistributionAmount accepts a number, a numeric string, null, or the
// empty string (the latter two clear the amount). An absent field reports
// set=false and touches nothing.
func parseDistributionAmount(raw json.RawMessage) (*float64, bool, error) {
	if len(raw) == 0 {
		return nil, false, nil
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" || trimmed == `""` {
		return nil, true, nil
	}

	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, true, err
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil, true, err
		}
		value = parsed
	}
	return &value, true, nil
}

func (h *httpHandler) handleAdminDisableProject(c *gin.Context) {
	disabled, err := h.votes.DisableProject(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"disabledProjects": disabled,
	})
}

func (h *httpHandler) handleAdminEnableProject(c *gin.Context) {
	enabled, err := h.votes.EnableProject(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"disabledProjects": enabled,
	})
}
