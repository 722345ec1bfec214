package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kushal2060/SpeakFutbol/backend/internal/admin"
	"github.com/kushal2060/SpeakFutbol/backend/internal/listing"
	"go.uber.org/zap"
)

type adminActionRequest struct {
	Action string `json:"action" binding:"required"`
	IDs    []uint `json:"ids" binding:"required,min=1"`
}

func (h *httpHandler) handleAdminDashboard(c *gin.Context) {
	dashboard, err := h.admin.Dashboard(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to build admin dashboard", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "admin_query_failed"})
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

func (h *httpHandler) handleAdminQuickStats(c *gin.Context) {
	stats, err := h.admin.QuickStats(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to build admin quick stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "admin_query_failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *httpHandler) handleAdminFilters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": h.admin.Models()})
}

func (h *httpHandler) handleAdminUsers(c *gin.Context) {
	query := c.Request.URL.Query()
	users, err := h.admin.Users(c.Request.Context(), listing.ParamsFromValues(query), listing.PageFromValues(query))
	if err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "admin_query_failed"})
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *httpHandler) handleAdminEvents(c *gin.Context) {
	query := c.Request.URL.Query()
	found, err := h.admin.Events(c.Request.Context(), listing.ParamsFromValues(query), listing.PageFromValues(query))
	if err != nil {
		h.logger.Error("failed to list events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "admin_query_failed"})
		return
	}
	c.JSON(http.StatusOK, found)
}

func (h *httpHandler) handleAdminAction(model string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request adminActionRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		result, err := h.admin.RunAction(c.Request.Context(), model, request.Action, request.IDs)
		switch {
		case errors.Is(err, admin.ErrUnknownAction), errors.Is(err, admin.ErrUnknownModel):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_action"})
			return
		case err != nil:
			h.logger.Error("admin action failed",
				zap.String("model", model),
				zap.String("action", request.Action),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "admin_action_failed"})
			return
		}
		if model == admin.ModelUsers {
			// cached accounts may carry stale active or staff flags
			h.tokenCache.Purge()
		}
		c.JSON(http.StatusOK, result)
	}
}
