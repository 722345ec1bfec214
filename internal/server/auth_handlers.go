package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kushal2060/SpeakFutbol/backend/internal/accounts"
	"github.com/kushal2060/SpeakFutbol/backend/internal/identity"
	"go.uber.org/zap"
)

type googleLoginRequest struct {
	AccessToken string `json:"access_token"`
}

type googleLoginResponse struct {
	Token string           `json:"token"`
	User  accounts.Profile `json:"user"`
}

type profileUpdateRequest struct {
	FirstName *string  `json:"first_name"`
	LastName  *string  `json:"last_name"`
	Email     *string  `json:"email" binding:"omitempty,email"`
	Location  *string  `json:"location"`
	Latitude  *float64 `json:"latitude" binding:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" binding:"omitempty,gte=-180,lte=180"`
}

// loginFailure maps an exchange failure to its status and public error code.
func loginFailure(kind identity.Kind) (int, string) {
	switch kind {
	case identity.KindMissingCredential:
		return http.StatusBadRequest, "access_token_required"
	case identity.KindInvalidCredential:
		return http.StatusBadRequest, "invalid_access_token"
	case identity.KindIncompleteProfile:
		return http.StatusBadRequest, "incomplete_profile"
	default:
		return http.StatusInternalServerError, "login_failed"
	}
}

func (h *httpHandler) handleGoogleLogin(c *gin.Context) {
	var request googleLoginRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.metrics.recordLogin(loginOutcomeInvalid)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.identity.ExchangeProviderToken(c.Request.Context(), request.AccessToken)
	if err != nil {
		kind := identity.KindOf(err)
		h.metrics.recordLogin(string(kind))
		status, code := loginFailure(kind)
		if kind.IsClientError() {
			h.logger.Info("google login rejected", zap.String("kind", string(kind)))
		} else {
			h.logger.Error("google login failed", zap.String("kind", string(kind)), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": code})
		return
	}

	h.metrics.recordLogin(loginOutcomeSuccess)
	if result.UserCreated {
		h.metrics.usersCreated.Inc()
	}
	h.setSessionCookie(c, result.SessionToken, result.SessionExpiresAt)
	c.JSON(http.StatusOK, googleLoginResponse{Token: result.Token, User: result.User})
}

func (h *httpHandler) setSessionCookie(c *gin.Context, value string, expiresAt time.Time) {
	if value == "" {
		return
	}
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), value, maxAge, "/", "", h.secureCookies, true)
}

func (h *httpHandler) handleCurrentUser(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, accounts.ProfileOf(user))
}

func (h *httpHandler) handleUpdateCurrentUser(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var request profileUpdateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	updated, err := h.accounts.UpdateProfile(c.Request.Context(), user.ID, accounts.ProfileUpdate{
		FirstName: request.FirstName,
		LastName:  request.LastName,
		Email:     request.Email,
		Location:  request.Location,
		Latitude:  request.Latitude,
		Longitude: request.Longitude,
	})
	if err != nil {
		h.logger.Error("failed to update profile", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile_update_failed"})
		return
	}
	h.refreshCachedUser(c, updated)
	c.JSON(http.StatusOK, accounts.ProfileOf(updated))
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	key, err := h.accounts.RevokeToken(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to revoke token", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout_failed"})
		return
	}
	if key != "" {
		h.tokenCache.Remove(key)
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), "", -1, "/", "", h.secureCookies, true)
	c.Status(http.StatusNoContent)
}
