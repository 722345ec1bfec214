package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kushal2060/SpeakFutbol/backend/internal/events"
	"github.com/kushal2060/SpeakFutbol/backend/internal/listing"
	"go.uber.org/zap"
)

type eventListResponse struct {
	Results []events.View `json:"results"`
	Count   int64         `json:"count"`
	Page    listing.Page  `json:"page"`
}

type rosterStreamPayload struct {
	EventID          uint                `json:"event_id"`
	UserID           uint                `json:"user_id"`
	Action           events.RosterAction `json:"action"`
	ParticipantCount int64               `json:"participant_count"`
	OccurredAt       time.Time           `json:"occurred_at"`
	Source           string              `json:"source"`
}

// eventFailure maps event service errors to a status and public error code.
func eventFailure(err error) (int, string) {
	switch {
	case errors.Is(err, events.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, events.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, events.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, events.ErrEventInactive):
		return http.StatusBadRequest, "event_inactive"
	case errors.Is(err, events.ErrEventFull):
		return http.StatusBadRequest, "event_full"
	case errors.Is(err, events.ErrAlreadyParticipating):
		return http.StatusBadRequest, "already_participating"
	case errors.Is(err, events.ErrNotParticipating):
		return http.StatusBadRequest, "not_participating"
	default:
		return http.StatusInternalServerError, "event_operation_failed"
	}
}

func (h *httpHandler) respondEventError(c *gin.Context, err error) {
	status, code := eventFailure(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("event operation failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	body := gin.H{"error": code}
	if fields := events.FieldErrors(err); len(fields) > 0 {
		body["fields"] = fields
	}
	c.JSON(status, body)
}

func pathID(c *gin.Context, name string) (uint, bool) {
	parsed, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || parsed == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return 0, false
	}
	return uint(parsed), true
}

func actorOf(c *gin.Context) (events.Actor, bool) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return events.Actor{}, false
	}
	return events.Actor{UserID: user.ID, IsStaff: user.IsStaff}, true
}

func (h *httpHandler) handleListEvents(c *gin.Context) {
	query := c.Request.URL.Query()
	page, err := h.events.List(c.Request.Context(), listing.ParamsFromValues(query), listing.PageFromValues(query))
	if err != nil {
		h.respondEventError(c, err)
		return
	}
	c.JSON(http.StatusOK, eventListResponse{Results: page.Events, Count: page.Total, Page: page.Page})
}

func (h *httpHandler) handleCreateEvent(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	var input events.Input
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	view, err := h.events.Create(c.Request.Context(), actor.UserID, input)
	if err != nil {
		h.respondEventError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *httpHandler) handleGetEvent(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	view, err := h.events.Get(c.Request.Context(), eventID)
	if err != nil {
		h.respondEventError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *httpHandler) handleUpdateEvent(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input events.Input
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	view, err := h.events.Update(c.Request.Context(), actor, eventID, input)
	if err != nil {
		h.respondEventError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *httpHandler) handleDeleteEvent(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.events.Delete(c.Request.Context(), actor, eventID); err != nil {
		h.respondEventError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleParticipate(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	view, err := h.events.Participate(c.Request.Context(), eventID, actor.UserID)
	if err != nil {
		h.respondEventError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *httpHandler) handleLeave(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	view, err := h.events.Leave(c.Request.Context(), eventID, actor.UserID)
	if err != nil {
		h.respondEventError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *httpHandler) handleRemoveParticipant(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	view, err := h.events.RemoveParticipant(c.Request.Context(), actor, eventID, userID)
	if err != nil {
		h.respondEventError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// handleRosterStream emits roster changes of one event as server-sent events until the client disconnects.
func (h *httpHandler) handleRosterStream(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if _, err := h.events.Get(c.Request.Context(), eventID); err != nil {
		h.respondEventError(c, err)
		return
	}

	changes, cleanup := h.realtime.Subscribe(c.Request.Context(), eventID)
	defer cleanup()
	h.metrics.streamsOpen.Inc()
	defer h.metrics.streamsOpen.Dec()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case change, open := <-changes:
			if !open {
				return false
			}
			c.SSEvent(realtimeEventRoster, rosterStreamPayload{
				EventID:          change.EventID,
				UserID:           change.UserID,
				Action:           change.Action,
				ParticipantCount: change.ParticipantCount,
				OccurredAt:       change.OccurredAt,
				Source:           realtimeSourceBackend,
			})
			return true
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend})
			return true
		}
	})
}
