package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/hostflow/internal/waitlist"
	"github.com/gin-gonic/gin"
)

const (
	defaultAnalyticsDays = 30
	maxAnalyticsDays     = 365
)

type joinRequest struct {
	Name  string `json:"name"`
	Size  int    `json:"size"`
	Phone string `json:"phone"`
}

type createPartyRequest struct {
	Name  string `json:"name"`
	Size  int    `json:"size"`
	Phone string `json:"phone"`
	Notes string `json:"notes"`
}

type updatePartyRequest struct {
	Size    int     `json:"size"`
	Notes   *string `json:"notes"`
	Version int64   `json:"version"`
}

type transitionRequest struct {
	Status string `json:"status"`
}

func (h *httpHandler) handleGuestJoin(c *gin.Context) {
	var request joinRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	ctx := c.Request.Context()
	slug := c.Param("slug")
	party, err := h.waitlist.CreateParty(ctx, waitlist.CreatePartyInput{
		Slug:  slug,
		Name:  request.Name,
		Size:  request.Size,
		Phone: request.Phone,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	parties, err := h.waitlist.ListParties(ctx, party.RestaurantSlug)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	view, ok := waitlist.NewProjection(party.RestaurantSlug, parties).PartyStatus(party.ID, h.waitlist.Now())
	if !ok {
		// Removed by a host between the write and the read.
		c.JSON(http.StatusCreated, newGuestStatusPayload(waitlist.PartyView{Party: party, GeneratedAt: h.waitlist.Now()}))
		return
	}
	c.JSON(http.StatusCreated, newGuestStatusPayload(view))
}

func (h *httpHandler) handleQueueSummary(c *gin.Context) {
	slug := c.Param("slug")
	parties, err := h.waitlist.ListParties(c.Request.Context(), slug)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	projection := waitlist.NewProjection(strings.ToLower(strings.TrimSpace(slug)), parties)
	c.JSON(http.StatusOK, newQueueSummaryPayload(projection.Summary(h.waitlist.Now())))
}

func (h *httpHandler) handleGuestStatus(c *gin.Context) {
	view, err := h.guestView(c)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newGuestStatusPayload(view))
}

func (h *httpHandler) guestView(c *gin.Context) (waitlist.PartyView, error) {
	ctx := c.Request.Context()
	party, err := h.waitlist.GetParty(ctx, c.Param("slug"), c.Param("id"))
	if err != nil {
		return waitlist.PartyView{}, err
	}
	parties, err := h.waitlist.ListParties(ctx, party.RestaurantSlug)
	if err != nil {
		return waitlist.PartyView{}, err
	}
	view, ok := waitlist.NewProjection(party.RestaurantSlug, parties).PartyStatus(party.ID, h.waitlist.Now())
	if !ok {
		return waitlist.PartyView{}, waitlist.ErrPartyNotFound
	}
	return view, nil
}

func (h *httpHandler) handleListParties(c *gin.Context) {
	slug := c.Param("slug")
	parties, err := h.waitlist.ListParties(c.Request.Context(), slug)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	projection := waitlist.NewProjection(strings.ToLower(strings.TrimSpace(slug)), parties)
	c.JSON(http.StatusOK, newBoardPayload(projection.Board(h.waitlist.Now())))
}

func (h *httpHandler) handleCreateParty(c *gin.Context) {
	var request createPartyRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	party, err := h.waitlist.CreateParty(c.Request.Context(), waitlist.CreatePartyInput{
		Slug:  c.Param("slug"),
		Name:  request.Name,
		Size:  request.Size,
		Phone: request.Phone,
		Notes: request.Notes,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newPartyPayload(party))
}

func (h *httpHandler) handleUpdateParty(c *gin.Context) {
	var request updatePartyRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	party, err := h.waitlist.UpdateParty(c.Request.Context(), c.Param("slug"), c.Param("id"), waitlist.UpdatePartyInput{
		Size:            request.Size,
		Notes:           request.Notes,
		ExpectedVersion: request.Version,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPartyPayload(party))
}

func (h *httpHandler) handleTransitionParty(c *gin.Context) {
	var request transitionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	target, err := waitlist.ParseStatus(request.Status)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	party, err := h.waitlist.TransitionParty(c.Request.Context(), c.Param("slug"), c.Param("id"), target)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPartyPayload(party))
}

func (h *httpHandler) handleDeleteParty(c *gin.Context) {
	if err := h.waitlist.DeleteParty(c.Request.Context(), c.Param("slug"), c.Param("id")); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleAnalytics(c *gin.Context) {
	days := defaultAnalyticsDays
	if raw := strings.TrimSpace(c.Query("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxAnalyticsDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		days = parsed
	}
	kpis, err := h.waitlist.Analytics(c.Request.Context(), c.Param("slug"), days, h.location)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAnalyticsPayload(kpis))
}
