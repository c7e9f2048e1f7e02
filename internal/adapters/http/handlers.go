package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/config"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type JoinRequest struct {
	Name   string `json:"name" binding:"required,max=64"`
	RoomID string `json:"roomId" binding:"required"`
	Mic    *bool  `json:"mic"`
	Video  *bool  `json:"video"`
}

type PinRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
}

type SlotMuteRequest struct {
	Kind  string `json:"kind" binding:"required,oneof=audio video"`
	Muted *bool  `json:"muted" binding:"required"`
}

type StreamsResponse struct {
	Slots   []SlotView   `json:"slots"`
	Preview *PreviewView `json:"preview,omitempty"`
}

type handlers struct {
	ctl  Controller
	pres *SlotPresenter
	cfg  *config.Config
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, orch.ErrBadJoinRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotJoined),
		errors.Is(err, core.ErrNoLocalMedia),
		errors.Is(err, core.ErrClosed),
		errors.Is(err, app.ErrScreenShareActive):
		return http.StatusConflict
	case errors.Is(err, core.ErrSignalingTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrSignalingRejected),
		errors.Is(err, core.ErrInvalidCapabilities),
		errors.Is(err, core.ErrTransportConnectFailed),
		errors.Is(err, core.ErrProduceFailed):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrDeviceAcquisitionFailed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func (h *handlers) state(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctl.State())
}

func (h *handlers) streams(c *gin.Context) {
	c.JSON(http.StatusOK, StreamsResponse{Slots: h.pres.Slots(), Preview: h.pres.Preview()})
}

func (h *handlers) refresh(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"assignments": nonNil(h.ctl.RefreshStreams())})
}

func (h *handlers) join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid name or roomId"})
		return
	}
	mic := lo.FromPtrOr(req.Mic, h.cfg.AudioEnabled)
	video := lo.FromPtrOr(req.Video, h.cfg.VideoEnabled)

	err := h.ctl.Join(c.Request.Context(), req.Name, domain.RoomID(req.RoomID), mic, video)
	st := h.ctl.State()
	if err != nil && st.Session.Phase == domain.PhaseIdle {
		fail(c, err)
		return
	}
	resp := gin.H{"state": st}
	if err != nil {
		// Joined, but without local media.
		resp["warning"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) toggleAudio(c *gin.Context) {
	enabled, err := h.ctl.ToggleAudio()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audioEnabled": enabled})
}

func (h *handlers) toggleVideo(c *gin.Context) {
	enabled, err := h.ctl.ToggleVideo()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"videoEnabled": enabled})
}

func (h *handlers) toggleScreen(c *gin.Context) {
	sharing, err := h.ctl.ToggleScreenShare(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"screenSharing": sharing})
}

func (h *handlers) muteSlot(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("slot"))
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slot"})
		return
	}
	var req SlotMuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be audio or video and muted is required"})
		return
	}
	if !h.pres.MuteSlot(n, domain.MediaKind(req.Kind), *req.Muted) {
		c.JSON(http.StatusNotFound, gin.H{"error": "slot not presented"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"slot": n, "kind": req.Kind, "muted": *req.Muted})
}

func (h *handlers) pin(c *gin.Context) {
	var req PinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing participantId"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": nonNil(h.ctl.Pin(domain.ParticipantID(req.ParticipantID)))})
}

func (h *handlers) unpin(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"assignments": nonNil(h.ctl.Unpin())})
}

func (h *handlers) hangUp(c *gin.Context) {
	h.ctl.HangUp()
	c.JSON(http.StatusOK, gin.H{"state": h.ctl.State()})
}

func nonNil(a []core.StreamAssignment) []core.StreamAssignment {
	if a == nil {
		return []core.StreamAssignment{}
	}
	return a
}
