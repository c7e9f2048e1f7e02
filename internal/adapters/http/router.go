package http

import (
	"context"

	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/config"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Controller is the call surface the control API drives.
type Controller interface {
	State() orch.State
	Assignments() []core.StreamAssignment
	Join(ctx context.Context, name string, roomID domain.RoomID, micOn, videoOn bool) error
	ToggleAudio() (bool, error)
	ToggleVideo() (bool, error)
	ToggleScreenShare(ctx context.Context) (bool, error)
	Pin(pid domain.ParticipantID) []core.StreamAssignment
	Unpin() []core.StreamAssignment
	RefreshStreams() []core.StreamAssignment
	HangUp()
}

func SetupRouter(cfg *config.Config, ctl Controller, pres *SlotPresenter) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	h := &handlers{ctl: ctl, pres: pres, cfg: cfg}

	api := r.Group("/api")
	api.GET("/state", h.state)
	api.GET("/streams", h.streams)
	api.POST("/streams/refresh", h.refresh)
	api.POST("/slots/:slot/mute", h.muteSlot)
	api.POST("/join", h.join)
	api.POST("/audio/toggle", h.toggleAudio)
	api.POST("/video/toggle", h.toggleVideo)
	api.POST("/screen/toggle", h.toggleScreen)
	api.POST("/pin", h.pin)
	api.DELETE("/pin", h.unpin)
	api.POST("/hangup", h.hangUp)

	log.Info().Str("module", "adapters.http").Int("routes", len(r.Routes())).Msg("router setup")
	return r
}
