package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/huddle/internal/adapters/devices"
	router "github.com/dkeye/huddle/internal/adapters/http"
	"github.com/dkeye/huddle/internal/adapters/rtc"
	sig "github.com/dkeye/huddle/internal/adapters/signal"
	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/config"
	"github.com/dkeye/huddle/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setLevel(cfg.LogLevel)
	cfg.Watch(func(next *config.Config) {
		setLevel(next.LogLevel)
	})

	media, err := devices.New(devices.Options{Width: cfg.VideoWidth, Height: cfg.VideoHeight})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up media devices")
	}

	presenter := router.NewSlotPresenter()
	o := orch.New(ctx, orch.Deps{
		Dialer: sig.NewDialer(sig.Options{
			URL:            cfg.SignalURL,
			ReadLimit:      cfg.ReadLimit,
			PingPeriod:     cfg.PingPeriod,
			RequestTimeout: cfg.RequestTimeout,
		}),
		NewDevice: rtc.Factory(rtc.Options{ICEServers: cfg.ICEServers}),
		Devices:   media,
		Presenter: presenter,
		Policy:    app.SlotPolicy{Slots: cfg.DisplaySlots},
	}, orch.Options{
		JoinTimeout:       cfg.JoinTimeout,
		SpeakerDebounce:   cfg.SpeakerDebounce,
		ScreenShareSuffix: cfg.ScreenShareSuffix,
		VideoWidth:        cfg.VideoWidth,
		VideoHeight:       cfg.VideoHeight,
	})

	r := router.SetupRouter(cfg, o, presenter)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("control API started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
	}()

	if cfg.Name != "" && cfg.Room != "" {
		go func() {
			if err := o.Join(ctx, cfg.Name, domain.RoomID(cfg.Room), cfg.AudioEnabled, cfg.VideoEnabled); err != nil {
				log.Error().Err(err).Str("room", cfg.Room).Msg("auto-join failed")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	o.HangUp()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Client exited gracefully")
}

func setLevel(s string) {
	level, err := zerolog.ParseLevel(s)
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("level", s).Msg("unknown log level, keeping current")
		return
	}
	zerolog.SetGlobalLevel(level)
}
