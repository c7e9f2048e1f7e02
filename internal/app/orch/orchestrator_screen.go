package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/rs/zerolog/log"
)

// ToggleScreenShare starts the screen-share identity or stops the running one.
func (o *Orchestrator) ToggleScreenShare(ctx context.Context) (sharing bool, err error) {
	o.mu.Lock()
	conn := o.conn
	name, roomID := o.session.DisplayName, o.session.RoomID
	o.mu.Unlock()
	if conn == nil {
		return false, core.ErrNotJoined
	}
	if conn.producers.ScreenSharing() {
		o.stopScreenShare()
		return false, nil
	}

	screen, err := o.deps.Devices.GetDisplayMedia(ctx)
	if err != nil {
		if !errors.Is(err, core.ErrDeviceAcquisitionFailed) {
			err = fmt.Errorf("%w: %w", core.ErrDeviceAcquisitionFailed, err)
		}
		log.Warn().Err(err).Str("module", "orch").Msg("screen capture unavailable")
		return false, err
	}

	// The capture can end while the secondary identity is still joining. Such
	// an end is replayed once the share is up; a failed start ignores it.
	var (
		endMu          sync.Mutex
		started, ended bool
	)
	for _, t := range screen.Tracks() {
		t.OnEnded(func(error) {
			endMu.Lock()
			ended = true
			live := started
			endMu.Unlock()
			if live {
				log.Info().Str("module", "orch").Msg("screen capture ended by the user")
				o.stopScreenShare()
			}
		})
	}

	share, err := conn.producers.StartScreenShare(ctx, name, roomID, screen)
	if err != nil {
		return false, err
	}

	o.mu.Lock()
	if o.conn != conn {
		o.mu.Unlock()
		conn.producers.StopScreenShare()
		return false, core.ErrClosed
	}
	o.session.ScreenSharing = true
	o.screenID = share.ParticipantID()
	o.screenName = share.Name()
	o.mu.Unlock()

	endMu.Lock()
	started = true
	endedEarly := ended
	endMu.Unlock()
	if endedEarly {
		log.Info().Str("module", "orch").Msg("screen capture ended while starting")
		o.stopScreenShare()
		return false, nil
	}

	o.reassign()
	return true, nil
}

func (o *Orchestrator) stopScreenShare() {
	o.mu.Lock()
	conn := o.conn
	o.mu.Unlock()
	if conn == nil || !conn.producers.StopScreenShare() {
		return
	}
	o.mu.Lock()
	o.session.ScreenSharing = false
	o.mu.Unlock()
}
