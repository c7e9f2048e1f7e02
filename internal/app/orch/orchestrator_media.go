package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// EnableFeed acquires camera and microphone once. Later calls are no-ops while
// a local stream exists or is being acquired.
func (o *Orchestrator) EnableFeed(ctx context.Context, micOn, videoOn bool) error {
	o.mu.Lock()
	if o.local != nil || o.acquiring {
		o.mu.Unlock()
		return nil
	}
	o.acquiring = true
	gen := o.gen
	o.mu.Unlock()

	raw, err := o.deps.Devices.GetUserMedia(ctx, core.MediaConstraints{
		Audio:  true,
		Video:  true,
		Width:  o.opts.VideoWidth,
		Height: o.opts.VideoHeight,
	})
	if err != nil {
		o.mu.Lock()
		o.acquiring = false
		o.mu.Unlock()
		if !errors.Is(err, core.ErrDeviceAcquisitionFailed) {
			err = fmt.Errorf("%w: %w", core.ErrDeviceAcquisitionFailed, err)
		}
		return err
	}

	local, procs := o.process(ctx, raw)
	if local.Audio != nil {
		local.Audio.SetEnabled(micOn)
	}
	if local.Video != nil {
		local.Video.SetEnabled(videoOn)
	}

	o.mu.Lock()
	o.acquiring = false
	if o.gen != gen {
		// Hung up while waiting for the devices.
		o.mu.Unlock()
		stopLocal(local, raw, procs)
		return core.ErrClosed
	}
	o.raw, o.local, o.processors = raw, local, procs
	o.session.AudioEnabled = micOn && local.Audio != nil
	o.session.VideoEnabled = videoOn && local.Video != nil
	if o.session.Phase == domain.PhaseJoined {
		o.session.Phase = domain.PhaseMediaEnabled
	}
	o.mu.Unlock()

	log.Info().Str("module", "orch").Bool("audio", micOn).Bool("video", videoOn).Int("processors", len(procs)).Msg("local feed enabled")
	o.deps.Presenter.ShowLocalPreview(local)
	return nil
}

// process runs raw through the configured pipelines. A failing pipeline is
// skipped and the previous tracks are kept.
func (o *Orchestrator) process(ctx context.Context, raw *core.LocalStream) (*core.LocalStream, []core.TrackProcessor) {
	cur := raw
	var procs []core.TrackProcessor
	for _, pl := range o.deps.Pipelines {
		logger := log.With().Str("module", "orch").Str("processor", pl.Config.Name).Logger()
		p, err := pl.Factory.CreateProcessor(cur, pl.Config)
		if err != nil {
			logger.Warn().Err(err).Msg("processor unavailable, using raw tracks")
			continue
		}
		if err := p.Start(ctx); err != nil {
			logger.Warn().Err(err).Msg("processor failed to start, using raw tracks")
			p.Stop()
			continue
		}
		out := p.ProcessedStream()
		if out == nil || len(out.Tracks()) == 0 {
			logger.Warn().Msg("processor produced no tracks, using raw tracks")
			p.Stop()
			continue
		}
		next := &core.LocalStream{ID: cur.ID, Audio: cur.Audio, Video: cur.Video}
		if out.Audio != nil {
			next.Audio = out.Audio
		}
		if out.Video != nil {
			next.Video = out.Video
		}
		cur = next
		procs = append(procs, p)
	}
	return cur, procs
}

func stopLocal(local, raw *core.LocalStream, procs []core.TrackProcessor) {
	for _, p := range procs {
		p.Stop()
	}
	if local != nil {
		local.Stop()
	}
	if raw != nil {
		raw.Stop()
	}
}

// SendFeed publishes the local stream. It needs a joined session and local media.
func (o *Orchestrator) SendFeed(ctx context.Context) error {
	o.mu.Lock()
	conn, local := o.conn, o.local
	o.mu.Unlock()
	if conn == nil || !conn.neg.Loaded() {
		return core.ErrNotJoined
	}
	if local == nil {
		return core.ErrNoLocalMedia
	}

	err := conn.producers.StartProducing(ctx, local)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("publish failed")
	}

	o.mu.Lock()
	if o.conn == conn && conn.producers.Count() > 0 {
		o.session.Phase = domain.PhaseMediaSent
	}
	o.mu.Unlock()
	return err
}

// ToggleAudio flips the microphone producer and mirrors it onto the local track.
func (o *Orchestrator) ToggleAudio() (enabled bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conn == nil {
		return false, core.ErrNotJoined
	}
	if o.local == nil || o.local.Audio == nil {
		return false, core.ErrNoLocalMedia
	}
	mute := o.session.AudioEnabled
	o.conn.producers.ToggleAudio(mute)
	o.local.Audio.SetEnabled(!mute)
	o.session.AudioEnabled = !mute

	action := core.AudioUnmute
	if mute {
		action = core.AudioMute
	}
	if err := o.conn.sig.Emit(core.EmitAudioChange, core.AudioChange{Action: action}); err != nil {
		log.Warn().Err(err).Str("module", "orch").Msg("audioChange emit failed")
	}
	return o.session.AudioEnabled, nil
}

// ToggleVideo flips the camera producer and mirrors it onto the local track.
func (o *Orchestrator) ToggleVideo() (enabled bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conn == nil {
		return false, core.ErrNotJoined
	}
	if o.local == nil || o.local.Video == nil {
		return false, core.ErrNoLocalMedia
	}
	disable := o.session.VideoEnabled
	o.conn.producers.ToggleVideo(disable)
	o.local.Video.SetEnabled(!disable)
	o.session.VideoEnabled = !disable
	return o.session.VideoEnabled, nil
}
