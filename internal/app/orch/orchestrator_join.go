package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// Join enters roomID under name, consumes whatever is already published and
// publishes the local feed. It is a no-op while joining or joined.
func (o *Orchestrator) Join(ctx context.Context, name string, roomID domain.RoomID, micOn, videoOn bool) error {
	logger := log.With().Str("module", "orch").Str("room", string(roomID)).Str("name", name).Logger()
	if domain.ValidateDisplayName(name) != nil || roomID == "" {
		return ErrBadJoinRequest
	}

	o.mu.Lock()
	if o.session.Phase != domain.PhaseIdle {
		phase := o.session.Phase
		o.mu.Unlock()
		logger.Debug().Str("phase", string(phase)).Msg("join ignored")
		return nil
	}
	o.session.Phase = domain.PhaseJoining
	o.session.DisplayName = name
	o.session.RoomID = roomID
	gen := o.gen
	o.mu.Unlock()

	jctx, cancel := context.WithTimeout(ctx, o.opts.JoinTimeout)
	conn, reply, err := o.connect(jctx, name, roomID)
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("join failed")
		o.mu.Lock()
		if o.gen == gen {
			o.session = domain.NewSession()
		}
		o.mu.Unlock()
		return fmt.Errorf("join %s: %w", roomID, err)
	}

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		// Hung up while joining; the server already counts us in.
		conn.close(true)
		return core.ErrClosed
	}
	o.conn = conn
	o.session.Phase = domain.PhaseJoined
	o.session.ParticipantID = reply.ParticipantID
	o.consuming++
	o.mu.Unlock()

	conn.room.Replace(reply.Snapshot())
	go o.run(conn)
	logger.Info().Str("participant", string(reply.ParticipantID)).Int("participants", len(reply.Participants)).Msg("joined")

	var (
		wg      conc.WaitGroup
		feedErr error
	)
	wg.Go(func() {
		o.consume(conn, reply.Announcement(), true)
	})
	wg.Go(func() {
		if feedErr = o.EnableFeed(conn.ctx, micOn, videoOn); feedErr != nil {
			return
		}
		feedErr = o.SendFeed(conn.ctx)
	})
	wg.Wait()

	if feedErr != nil {
		logger.Warn().Err(feedErr).Msg("joined without local media")
	}
	return feedErr
}

func (o *Orchestrator) connect(ctx context.Context, name string, roomID domain.RoomID) (_ *connection, _ core.JoinReply, err error) {
	var reply core.JoinReply
	sig, err := o.deps.Dialer.Dial(ctx)
	if err != nil {
		return nil, reply, fmt.Errorf("dial: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sig.Close()
		}
	}()

	raw, err := sig.Request(ctx, core.ReqJoinRoom, core.JoinRequest{Name: name, RoomID: roomID})
	if err != nil {
		return nil, reply, err
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, reply, fmt.Errorf("%w: join reply: %v", core.ErrSignalingRejected, err)
	}

	dev, err := o.deps.NewDevice()
	if err != nil {
		return nil, reply, fmt.Errorf("media device: %w", err)
	}
	neg := app.NewNegotiator(dev)
	if err := neg.Load(reply.Capabilities); err != nil {
		return nil, reply, err
	}

	cctx, cancel := context.WithCancel(o.ctx)
	tm := app.NewTransportManager(sig, dev)
	conn := &connection{
		ctx:    cctx,
		cancel: cancel,
		sig:    sig,
		neg:    neg,
		tm:     tm,
		producers: app.NewProducerRegistry(tm, neg, app.ScreenShareOptions{
			Dialer:    o.deps.Dialer,
			NewDevice: o.deps.NewDevice,
			Suffix:    o.opts.ScreenShareSuffix,
		}),
		consumers: app.NewConsumerRegistry(cctx, sig, neg, tm),
		room:      app.NewRoomState(),
	}
	return conn, reply, nil
}

// close releases every resource of the connection. The local tracks are not
// owned here.
func (c *connection) close(notify bool) {
	c.producers.Cleanup()
	c.consumers.Cleanup()
	c.tm.Close()
	c.cancel()
	c.wait()
	if notify {
		if err := c.sig.Emit(core.EmitLeaveRoom, nil); err != nil {
			log.Warn().Err(err).Str("module", "orch").Msg("leaveRoom emit failed")
		}
	}
	_ = c.sig.Close()
}
