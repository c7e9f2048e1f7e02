package rtc

import (
	"sync"
	"sync/atomic"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Producer pauses by detaching its track from the sender, so nothing is
// encoded or sent while paused.
type Producer struct {
	id      string
	kind    domain.MediaKind
	appData core.AppData
	sender  *webrtc.RTPSender
	track   webrtc.TrackLocal

	mu     sync.Mutex
	paused bool
	closed bool
}

func (p *Producer) ID() string             { return p.id }
func (p *Producer) Kind() domain.MediaKind { return p.kind }
func (p *Producer) AppData() core.AppData  { return p.appData }

func (p *Producer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Producer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused || p.closed {
		return
	}
	if err := p.sender.ReplaceTrack(nil); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Str("producer", p.id).Msg("pause")
		return
	}
	p.paused = true
}

func (p *Producer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused || p.closed {
		return
	}
	if err := p.sender.ReplaceTrack(p.track); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Str("producer", p.id).Msg("resume")
		return
	}
	p.paused = false
}

func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if err := p.sender.Stop(); err != nil {
		log.Debug().Err(err).Str("module", "rtc").Str("producer", p.id).Msg("sender stop")
	}
}

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Consumer wraps an RTPReceiver. Pause state mirrors the server side and
// only gates key frame requests locally.
type Consumer struct {
	params   core.ConsumerParams
	ssrc     uint32
	receiver *webrtc.RTPReceiver
	dtls     *webrtc.DTLSTransport

	paused atomic.Bool
	closed atomic.Bool
}

func (c *Consumer) ID() string             { return c.params.ID }
func (c *Consumer) ProducerID() string     { return c.params.ProducerID }
func (c *Consumer) Kind() domain.MediaKind { return c.params.Kind }
func (c *Consumer) Paused() bool           { return c.paused.Load() }
func (c *Consumer) Pause()                 { c.paused.Store(true) }
func (c *Consumer) Closed() bool           { return c.closed.Load() }

func (c *Consumer) Resume() {
	c.paused.Store(false)
}

func (c *Consumer) Track() core.RemoteTrack {
	if t := c.receiver.Track(); t != nil {
		return t
	}
	return nil
}

func (c *Consumer) RequestKeyFrame() error {
	if c.params.Kind.Base() != domain.KindVideo || c.Closed() {
		return nil
	}
	_, err := c.dtls.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: c.ssrc}})
	return err
}

func (c *Consumer) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if err := c.receiver.Stop(); err != nil {
		log.Debug().Err(err).Str("module", "rtc").Str("consumer", c.params.ID).Msg("receiver stop")
	}
}
