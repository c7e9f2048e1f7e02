package http

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"
)

// meter is a display sink that only counts what it receives.
type meter struct {
	packets atomic.Uint64
	bytes   atomic.Uint64
	last    atomic.Int64
}

func (m *meter) WriteRTP(p *rtp.Packet) error {
	m.packets.Add(1)
	m.bytes.Add(uint64(len(p.Payload)))
	m.last.Store(time.Now().UnixMilli())
	return nil
}

type slot struct {
	a     core.StreamAssignment
	audio *meter
	video *meter

	audioMuted bool
	videoMuted bool
}

type SlotView struct {
	core.StreamAssignment
	HasAudio     bool   `json:"hasAudio"`
	HasVideo     bool   `json:"hasVideo"`
	AudioPackets uint64 `json:"audioPackets"`
	VideoPackets uint64 `json:"videoPackets"`
	LastPacketMs int64  `json:"lastPacketMs,omitempty"`
	AudioMuted   bool   `json:"audioMuted"`
	VideoMuted   bool   `json:"videoMuted"`
}

type PreviewView struct {
	StreamID string `json:"streamId"`
	Audio    bool   `json:"audio"`
	Video    bool   `json:"video"`
}

// SlotPresenter is the headless presenter: each display slot is a metering
// sink attached to the assigned remote stream.
type SlotPresenter struct {
	mu      sync.Mutex
	slots   map[int]*slot
	preview *core.LocalStream
	version uint64
}

func NewSlotPresenter() *SlotPresenter {
	return &SlotPresenter{slots: make(map[int]*slot)}
}

func sinkID(n int) string { return fmt.Sprintf("slot-%d", n) }

func (p *SlotPresenter) Present(assignments []core.StreamAssignment) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := make(map[int]*slot, len(assignments))
	for _, a := range assignments {
		if old, ok := p.slots[a.Slot]; ok && old.a.AudioID == a.AudioID && old.a.Stream == a.Stream {
			old.a = a
			next[a.Slot] = old
			continue
		}
		s := &slot{a: a, audio: &meter{}, video: &meter{}}
		if a.Stream != nil {
			a.Stream.Attach(sinkID(a.Slot), s.audio, s.video)
		}
		next[a.Slot] = s
	}
	for n, old := range p.slots {
		if cur, ok := next[n]; ok && cur == old {
			continue
		}
		if old.a.Stream != nil {
			old.a.Stream.Detach(sinkID(n))
		}
	}
	p.slots = next
	p.version++
	log.Debug().Str("module", "adapters.http").Int("slots", len(next)).Uint64("version", p.version).Msg("presented")
}

// MuteSlot silences one kind of media in a single slot. The participant keeps
// streaming to every other slot. A new stream in the slot starts unmuted.
func (p *SlotPresenter) MuteSlot(n int, kind domain.MediaKind, muted bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[n]
	if !ok || s.a.Stream == nil || !s.a.Stream.MuteSink(sinkID(n), kind, muted) {
		return false
	}
	if kind.Base() == domain.KindAudio {
		s.audioMuted = muted
	} else {
		s.videoMuted = muted
	}
	p.version++
	log.Debug().Str("module", "adapters.http").Int("slot", n).Str("kind", string(kind)).Bool("muted", muted).Msg("slot mute")
	return true
}

func (p *SlotPresenter) ShowLocalPreview(s *core.LocalStream) {
	p.mu.Lock()
	p.preview = s
	p.mu.Unlock()
}

func (p *SlotPresenter) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for n, s := range p.slots {
		if s.a.Stream != nil {
			s.a.Stream.Detach(sinkID(n))
		}
	}
	p.slots = make(map[int]*slot)
	p.preview = nil
	p.version++
}

// Slots lists the presented slots in slot order.
func (p *SlotPresenter) Slots() []SlotView {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SlotView, 0, len(p.slots))
	for _, s := range p.slots {
		v := SlotView{
			StreamAssignment: s.a,
			AudioPackets:     s.audio.packets.Load(),
			VideoPackets:     s.video.packets.Load(),
			LastPacketMs:     max(s.audio.last.Load(), s.video.last.Load()),
			AudioMuted:       s.audioMuted,
			VideoMuted:       s.videoMuted,
		}
		if s.a.Stream != nil {
			v.HasAudio = s.a.Stream.HasAudio()
			v.HasVideo = s.a.Stream.HasVideo()
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

func (p *SlotPresenter) Preview() *PreviewView {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.preview == nil {
		return nil
	}
	return &PreviewView{
		StreamID: p.preview.ID,
		Audio:    p.preview.Audio != nil && p.preview.Audio.Enabled(),
		Video:    p.preview.Video != nil && p.preview.Video.Enabled(),
	}
}

func (p *SlotPresenter) Version() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}
