package http

import (
	"sync"
	"testing"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/core/coretest"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	id string

	mu       sync.Mutex
	attached map[string][2]core.Sink
	detached []string
	muted    map[string]bool
}

func newFakeStream(id string) *fakeStream {
	return &fakeStream{id: id, attached: make(map[string][2]core.Sink), muted: make(map[string]bool)}
}

func (s *fakeStream) ID() string     { return s.id }
func (s *fakeStream) HasAudio() bool { return true }
func (s *fakeStream) HasVideo() bool { return false }

func (s *fakeStream) Attach(sinkID string, audio, video core.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached[sinkID] = [2]core.Sink{audio, video}
}

func (s *fakeStream) Detach(sinkID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attached, sinkID)
	s.detached = append(s.detached, sinkID)
}

func (s *fakeStream) MuteSink(sinkID string, kind domain.MediaKind, muted bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attached[sinkID]; !ok {
		return false
	}
	s.muted[sinkID+"/"+string(kind)] = muted
	return true
}

func (s *fakeStream) sinks(sinkID string) ([2]core.Sink, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attached[sinkID]
	return v, ok
}

func TestPresentAttachesAndMeters(t *testing.T) {
	p := NewSlotPresenter()
	bob := newFakeStream("bob")

	p.Present([]core.StreamAssignment{{Slot: 0, ParticipantID: "bob", AudioID: "a-bob", Stream: bob}})
	sinks, ok := bob.sinks("slot-0")
	require.True(t, ok)

	require.NoError(t, sinks[0].WriteRTP(&rtp.Packet{Payload: []byte{1, 2, 3}}))
	require.NoError(t, sinks[0].WriteRTP(&rtp.Packet{Payload: []byte{4}}))

	slots := p.Slots()
	require.Len(t, slots, 1)
	assert.Equal(t, "a-bob", slots[0].AudioID)
	assert.True(t, slots[0].HasAudio)
	assert.False(t, slots[0].HasVideo)
	assert.Equal(t, uint64(2), slots[0].AudioPackets)
	assert.Zero(t, slots[0].VideoPackets)
	assert.Positive(t, slots[0].LastPacketMs)
	assert.Equal(t, uint64(1), p.Version())
}

func TestPresentDiffsSlots(t *testing.T) {
	p := NewSlotPresenter()
	bob, carol := newFakeStream("bob"), newFakeStream("carol")

	p.Present([]core.StreamAssignment{
		{Slot: 0, ParticipantID: "bob", AudioID: "a-bob", Stream: bob},
		{Slot: 1, ParticipantID: "carol", AudioID: "a-carol", Stream: carol},
	})
	sinks, _ := bob.sinks("slot-0")

	// Same stream in the same slot keeps its sink and counters.
	p.Present([]core.StreamAssignment{
		{Slot: 0, ParticipantID: "bob", AudioID: "a-bob", Speaking: true, Stream: bob},
		{Slot: 1, ParticipantID: "carol", AudioID: "a-carol", Stream: carol},
	})
	again, _ := bob.sinks("slot-0")
	assert.Same(t, sinks[0], again[0])
	assert.Empty(t, bob.detached)
	assert.True(t, p.Slots()[0].Speaking)

	// Swapping slots moves both streams.
	p.Present([]core.StreamAssignment{
		{Slot: 0, ParticipantID: "carol", AudioID: "a-carol", Stream: carol},
		{Slot: 1, ParticipantID: "bob", AudioID: "a-bob", Stream: bob},
	})
	_, ok := bob.sinks("slot-1")
	assert.True(t, ok)
	_, ok = bob.sinks("slot-0")
	assert.False(t, ok)
	_, ok = carol.sinks("slot-0")
	assert.True(t, ok)

	// Dropped slots are detached.
	p.Present(nil)
	assert.Empty(t, p.Slots())
	_, ok = carol.sinks("slot-0")
	assert.False(t, ok)
	assert.Contains(t, bob.detached, "slot-1")
}

func TestMuteSlot(t *testing.T) {
	p := NewSlotPresenter()
	bob := newFakeStream("bob")
	p.Present([]core.StreamAssignment{{Slot: 0, ParticipantID: "bob", AudioID: "a-bob", Stream: bob}})
	v := p.Version()

	assert.False(t, p.MuteSlot(3, domain.KindAudio, true))
	require.True(t, p.MuteSlot(0, domain.KindAudio, true))
	assert.True(t, bob.muted["slot-0/audio"])
	assert.True(t, p.Slots()[0].AudioMuted)
	assert.False(t, p.Slots()[0].VideoMuted)
	assert.Equal(t, v+1, p.Version())

	// Re-presenting the same stream keeps the slot and its mute.
	p.Present([]core.StreamAssignment{{Slot: 0, ParticipantID: "bob", AudioID: "a-bob", Speaking: true, Stream: bob}})
	assert.True(t, p.Slots()[0].AudioMuted)

	// A different stream in the slot starts unmuted.
	carol := newFakeStream("carol")
	p.Present([]core.StreamAssignment{{Slot: 0, ParticipantID: "carol", AudioID: "a-carol", Stream: carol}})
	assert.False(t, p.Slots()[0].AudioMuted)
}

func TestPreviewAndClear(t *testing.T) {
	p := NewSlotPresenter()
	assert.Nil(t, p.Preview())

	local := coretest.NewStream(true, true)
	local.Video.SetEnabled(false)
	p.ShowLocalPreview(local)
	assert.Equal(t, &PreviewView{StreamID: local.ID, Audio: true}, p.Preview())

	bob := newFakeStream("bob")
	p.Present([]core.StreamAssignment{{Slot: 0, AudioID: "a-bob", Stream: bob}})
	p.Clear()

	assert.Nil(t, p.Preview())
	assert.Empty(t, p.Slots())
	assert.Equal(t, []string{"slot-0"}, bob.detached)
}
