package app

import (
	"testing"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/core/coretest"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiatorLoadIsIdempotent(t *testing.T) {
	dev := coretest.NewDevice()
	n := NewNegotiator(dev)

	require.NoError(t, n.Load(testCaps))
	require.NoError(t, n.Load(core.RTPCapabilities{}))

	assert.True(t, n.Loaded())
	assert.Equal(t, 1, dev.LoadCalls)
	assert.Equal(t, testCaps, n.Capabilities())
	assert.True(t, n.CanProduce(domain.KindAudio))
	assert.True(t, n.CanProduce(domain.KindScreenVideo))
}

func TestNegotiatorCanProduceFollowsCodecs(t *testing.T) {
	n := NewNegotiator(coretest.NewDevice())
	assert.False(t, n.CanProduce(domain.KindAudio), "nothing loaded yet")

	require.NoError(t, n.Load(audioOnlyCaps))
	assert.True(t, n.CanProduce(domain.KindAudio))
	assert.False(t, n.CanProduce(domain.KindVideo))
}

func TestNegotiatorRejectsMalformedCapabilities(t *testing.T) {
	cases := map[string]core.RTPCapabilities{
		"no codecs":     {},
		"no mime type":  {Codecs: []core.RTPCodecCapability{{Kind: "audio", ClockRate: 48000}}},
		"bad kind":      {Codecs: []core.RTPCodecCapability{{Kind: "text", MimeType: "text/plain", ClockRate: 1}}},
		"no clock rate": {Codecs: []core.RTPCodecCapability{{Kind: "video", MimeType: "video/VP8"}}},
	}
	for name, caps := range cases {
		t.Run(name, func(t *testing.T) {
			dev := coretest.NewDevice()
			n := NewNegotiator(dev)

			err := n.Load(caps)
			require.ErrorIs(t, err, core.ErrInvalidCapabilities)
			assert.False(t, n.Loaded())
			assert.Zero(t, dev.LoadCalls)
		})
	}
}

func TestNegotiatorWrapsEngineFailure(t *testing.T) {
	dev := coretest.NewDevice()
	dev.LoadErr = errBoom
	err := NewNegotiator(dev).Load(testCaps)
	require.ErrorIs(t, err, core.ErrInvalidCapabilities)
}
