package rtc

import (
	"testing"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/core/coretest"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var caps = core.RTPCapabilities{
	Codecs: []core.RTPCodecCapability{
		{
			Kind: domain.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2, PreferredPayloadType: 100,
			Parameters: map[string]any{"useinbandfec": float64(1), "minptime": float64(10)},
		},
		{
			Kind: domain.KindVideo, MimeType: "video/VP8", ClockRate: 90000, PreferredPayloadType: 101,
			RTCPFeedback: []core.RTCPFeedback{{Type: "nack"}, {Type: "nack", Parameter: "pli"}},
		},
		{
			Kind: domain.KindVideo, MimeType: "video/rtx", ClockRate: 90000, PreferredPayloadType: 102,
			Parameters: map[string]any{"apt": float64(101)},
		},
	},
	HeaderExtensions: []core.RTPHeaderExtension{
		{Kind: domain.KindAudio, URI: "urn:ietf:params:rtp-hdrext:sdes:mid", PreferredID: 1},
		{URI: "urn:ietf:params:rtp-hdrext:ignored", PreferredID: 2},
	},
}

func TestDeviceLoad(t *testing.T) {
	d := NewDevice(Options{})
	assert.False(t, d.Loaded())
	assert.False(t, d.CanProduce(domain.KindAudio))

	require.NoError(t, d.Load(caps))
	require.NoError(t, d.Load(core.RTPCapabilities{}))

	assert.True(t, d.Loaded())
	assert.Equal(t, caps, d.RTPCapabilities())
	assert.True(t, d.CanProduce(domain.KindAudio))
	assert.True(t, d.CanProduce(domain.KindScreenVideo))
}

func TestDeviceAudioOnly(t *testing.T) {
	d := NewDevice(Options{})
	require.NoError(t, d.Load(core.RTPCapabilities{Codecs: caps.Codecs[:1]}))
	assert.True(t, d.CanProduce(domain.KindAudio))
	assert.False(t, d.CanProduce(domain.KindVideo))
}

func TestTransportRequiresLoadedDevice(t *testing.T) {
	d := NewDevice(Options{})
	_, err := d.CreateSendTransport(core.TransportParams{ID: "t1"}, core.TransportHandlers{})
	require.Error(t, err)
}

func TestTransportDirectionGuards(t *testing.T) {
	d := NewDevice(Options{})
	require.NoError(t, d.Load(caps))

	recv, err := d.CreateRecvTransport(core.TransportParams{ID: "r1"}, core.TransportHandlers{})
	require.NoError(t, err)
	assert.Equal(t, "r1", recv.ID())
	assert.Equal(t, domain.DirectionRecv, recv.Direction())

	_, err = recv.Produce(t.Context(), coretest.NewTrack(domain.KindAudio), nil)
	require.Error(t, err)

	_, err = recv.Consume(t.Context(), core.ConsumerParams{ID: "c1", Kind: domain.KindAudio})
	require.Error(t, err, "missing encodings must fail before any network work")

	send, err := d.CreateSendTransport(core.TransportParams{ID: "s1"}, core.TransportHandlers{})
	require.NoError(t, err)
	_, err = send.Produce(t.Context(), coretest.NewTrack(domain.KindAudio), nil)
	require.ErrorContains(t, err, "cannot be sent")

	recv.Close()
	recv.Close()
	send.Close()
	assert.True(t, recv.Closed())
	assert.True(t, send.Closed())
}

func TestParseFmtpRoundTrip(t *testing.T) {
	line := core.FmtpLine(map[string]any{"useinbandfec": float64(1), "profile-id": "0", "x": "abc"})
	assert.Equal(t, "profile-id=0;useinbandfec=1;x=abc", line)
	assert.Equal(t, map[string]any{"profile-id": 0, "useinbandfec": 1, "x": "abc"}, parseFmtp(line))
	assert.Nil(t, parseFmtp(""))
}

func TestICECandidates(t *testing.T) {
	out, err := iceCandidates([]core.ICECandidate{
		{Foundation: "udpcandidate", Priority: 1076302079, Address: "10.0.0.1", Protocol: "udp", Port: 40000, Type: "host"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, webrtc.ICEProtocolUDP, out[0].Protocol)
	assert.Equal(t, webrtc.ICECandidateTypeHost, out[0].Typ)
	assert.Equal(t, uint16(40000), out[0].Port)

	_, err = iceCandidates([]core.ICECandidate{{Protocol: "sctp", Type: "host"}})
	require.Error(t, err)
}

func TestDTLSRoles(t *testing.T) {
	assert.Equal(t, webrtc.DTLSRoleClient, localRole("auto"))
	assert.Equal(t, webrtc.DTLSRoleClient, localRole("server"))
	assert.Equal(t, webrtc.DTLSRoleServer, localRole("client"))

	remote := remoteDTLS(core.DTLSParameters{
		Role:         "auto",
		Fingerprints: []core.DTLSFingerprint{{Algorithm: "sha-256", Value: "AA:BB"}},
	}, webrtc.DTLSRoleClient)
	assert.Equal(t, webrtc.DTLSRoleServer, remote.Role)
	assert.Equal(t, "AA:BB", remote.Fingerprints[0].Value)

	local := localDTLS(webrtc.DTLSParameters{
		Fingerprints: []webrtc.DTLSFingerprint{{Algorithm: "sha-256", Value: "CC"}},
	}, webrtc.DTLSRoleClient)
	assert.Equal(t, "client", local.Role)
	assert.Equal(t, []core.DTLSFingerprint{{Algorithm: "sha-256", Value: "CC"}}, local.Fingerprints)
}

func TestSendAndReceiveParameters(t *testing.T) {
	p := webrtc.RTPSendParameters{
		RTPParameters: webrtc.RTPParameters{
			Codecs: []webrtc.RTPCodecParameters{capabilityCodec(caps.Codecs[1])},
		},
		Encodings: []webrtc.RTPEncodingParameters{{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				SSRC: 1111,
				RTX:  webrtc.RTPRtxParameters{SSRC: 2222},
			},
		}},
	}
	out := sendParameters(p, "0", "cname")
	assert.Equal(t, "0", out.MID)
	assert.Equal(t, "cname", out.RTCP.CNAME)
	require.Len(t, out.Codecs, 1)
	assert.Equal(t, uint8(101), out.Codecs[0].PayloadType)
	assert.Len(t, out.Codecs[0].RTCPFeedback, 2)
	require.Len(t, out.Encodings, 1)
	assert.Equal(t, uint32(1111), out.Encodings[0].SSRC)
	assert.Equal(t, uint32(2222), out.Encodings[0].RTX.SSRC)

	recv, err := receiveParameters(out)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SSRC(1111), recv.Encodings[0].SSRC)
	assert.Equal(t, webrtc.PayloadType(101), recv.Encodings[0].PayloadType)
	assert.Equal(t, webrtc.SSRC(2222), recv.Encodings[0].RTX.SSRC)
}

func TestConnectionStates(t *testing.T) {
	assert.Equal(t, core.ConnConnecting, connectionState(webrtc.ICETransportStateChecking))
	assert.Equal(t, core.ConnConnected, connectionState(webrtc.ICETransportStateCompleted))
	assert.Equal(t, core.ConnFailed, connectionState(webrtc.ICETransportStateFailed))
	assert.Equal(t, core.ConnNew, connectionState(webrtc.ICETransportStateNew))
}
