package rtc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

func codecType(kind domain.MediaKind) webrtc.RTPCodecType {
	if kind.Base() == domain.KindVideo {
		return webrtc.RTPCodecTypeVideo
	}
	return webrtc.RTPCodecTypeAudio
}

func feedback(in []core.RTCPFeedback) []webrtc.RTCPFeedback {
	out := make([]webrtc.RTCPFeedback, 0, len(in))
	for _, fb := range in {
		out = append(out, webrtc.RTCPFeedback{Type: fb.Type, Parameter: fb.Parameter})
	}
	return out
}

func capabilityCodec(c core.RTPCodecCapability) webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     c.MimeType,
			ClockRate:    c.ClockRate,
			Channels:     c.Channels,
			SDPFmtpLine:  core.FmtpLine(c.Parameters),
			RTCPFeedback: feedback(c.RTCPFeedback),
		},
		PayloadType: webrtc.PayloadType(c.PreferredPayloadType),
	}
}

// parseFmtp is the inverse of core.FmtpLine. Integer values stay numeric
// so the server sees the same types it advertised.
func parseFmtp(line string) map[string]any {
	if line == "" {
		return nil
	}
	out := make(map[string]any)
	for _, part := range strings.Split(line, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || k == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil {
			out[k] = n
			continue
		}
		out[k] = v
	}
	return out
}

func iceParameters(p core.ICEParameters) webrtc.ICEParameters {
	return webrtc.ICEParameters{
		UsernameFragment: p.UsernameFragment,
		Password:         p.Password,
		ICELite:          p.ICELite,
	}
}

func iceCandidates(in []core.ICECandidate) ([]webrtc.ICECandidate, error) {
	out := make([]webrtc.ICECandidate, 0, len(in))
	for _, c := range in {
		proto, err := webrtc.NewICEProtocol(c.Protocol)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.Foundation, err)
		}
		typ, err := webrtc.NewICECandidateType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.Foundation, err)
		}
		out = append(out, webrtc.ICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			Address:    c.Address,
			Protocol:   proto,
			Port:       c.Port,
			Typ:        typ,
			Component:  1,
			TCPType:    c.TCPType,
		})
	}
	return out, nil
}

// localRole picks our DTLS role from the remote one. The server usually
// answers "auto", in which case we act as the DTLS client.
func localRole(remote string) webrtc.DTLSRole {
	if remote == "client" {
		return webrtc.DTLSRoleServer
	}
	return webrtc.DTLSRoleClient
}

func remoteDTLS(p core.DTLSParameters, local webrtc.DTLSRole) webrtc.DTLSParameters {
	role := webrtc.DTLSRoleServer
	if local == webrtc.DTLSRoleServer {
		role = webrtc.DTLSRoleClient
	}
	out := webrtc.DTLSParameters{Role: role}
	for _, fp := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, webrtc.DTLSFingerprint{Algorithm: fp.Algorithm, Value: fp.Value})
	}
	return out
}

func localDTLS(p webrtc.DTLSParameters, role webrtc.DTLSRole) core.DTLSParameters {
	out := core.DTLSParameters{Role: role.String()}
	for _, fp := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, core.DTLSFingerprint{Algorithm: fp.Algorithm, Value: fp.Value})
	}
	return out
}

// sendParameters describes what an RTPSender will emit in the form the
// server expects in startProducing.
func sendParameters(p webrtc.RTPSendParameters, mid, cname string) core.RTPParameters {
	out := core.RTPParameters{MID: mid, RTCP: core.RTCPParameters{CNAME: cname}}
	for _, c := range p.Codecs {
		fb := make([]core.RTCPFeedback, 0, len(c.RTCPFeedback))
		for _, f := range c.RTCPFeedback {
			fb = append(fb, core.RTCPFeedback{Type: f.Type, Parameter: f.Parameter})
		}
		out.Codecs = append(out.Codecs, core.RTPCodecParameters{
			MimeType:     c.MimeType,
			PayloadType:  uint8(c.PayloadType),
			ClockRate:    c.ClockRate,
			Channels:     c.Channels,
			Parameters:   parseFmtp(c.SDPFmtpLine),
			RTCPFeedback: fb,
		})
	}
	for _, e := range p.Encodings {
		enc := core.RTPEncoding{SSRC: uint32(e.SSRC)}
		if e.RTX.SSRC != 0 {
			enc.RTX = &core.RTXParameters{SSRC: uint32(e.RTX.SSRC)}
		}
		out.Encodings = append(out.Encodings, enc)
	}
	return out
}

func receiveParameters(p core.RTPParameters) (webrtc.RTPReceiveParameters, error) {
	if len(p.Codecs) == 0 || len(p.Encodings) == 0 {
		return webrtc.RTPReceiveParameters{}, fmt.Errorf("rtp parameters: missing codecs or encodings")
	}
	enc := p.Encodings[0]
	coding := webrtc.RTPCodingParameters{
		SSRC:        webrtc.SSRC(enc.SSRC),
		PayloadType: webrtc.PayloadType(p.Codecs[0].PayloadType),
	}
	if enc.RTX != nil {
		coding.RTX = webrtc.RTPRtxParameters{SSRC: webrtc.SSRC(enc.RTX.SSRC)}
	}
	return webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{{RTPCodingParameters: coding}},
	}, nil
}

func connectionState(s webrtc.ICETransportState) core.ConnectionState {
	switch s {
	case webrtc.ICETransportStateChecking:
		return core.ConnConnecting
	case webrtc.ICETransportStateConnected, webrtc.ICETransportStateCompleted:
		return core.ConnConnected
	case webrtc.ICETransportStateDisconnected:
		return core.ConnDisconnected
	case webrtc.ICETransportStateFailed:
		return core.ConnFailed
	case webrtc.ICETransportStateClosed:
		return core.ConnClosed
	}
	return core.ConnNew
}
