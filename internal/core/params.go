package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dkeye/huddle/internal/domain"
)

// AppData is opaque producer metadata forwarded to the server.
type AppData map[string]any

const AppDataScreenShare = "screenShare"

// IsScreenShare reports whether the producer metadata marks a screen-share track.
func (a AppData) IsScreenShare() bool {
	v, ok := a[AppDataScreenShare].(bool)
	return ok && v
}

type RTCPFeedback struct {
	Type      string `json:"type"`
	Parameter string `json:"parameter,omitempty"`
}

type RTPCodecCapability struct {
	Kind                 domain.MediaKind `json:"kind" validate:"required,oneof=audio video"`
	MimeType             string           `json:"mimeType" validate:"required,contains=/"`
	ClockRate            uint32           `json:"clockRate" validate:"required"`
	Channels             uint16           `json:"channels,omitempty"`
	PreferredPayloadType uint8            `json:"preferredPayloadType" validate:"required"`
	Parameters           map[string]any   `json:"parameters,omitempty"`
	RTCPFeedback         []RTCPFeedback   `json:"rtcpFeedback,omitempty"`
}

type RTPHeaderExtension struct {
	Kind        domain.MediaKind `json:"kind"`
	URI         string           `json:"uri" validate:"required"`
	PreferredID int              `json:"preferredId" validate:"required"`
}

// RTPCapabilities is the router capability set advertised on join.
type RTPCapabilities struct {
	Codecs           []RTPCodecCapability `json:"codecs" validate:"required,min=1,dive"`
	HeaderExtensions []RTPHeaderExtension `json:"headerExtensions,omitempty" validate:"dive"`
}

type ICEParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	ICELite          bool   `json:"iceLite,omitempty"`
}

type ICECandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	Address    string `json:"address"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
	TCPType    string `json:"tcpType,omitempty"`
}

type DTLSFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

type DTLSParameters struct {
	Role         string            `json:"role,omitempty"`
	Fingerprints []DTLSFingerprint `json:"fingerprints"`
}

// TransportParams is the server reply to requestTransport.
type TransportParams struct {
	ID             string         `json:"id"`
	ICEParameters  ICEParameters  `json:"iceParameters"`
	ICECandidates  []ICECandidate `json:"iceCandidates"`
	DTLSParameters DTLSParameters `json:"dtlsParameters"`
}

type RTPCodecParameters struct {
	MimeType     string         `json:"mimeType"`
	PayloadType  uint8          `json:"payloadType"`
	ClockRate    uint32         `json:"clockRate"`
	Channels     uint16         `json:"channels,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	RTCPFeedback []RTCPFeedback `json:"rtcpFeedback,omitempty"`
}

type RTXParameters struct {
	SSRC uint32 `json:"ssrc"`
}

type RTPEncoding struct {
	SSRC uint32         `json:"ssrc"`
	RTX  *RTXParameters `json:"rtx,omitempty"`
}

type RTCPParameters struct {
	CNAME string `json:"cname,omitempty"`
}

type RTPParameters struct {
	MID       string               `json:"mid,omitempty"`
	Codecs    []RTPCodecParameters `json:"codecs"`
	Encodings []RTPEncoding        `json:"encodings"`
	RTCP      RTCPParameters       `json:"rtcp"`
}

// ConsumerParams is the server reply to a successful consumeMedia.
type ConsumerParams struct {
	ID            string           `json:"id"`
	ProducerID    string           `json:"producerId"`
	Kind          domain.MediaKind `json:"kind"`
	RTPParameters RTPParameters    `json:"rtpParameters"`
}

// FmtpLine renders codec parameters the way SDP a=fmtp lines carry them.
func FmtpLine(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := params[k].(type) {
		case float64:
			parts = append(parts, k+"="+strconv.FormatFloat(v, 'f', -1, 64))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, ";")
}
