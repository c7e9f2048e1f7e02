package core

import "errors"

var (
	ErrSignalingTimeout        = errors.New("signaling timeout")
	ErrSignalingRejected       = errors.New("signaling rejected")
	ErrInvalidCapabilities     = errors.New("invalid capabilities")
	ErrTransportConnectFailed  = errors.New("transport connect failed")
	ErrProduceFailed           = errors.New("produce failed")
	ErrConsumeUnavailable      = errors.New("consume unavailable")
	ErrDeviceAcquisitionFailed = errors.New("device acquisition failed")

	ErrNotJoined    = errors.New("not joined")
	ErrNoLocalMedia = errors.New("no local media")
	ErrClosed       = errors.New("closed")
)
