//go:build !linux

package devices

import (
	"context"
	"fmt"

	"github.com/dkeye/huddle/internal/core"
)

// Devices has no capture drivers on this platform.
type Devices struct{}

func New(Options) (*Devices, error) { return &Devices{}, nil }

func (*Devices) GetUserMedia(context.Context, core.MediaConstraints) (*core.LocalStream, error) {
	return nil, fmt.Errorf("%w: capture is only supported on linux", core.ErrDeviceAcquisitionFailed)
}

func (*Devices) GetDisplayMedia(context.Context) (*core.LocalStream, error) {
	return nil, fmt.Errorf("%w: capture is only supported on linux", core.ErrDeviceAcquisitionFailed)
}
