//go:build linux

package devices

import (
	"context"
	"fmt"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Devices struct {
	opts     Options
	selector *mediadevices.CodecSelector
}

func New(opts Options) (*Devices, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	if opts.VideoBitRate > 0 {
		vpxParams.BitRate = opts.VideoBitRate
	}
	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	return &Devices{
		opts: opts,
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

func (d *Devices) GetUserMedia(ctx context.Context, c core.MediaConstraints) (*core.LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Audio && !c.Video {
		return nil, fmt.Errorf("%w: nothing requested", core.ErrDeviceAcquisitionFailed)
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: d.selector}
	if c.Video {
		width, height := c.Width, c.Height
		if width == 0 {
			width = d.opts.Width
		}
		if height == 0 {
			height = d.opts.Height
		}
		constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
			// MJPEG nodes on some cameras produce frames the encoder rejects.
			mc.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			if width > 0 {
				mc.Width = prop.IntRanged{Max: width}
			}
			if height > 0 {
				mc.Height = prop.IntRanged{Max: height}
			}
		}
	}
	if c.Audio {
		constraints.Audio = func(*mediadevices.MediaTrackConstraints) {}
	}

	ms, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrDeviceAcquisitionFailed, err)
	}
	return d.wrap(ms), nil
}

func (d *Devices) GetDisplayMedia(ctx context.Context) (*core.LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Video: func(*mediadevices.MediaTrackConstraints) {},
		Codec: d.selector,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrDeviceAcquisitionFailed, err)
	}
	return d.wrap(ms), nil
}

func (d *Devices) wrap(ms mediadevices.MediaStream) *core.LocalStream {
	out := &core.LocalStream{ID: uuid.NewString()}
	for _, mt := range ms.GetTracks() {
		kind := domain.KindAudio
		if mt.Kind() == webrtc.RTPCodecTypeVideo {
			kind = domain.KindVideo
		}
		t := newTrack(kind, mt, mt.Close)
		mt.OnEnded(t.ended)
		switch kind {
		case domain.KindAudio:
			if out.Audio != nil {
				t.Stop()
				continue
			}
			out.Audio = t
		default:
			if out.Video != nil {
				t.Stop()
				continue
			}
			out.Video = t
		}
		log.Info().Str("module", "devices").Str("track", t.ID()).Str("kind", string(kind)).Msg("captured")
	}
	return out
}
