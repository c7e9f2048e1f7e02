// Package rtc binds the media engine interfaces to pion's ORTC API: one
// ICE+DTLS transport per server-side transport, an RTPSender per producer
// and an RTPReceiver per consumer.
package rtc

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Options struct {
	ICEServers []string
}

func DefaultOptions() Options {
	return Options{ICEServers: []string{"stun:stun.l.google.com:19302"}}
}

// Factory returns a DeviceFactory producing unloaded devices.
func Factory(opts Options) core.DeviceFactory {
	return func() (core.Device, error) {
		return NewDevice(opts), nil
	}
}

type Device struct {
	opts Options

	mu     sync.RWMutex
	loaded bool
	caps   core.RTPCapabilities
	api    *webrtc.API
}

func NewDevice(opts Options) *Device {
	return &Device{opts: opts}
}

func (d *Device) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

func (d *Device) Load(caps core.RTPCapabilities) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return nil
	}

	me := &webrtc.MediaEngine{}
	for _, c := range caps.Codecs {
		if err := me.RegisterCodec(capabilityCodec(c), codecType(c.Kind)); err != nil {
			return fmt.Errorf("register codec %s: %w", c.MimeType, err)
		}
	}
	for _, ext := range caps.HeaderExtensions {
		if ext.Kind == "" {
			continue
		}
		hc := webrtc.RTPHeaderExtensionCapability{URI: ext.URI}
		if err := me.RegisterHeaderExtension(hc, codecType(ext.Kind)); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Str("uri", ext.URI).Msg("header extension skipped")
		}
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, ir); err != nil {
		return fmt.Errorf("register interceptors: %w", err)
	}

	d.api = webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(webrtc.SettingEngine{}),
	)
	d.caps = caps
	d.loaded = true
	log.Info().Str("module", "rtc").Int("codecs", len(caps.Codecs)).Msg("device loaded")
	return nil
}

func (d *Device) RTPCapabilities() core.RTPCapabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.caps
}

func (d *Device) CanProduce(kind domain.MediaKind) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.loaded {
		return false
	}
	for _, c := range d.caps.Codecs {
		if c.Kind == kind.Base() && !strings.HasSuffix(strings.ToLower(c.MimeType), "/rtx") {
			return true
		}
	}
	return false
}

func (d *Device) CreateSendTransport(params core.TransportParams, h core.TransportHandlers) (core.Transport, error) {
	return d.createTransport(domain.DirectionSend, params, h)
}

func (d *Device) CreateRecvTransport(params core.TransportParams, h core.TransportHandlers) (core.Transport, error) {
	return d.createTransport(domain.DirectionRecv, params, h)
}

func (d *Device) createTransport(dir domain.TransportDirection, params core.TransportParams, h core.TransportHandlers) (core.Transport, error) {
	d.mu.RLock()
	api, loaded := d.api, d.loaded
	d.mu.RUnlock()
	if !loaded {
		return nil, fmt.Errorf("device not loaded")
	}
	servers := []webrtc.ICEServer{}
	if len(d.opts.ICEServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: d.opts.ICEServers})
	}
	return newTransport(api, servers, dir, params, h)
}
