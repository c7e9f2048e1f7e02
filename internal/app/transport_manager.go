package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// TransportManager owns the single send transport and the per-participant
// receive transports of one signaling identity.
type TransportManager struct {
	sig core.SignalChannel
	dev core.Device

	mu   sync.Mutex
	send core.Transport
	recv map[string]core.Transport // by remote audio id
}

func NewTransportManager(sig core.SignalChannel, dev core.Device) *TransportManager {
	return &TransportManager{
		sig:  sig,
		dev:  dev,
		recv: make(map[string]core.Transport),
	}
}

// CreateSendTransport returns the existing send transport or negotiates a new one.
func (m *TransportManager) CreateSendTransport(ctx context.Context) (core.Transport, error) {
	m.mu.Lock()
	if m.send != nil && !m.send.Closed() {
		t := m.send
		m.mu.Unlock()
		return t, nil
	}
	m.mu.Unlock()

	params, err := m.requestTransport(ctx, core.TransportRequest{Type: domain.DirectionSend})
	if err != nil {
		return nil, err
	}
	t, err := m.dev.CreateSendTransport(params, core.TransportHandlers{
		Connect:     m.connectHandler(domain.DirectionSend, ""),
		Produce:     m.produceHandler(),
		StateChange: observe(params.ID, domain.DirectionSend, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("create send transport: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.send != nil && !m.send.Closed() {
		// Lost a race with a concurrent caller.
		t.Close()
		return m.send, nil
	}
	m.send = t
	log.Info().Str("module", "app.transport").Str("transport_id", t.ID()).Msg("send transport created")
	return t, nil
}

// CreateRecvTransport negotiates the receive transport shared by the audio and
// video consumers of the participant identified by remoteAudioID.
func (m *TransportManager) CreateRecvTransport(ctx context.Context, remoteAudioID string) (core.Transport, error) {
	m.mu.Lock()
	if t, ok := m.recv[remoteAudioID]; ok && !t.Closed() {
		m.mu.Unlock()
		return t, nil
	}
	m.mu.Unlock()

	params, err := m.requestTransport(ctx, core.TransportRequest{Type: domain.DirectionRecv, RemoteAudioID: remoteAudioID})
	if err != nil {
		return nil, err
	}
	t, err := m.dev.CreateRecvTransport(params, core.TransportHandlers{
		Connect:     m.connectHandler(domain.DirectionRecv, remoteAudioID),
		StateChange: observe(params.ID, domain.DirectionRecv, remoteAudioID),
	})
	if err != nil {
		return nil, fmt.Errorf("create recv transport: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.recv[remoteAudioID]; ok && !old.Closed() {
		t.Close()
		return old, nil
	}
	m.recv[remoteAudioID] = t
	log.Info().Str("module", "app.transport").Str("transport_id", t.ID()).Str("audio_id", remoteAudioID).Msg("recv transport created")
	return t, nil
}

func (m *TransportManager) requestTransport(ctx context.Context, req core.TransportRequest) (core.TransportParams, error) {
	var params core.TransportParams
	raw, err := m.sig.Request(ctx, core.ReqRequestTransport, req)
	if err != nil {
		return params, fmt.Errorf("request %s transport: %w", req.Type, err)
	}
	if err := json.Unmarshal(raw, &params); err != nil || params.ID == "" {
		return params, fmt.Errorf("%w: bad %s transport params: %s", core.ErrSignalingRejected, req.Type, string(raw))
	}
	return params, nil
}

// connectHandler resolves only on an explicit "success" acknowledgement.
func (m *TransportManager) connectHandler(dir domain.TransportDirection, remoteAudioID string) func(context.Context, core.DTLSParameters) error {
	return func(ctx context.Context, dtls core.DTLSParameters) error {
		raw, err := m.sig.Request(ctx, core.ReqConnectTransport, core.ConnectTransportRequest{
			DTLSParameters: dtls,
			Type:           dir,
			RemoteAudioID:  remoteAudioID,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", core.ErrTransportConnectFailed, err)
		}
		if s, ok := core.ReplyString(raw); !ok || s != core.ReplySuccess {
			return fmt.Errorf("%w: server replied %s", core.ErrTransportConnectFailed, string(raw))
		}
		return nil
	}
}

func (m *TransportManager) produceHandler() func(context.Context, domain.MediaKind, core.RTPParameters, core.AppData) (string, error) {
	return func(ctx context.Context, kind domain.MediaKind, rtp core.RTPParameters, appData core.AppData) (string, error) {
		if appData.IsScreenShare() {
			kind = kind.Screen()
		}
		raw, err := m.sig.Request(ctx, core.ReqStartProducing, core.ProduceRequest{
			Kind:          kind,
			RTPParameters: rtp,
			AppData:       appData,
		})
		if err != nil {
			return "", fmt.Errorf("%w: %w", core.ErrProduceFailed, err)
		}
		id, ok := core.ProducerIDFromReply(raw)
		if !ok {
			return "", fmt.Errorf("%w: server replied %s", core.ErrProduceFailed, string(raw))
		}
		return id, nil
	}
}

// observe logs failures and the connected transition only.
func observe(transportID string, dir domain.TransportDirection, remoteAudioID string) func(core.ConnectionState) {
	logger := log.With().
		Str("module", "app.transport").
		Str("transport_id", transportID).
		Str("direction", string(dir)).
		Str("audio_id", remoteAudioID).
		Logger()
	return func(s core.ConnectionState) {
		switch s {
		case core.ConnFailed, core.ConnDisconnected, core.ConnClosed:
			logger.Warn().Str("state", string(s)).Msg("transport state changed")
		case core.ConnConnected:
			logger.Info().Msg("transport connected")
		}
	}
}

func (m *TransportManager) CloseSendTransport() {
	m.mu.Lock()
	t := m.send
	m.send = nil
	m.mu.Unlock()
	if t != nil {
		t.Close()
	}
}

func (m *TransportManager) CloseRecvTransport(remoteAudioID string) {
	m.mu.Lock()
	t, ok := m.recv[remoteAudioID]
	delete(m.recv, remoteAudioID)
	m.mu.Unlock()
	if ok {
		t.Close()
		log.Debug().Str("module", "app.transport").Str("audio_id", remoteAudioID).Msg("recv transport closed")
	}
}

// Close closes every owned transport.
func (m *TransportManager) Close() {
	m.mu.Lock()
	all := make([]core.Transport, 0, len(m.recv)+1)
	if m.send != nil {
		all = append(all, m.send)
	}
	for _, t := range m.recv {
		all = append(all, t)
	}
	m.send = nil
	m.recv = make(map[string]core.Transport)
	m.mu.Unlock()
	for _, t := range all {
		t.Close()
	}
}

// Count reports the number of open transports.
func (m *TransportManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.recv)
	if m.send != nil {
		n++
	}
	return n
}
