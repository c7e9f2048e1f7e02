package app

import (
	"testing"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/core/coretest"
	"github.com/dkeye/huddle/internal/core/mocks"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestSendTransportHandshakeAndProduce(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := mocks.NewMockSignalChannel(ctrl)
	dev := coretest.NewDevice()
	tm := NewTransportManager(sig, dev)

	gomock.InOrder(
		sig.EXPECT().
			Request(gomock.Any(), core.ReqRequestTransport, core.TransportRequest{Type: domain.DirectionSend}).
			Return(raw(t, core.TransportParams{ID: "send-1"}), nil),
		sig.EXPECT().
			Request(gomock.Any(), core.ReqConnectTransport, core.ConnectTransportRequest{DTLSParameters: coretest.DefaultDTLS, Type: domain.DirectionSend}).
			Return(raw(t, core.ReplySuccess), nil),
		sig.EXPECT().
			Request(gomock.Any(), core.ReqStartProducing, gomock.Any()).
			DoAndReturn(func(_ any, _ string, payload any) (json.RawMessage, error) {
				req := payload.(core.ProduceRequest)
				assert.Equal(t, domain.KindAudio, req.Kind)
				return raw(t, "producer-a"), nil
			}),
	)

	tr, err := tm.CreateSendTransport(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "send-1", tr.ID())

	again, err := tm.CreateSendTransport(t.Context())
	require.NoError(t, err)
	assert.Same(t, tr, again)

	p, err := tr.Produce(t.Context(), coretest.NewTrack(domain.KindAudio), nil)
	require.NoError(t, err)
	assert.Equal(t, "producer-a", p.ID())
	assert.Equal(t, 1, tm.Count())
}

func TestConnectRequiresExplicitSuccess(t *testing.T) {
	for name, reply := range map[string]json.RawMessage{
		"error string": json.RawMessage(`"error"`),
		"object":       json.RawMessage(`{"ok":true}`),
	} {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			sig := mocks.NewMockSignalChannel(ctrl)
			tm := NewTransportManager(sig, coretest.NewDevice())

			sig.EXPECT().Request(gomock.Any(), core.ReqRequestTransport, gomock.Any()).Return(raw(t, core.TransportParams{ID: "send-1"}), nil)
			sig.EXPECT().Request(gomock.Any(), core.ReqConnectTransport, gomock.Any()).Return(reply, nil)

			tr, err := tm.CreateSendTransport(t.Context())
			require.NoError(t, err)
			_, err = tr.Produce(t.Context(), coretest.NewTrack(domain.KindVideo), nil)
			require.ErrorIs(t, err, core.ErrTransportConnectFailed)
		})
	}
}

func TestConnectSignalingErrorIsConnectFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := mocks.NewMockSignalChannel(ctrl)
	tm := NewTransportManager(sig, coretest.NewDevice())

	sig.EXPECT().Request(gomock.Any(), core.ReqRequestTransport, gomock.Any()).Return(raw(t, core.TransportParams{ID: "recv-a1"}), nil)
	sig.EXPECT().Request(gomock.Any(), core.ReqConnectTransport, gomock.Any()).Return(nil, core.ErrSignalingTimeout)

	tr, err := tm.CreateRecvTransport(t.Context(), "a1")
	require.NoError(t, err)
	_, err = tr.Consume(t.Context(), core.ConsumerParams{ID: "c1", ProducerID: "a1", Kind: domain.KindAudio})
	require.ErrorIs(t, err, core.ErrTransportConnectFailed)
	require.ErrorIs(t, err, core.ErrSignalingTimeout)
}

func TestProduceRemapsScreenShareKind(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := mocks.NewMockSignalChannel(ctrl)
	tm := NewTransportManager(sig, coretest.NewDevice())

	var got core.ProduceRequest
	sig.EXPECT().Request(gomock.Any(), core.ReqRequestTransport, gomock.Any()).Return(raw(t, core.TransportParams{ID: "send-1"}), nil)
	sig.EXPECT().Request(gomock.Any(), core.ReqConnectTransport, gomock.Any()).Return(raw(t, core.ReplySuccess), nil)
	sig.EXPECT().Request(gomock.Any(), core.ReqStartProducing, gomock.Any()).
		DoAndReturn(func(_ any, _ string, payload any) (json.RawMessage, error) {
			got = payload.(core.ProduceRequest)
			return raw(t, map[string]string{"id": "screen-v"}), nil
		})

	tr, err := tm.CreateSendTransport(t.Context())
	require.NoError(t, err)
	p, err := tr.Produce(t.Context(), coretest.NewTrack(domain.KindVideo), core.AppData{core.AppDataScreenShare: true})
	require.NoError(t, err)

	assert.Equal(t, "screen-v", p.ID())
	assert.Equal(t, domain.KindScreenVideo, got.Kind)
}

func TestProduceErrorReply(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := mocks.NewMockSignalChannel(ctrl)
	tm := NewTransportManager(sig, coretest.NewDevice())

	sig.EXPECT().Request(gomock.Any(), core.ReqRequestTransport, gomock.Any()).Return(raw(t, core.TransportParams{ID: "send-1"}), nil)
	sig.EXPECT().Request(gomock.Any(), core.ReqConnectTransport, gomock.Any()).Return(raw(t, core.ReplySuccess), nil)
	sig.EXPECT().Request(gomock.Any(), core.ReqStartProducing, gomock.Any()).Return(raw(t, core.ReplyError), nil)

	tr, err := tm.CreateSendTransport(t.Context())
	require.NoError(t, err)
	_, err = tr.Produce(t.Context(), coretest.NewTrack(domain.KindAudio), nil)
	require.ErrorIs(t, err, core.ErrProduceFailed)
}

func TestRequestTransportRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := mocks.NewMockSignalChannel(ctrl)
	tm := NewTransportManager(sig, coretest.NewDevice())

	sig.EXPECT().
		Request(gomock.Any(), core.ReqRequestTransport, core.TransportRequest{Type: domain.DirectionRecv, RemoteAudioID: "a1"}).
		Return(raw(t, core.ReplyError), nil)

	_, err := tm.CreateRecvTransport(t.Context(), "a1")
	require.ErrorIs(t, err, core.ErrSignalingRejected)
	assert.Zero(t, tm.Count())
}

func TestTransportManagerClose(t *testing.T) {
	sig := serverSignal()
	dev := coretest.NewDevice()
	tm := NewTransportManager(sig, dev)

	_, err := tm.CreateSendTransport(t.Context())
	require.NoError(t, err)
	_, err = tm.CreateRecvTransport(t.Context(), "a1")
	require.NoError(t, err)
	_, err = tm.CreateRecvTransport(t.Context(), "a2")
	require.NoError(t, err)
	require.Equal(t, 3, tm.Count())

	tm.CloseRecvTransport("a1")
	assert.Equal(t, 2, tm.Count())

	tm.Close()
	assert.Zero(t, tm.Count())
	for _, tr := range dev.Transports() {
		assert.True(t, tr.Closed(), tr.ID())
	}
}
