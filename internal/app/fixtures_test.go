package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/core/coretest"
	"github.com/dkeye/huddle/internal/domain"
)

var testCaps = coretest.Caps

var audioOnlyCaps = core.RTPCapabilities{Codecs: coretest.Caps.Codecs[:1]}

// serverSignal answers every request the way a healthy room server does.
func serverSignal() *coretest.Signal {
	return coretest.ServerSignal(domain.NewProducers{})
}

type consumerFixture struct {
	sig *coretest.Signal
	dev *coretest.Device
	tm  *TransportManager
	reg *ConsumerRegistry
}

func newConsumerFixture() *consumerFixture {
	sig := serverSignal()
	dev := coretest.NewDevice()
	_ = dev.Load(testCaps)
	neg := NewNegotiator(dev)
	tm := NewTransportManager(sig, dev)
	return &consumerFixture{
		sig: sig,
		dev: dev,
		tm:  tm,
		reg: NewConsumerRegistry(context.Background(), sig, neg, tm),
	}
}

func (f *consumerFixture) transport(id string) *coretest.Transport {
	for _, t := range f.dev.Transports() {
		if t.ID() == id {
			return t
		}
	}
	return nil
}

func announce(entries ...[3]string) domain.NewProducers {
	var ann domain.NewProducers
	for _, e := range entries {
		ann.AudioIDs = append(ann.AudioIDs, e[0])
		ann.VideoIDs = append(ann.VideoIDs, e[1])
		ann.Participants = append(ann.Participants, domain.ParticipantInfo{ID: domain.ParticipantID(e[2]), Name: e[2]})
	}
	return ann
}

// blockingHandler holds every call until release is closed.
type blockingHandler struct {
	once    sync.Once
	release chan struct{}
	reply   any
}

func newBlockingHandler(reply any) *blockingHandler {
	return &blockingHandler{release: make(chan struct{}), reply: reply}
}

func (b *blockingHandler) handle(any) (any, error) {
	<-b.release
	return b.reply, nil
}

func (b *blockingHandler) open() { b.once.Do(func() { close(b.release) }) }

var errBoom = errors.New("boom")

const (
	testWait = 2 * time.Second
	testTick = 5 * time.Millisecond
)
