package app

import (
	"sync"
	"testing"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/core/coretest"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumeCreatesBundle(t *testing.T) {
	f := newConsumerFixture()

	added := f.reg.Consume(t.Context(), announce([3]string{"a1", "v1", "bob"}))
	require.Len(t, added, 1)
	assert.Equal(t, domain.ParticipantID("bob"), added[0].ID)

	b, ok := f.reg.Bundle("a1")
	require.True(t, ok)
	assert.True(t, b.HasAudio)
	assert.True(t, b.HasVideo)
	assert.True(t, b.Stream.HasAudio())
	assert.True(t, b.Stream.HasVideo())

	tr := f.transport("consumer-a1")
	require.NotNil(t, tr)
	consumers := tr.Consumers()
	require.Len(t, consumers, 2)
	for _, c := range consumers {
		assert.False(t, c.Paused(), "consumer %s should be resumed after unpause", c.ID())
		if c.Kind() == domain.KindVideo {
			assert.EqualValues(t, 1, c.KeyFrames.Load())
		}
	}
	assert.Len(t, f.sig.Requests(core.ReqUnpauseConsumer), 2)
}

func TestConsumeDeduplicatesParticipants(t *testing.T) {
	f := newConsumerFixture()
	ann := announce([3]string{"a1", "v1", "bob"}, [3]string{"a2", "", "carol"})

	f.reg.Consume(t.Context(), ann)
	f.reg.Consume(t.Context(), ann)
	f.reg.Consume(t.Context(), announce([3]string{"a1-new", "", "bob"}))

	assert.Equal(t, 2, f.reg.Count())
	assert.Len(t, f.sig.Requests(core.ReqRequestTransport), 2)
}

func TestConcurrentAnnouncementsYieldOneBundle(t *testing.T) {
	f := newConsumerFixture()
	gate := newBlockingHandler(core.TransportParams{ID: "consumer-a1"})
	f.sig.Handle(core.ReqRequestTransport, gate.handle)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.reg.Consume(t.Context(), announce([3]string{"a1", "v1", "bob"}))
		}()
	}
	require.Eventually(t, f.reg.Pending, testWait, testTick)
	gate.open()
	wg.Wait()

	assert.Equal(t, 1, f.reg.Count())
	assert.Len(t, f.sig.Requests(core.ReqRequestTransport), 1)
}

func TestPartialConsumeKeepsAudioOnly(t *testing.T) {
	f := newConsumerFixture()
	f.sig.Handle(core.ReqConsumeMedia, func(p any) (any, error) {
		req := p.(core.ConsumeRequest)
		if req.Kind == domain.KindVideo {
			return core.ReplyCannotConsume, nil
		}
		return core.ConsumerParams{ID: "c-" + req.ParticipantTrackID, ProducerID: req.ParticipantTrackID, Kind: req.Kind}, nil
	})

	f.reg.Consume(t.Context(), announce([3]string{"a1", "v1", "bob"}))

	b, ok := f.reg.Bundle("a1")
	require.True(t, ok)
	require.NotNil(t, b.Stream)
	assert.True(t, b.HasAudio)
	assert.False(t, b.HasVideo)
	assert.True(t, b.Stream.HasAudio())
	assert.False(t, b.Stream.HasVideo())
}

func TestConsumeAbandonedWhenNothingAvailable(t *testing.T) {
	f := newConsumerFixture()
	f.sig.Reply(core.ReqConsumeMedia, core.ReplyConsumeFailed)

	added := f.reg.Consume(t.Context(), announce([3]string{"a1", "v1", "bob"}))

	assert.Empty(t, added)
	assert.Zero(t, f.reg.Count())
	assert.False(t, f.reg.Pending())
	assert.True(t, f.transport("consumer-a1").Closed())
	assert.Zero(t, f.tm.Count())
}

func TestUnpauseRejectionDropsConsumer(t *testing.T) {
	f := newConsumerFixture()
	f.sig.Handle(core.ReqUnpauseConsumer, func(p any) (any, error) {
		if p.(core.UnpauseRequest).Kind == domain.KindVideo {
			return "nope", nil
		}
		return core.ReplySuccess, nil
	})

	f.reg.Consume(t.Context(), announce([3]string{"a1", "v1", "bob"}))

	b, ok := f.reg.Bundle("a1")
	require.True(t, ok)
	assert.True(t, b.HasAudio)
	assert.False(t, b.HasVideo)
}

func TestProducerClosedConverges(t *testing.T) {
	f := newConsumerFixture()
	f.reg.Consume(t.Context(), announce([3]string{"a1", "v1", "bob"}))
	tr := f.transport("consumer-a1")

	require.True(t, f.reg.HandleProducerClosed("v1"))
	b, ok := f.reg.Bundle("a1")
	require.True(t, ok)
	assert.True(t, b.HasAudio)
	assert.False(t, b.HasVideo)
	assert.False(t, b.Stream.HasVideo())
	assert.False(t, tr.Closed())

	require.True(t, f.reg.HandleProducerClosed("a1"))
	_, ok = f.reg.Bundle("a1")
	assert.False(t, ok)
	assert.Zero(t, f.reg.Count())
	assert.True(t, tr.Closed())
	for _, c := range tr.Consumers() {
		assert.True(t, c.Closed())
	}

	assert.False(t, f.reg.HandleProducerClosed("a1"))
}

func TestConsumerPauseResume(t *testing.T) {
	f := newConsumerFixture()
	f.reg.Consume(t.Context(), announce([3]string{"a1", "v1", "bob"}))
	var video *coretest.Consumer
	for _, c := range f.transport("consumer-a1").Consumers() {
		if c.Kind() == domain.KindVideo {
			video = c
		}
	}
	require.NotNil(t, video)

	require.True(t, f.reg.HandleConsumerPaused("c-v1", domain.KindVideo))
	assert.True(t, video.Paused())
	assert.False(t, f.reg.HandleConsumerPaused("c-v1", domain.KindAudio), "kind must match")

	// A failed keyframe request does not block the resume.
	video.KeyFrameErr = errBoom
	frames := video.KeyFrames.Load()
	require.True(t, f.reg.HandleConsumerResumed("c-v1", domain.KindVideo))
	assert.False(t, video.Paused())
	assert.Equal(t, frames+1, video.KeyFrames.Load())

	assert.False(t, f.reg.HandleConsumerPaused("missing", domain.KindVideo))
}

func TestProducerPauseMapsToConsumer(t *testing.T) {
	f := newConsumerFixture()
	f.reg.Consume(t.Context(), announce([3]string{"a1", "", "bob"}))
	b, _ := f.reg.Bundle("a1")

	require.True(t, f.reg.HandleProducerPaused("a1"))
	assert.True(t, b.Stream.(interface{ Muted(domain.MediaKind) bool }).Muted(domain.KindAudio))
	require.True(t, f.reg.HandleProducerResumed("a1"))
	assert.False(t, b.Stream.(interface{ Muted(domain.MediaKind) bool }).Muted(domain.KindAudio))
}

func TestParticipantLeftRemovesBundles(t *testing.T) {
	f := newConsumerFixture()
	f.reg.Consume(t.Context(), announce([3]string{"a1", "v1", "bob"}, [3]string{"a2", "v2", "carol"}))
	require.Equal(t, 2, f.reg.Count())

	ids := f.reg.HandleParticipantLeft("bob")
	assert.Equal(t, []string{"a1"}, ids)
	assert.Equal(t, 1, f.reg.Count())
	assert.True(t, f.transport("consumer-a1").Closed())
	assert.False(t, f.transport("consumer-a2").Closed())
}

func TestParticipantLeftWhileConsuming(t *testing.T) {
	f := newConsumerFixture()
	gate := newBlockingHandler(core.ReplySuccess)
	f.sig.Handle(core.ReqUnpauseConsumer, gate.handle)

	done := make(chan []domain.ParticipantInfo)
	go func() { done <- f.reg.Consume(t.Context(), announce([3]string{"a1", "", "bob"})) }()

	require.Eventually(t, f.reg.Pending, testWait, testTick)
	f.reg.HandleParticipantLeft("bob")
	gate.open()

	assert.Empty(t, <-done)
	assert.Zero(t, f.reg.Count())
	assert.False(t, f.reg.Pending())
}

func TestRejoinWhileFirstConsumeInFlight(t *testing.T) {
	for _, tc := range []struct {
		name     string
		rejoinID string
	}{
		{name: "new audio id", rejoinID: "a2"},
		{name: "same audio id", rejoinID: "a1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newConsumerFixture()
			gate := newBlockingHandler(core.ReplySuccess)
			f.sig.Handle(core.ReqUnpauseConsumer, gate.handle)
			unpauses := func(n int) func() bool {
				return func() bool { return len(f.sig.Requests(core.ReqUnpauseConsumer)) >= n }
			}

			first := make(chan []domain.ParticipantInfo)
			go func() { first <- f.reg.Consume(t.Context(), announce([3]string{"a1", "", "bob"})) }()
			require.Eventually(t, unpauses(1), testWait, testTick)

			f.reg.HandleParticipantLeft("bob")

			second := make(chan []domain.ParticipantInfo)
			go func() { second <- f.reg.Consume(t.Context(), announce([3]string{tc.rejoinID, "", "bob"})) }()
			require.Eventually(t, unpauses(2), testWait, testTick)
			gate.open()

			assert.Empty(t, <-first)
			rejoined := <-second
			require.Len(t, rejoined, 1)
			assert.Equal(t, domain.ParticipantID("bob"), rejoined[0].ID)

			assert.Equal(t, 1, f.reg.Count())
			assert.False(t, f.reg.Pending())
			b, ok := f.reg.Bundle(tc.rejoinID)
			require.True(t, ok)
			assert.True(t, b.HasAudio)

			live := f.transport("consumer-" + tc.rejoinID)
			require.NotNil(t, live)
			assert.False(t, live.Closed())

			closed := 0
			for _, tr := range f.dev.Transports() {
				for _, c := range tr.Consumers() {
					if c.Closed() {
						closed++
					}
				}
			}
			assert.Equal(t, 1, closed, "only the discarded consumer is closed")
		})
	}
}

func TestConsumerCleanup(t *testing.T) {
	f := newConsumerFixture()
	f.reg.Cleanup()

	f.reg.Consume(t.Context(), announce([3]string{"a1", "v1", "bob"}, [3]string{"a2", "", "carol"}))
	f.reg.Cleanup()

	assert.Zero(t, f.reg.Count())
	assert.Zero(t, f.tm.Count())
	for _, tr := range f.dev.Transports() {
		assert.True(t, tr.Closed())
		for _, c := range tr.Consumers() {
			assert.True(t, c.Closed())
		}
	}
}

func TestBundlesInArrivalOrder(t *testing.T) {
	f := newConsumerFixture()
	f.reg.Consume(t.Context(), announce([3]string{"a1", "", "bob"}))
	f.reg.Consume(t.Context(), announce([3]string{"a2", "", "carol"}))
	f.reg.Consume(t.Context(), announce([3]string{"a3", "", "dave"}))

	bundles := f.reg.Bundles()
	require.Len(t, bundles, 3)
	assert.Equal(t, "a1", bundles[0].AudioID)
	assert.Equal(t, "a2", bundles[1].AudioID)
	assert.Equal(t, "a3", bundles[2].AudioID)
}
