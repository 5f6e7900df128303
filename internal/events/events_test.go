package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"apartel/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	got    []BookingEvent
	block  chan struct{}
	fail   bool
	closed bool
}

func (s *recordingSink) Send(ctx context.Context, event BookingEvent) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, event)
	if s.fail {
		return errors.New("broker down")
	}
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func event(id string) BookingEvent {
	return BookingEvent{
		Type:       TypeBookingCreated,
		TenantID:   "t1",
		Booking:    models.Booking{TenantModel: models.TenantModel{TenantID: "t1", ID: id}},
		OccurredAt: time.Now(),
	}
}

func TestAsyncPublisherDeliversBeforeClose(t *testing.T) {
	sink := &recordingSink{}
	p := NewAsyncPublisher(sink, 16, 2)

	for i := 0; i < 10; i++ {
		p.Publish(event("b"))
	}
	require.NoError(t, p.Close())

	assert.Equal(t, 10, sink.count())
	assert.True(t, sink.closed)
}

func TestAsyncPublisherDropsWhenFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	p := NewAsyncPublisher(sink, 1, 1)

	done := make(chan struct{})
	go func() {
		// 一个被工作者取走阻塞，一个占满缓冲，其余被丢弃；均不得阻塞
		for i := 0; i < 50; i++ {
			p.Publish(event("b"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	close(sink.block)
	require.NoError(t, p.Close())
	assert.LessOrEqual(t, sink.count(), 2)
	assert.GreaterOrEqual(t, sink.count(), 1)
}

func TestAsyncPublisherSurvivesSinkErrors(t *testing.T) {
	sink := &recordingSink{fail: true}
	p := NewAsyncPublisher(sink, 4, 1)

	p.Publish(event("b1"))
	p.Publish(event("b2"))
	require.NoError(t, p.Close())

	assert.Equal(t, 2, sink.count())
}

func TestPublishAfterCloseIsIgnored(t *testing.T) {
	sink := &recordingSink{}
	p := NewAsyncPublisher(sink, 4, 1)
	require.NoError(t, p.Close())

	assert.NotPanics(t, func() { p.Publish(event("late")) })
	assert.NoError(t, p.Close())
	assert.Equal(t, 0, sink.count())
}
