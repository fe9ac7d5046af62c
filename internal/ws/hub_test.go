package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	mu     sync.Mutex
	got    [][]byte
	err    error
	closed bool
}

func (f *fakeSubscriber) Send(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, b)
	return nil
}

func (f *fakeSubscriber) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSubscriber) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.got))
	for i, b := range f.got {
		out[i] = string(b)
	}
	return out
}

func TestHubBroadcastsPerTopic(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	a, b := &fakeSubscriber{}, &fakeSubscriber{}
	hub.Register(TopicProjects, a)
	hub.Register("other", b)

	hub.Broadcast(TopicProjects, []byte("snapshot"))
	assert.Equal(t, 1, hub.Subscribers(TopicProjects))

	assert.Equal(t, []string{"snapshot"}, a.messages())
	assert.Empty(t, b.messages())
}

func TestHubDropsFailingSubscriber(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	bad := &fakeSubscriber{err: errors.New("broken pipe")}
	hub.Register(TopicProjects, bad)

	hub.Broadcast(TopicProjects, []byte("x"))
	assert.Zero(t, hub.Subscribers(TopicProjects))
	bad.mu.Lock()
	assert.True(t, bad.closed)
	bad.mu.Unlock()
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := NewHub()
	sub := &fakeSubscriber{}
	hub.Register(TopicProjects, sub)
	require.Equal(t, 1, hub.Subscribers(TopicProjects))

	hub.Close()
	require.Eventually(t, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return sub.closed
	}, time.Second, 10*time.Millisecond)
	hub.Broadcast(TopicProjects, []byte("ignored"))
	assert.Zero(t, hub.Subscribers(TopicProjects))
}

func TestFeedBroadcastsOnChange(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	sub := &fakeSubscriber{}
	hub.Register(TopicProjects, sub)

	changes := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	calls := 0
	go func() {
		defer close(done)
		Feed(ctx, hub, TopicProjects, changes, func(context.Context) ([]byte, error) {
			calls++
			return []byte(`{"projects":[]}`), nil
		}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	changes <- struct{}{}
	changes <- struct{}{}
	require.Eventually(t, func() bool { return len(sub.messages()) == 2 }, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 2, calls)
}
