package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	skafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

// fakeReader hands out queued messages, then blocks until the context ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []skafka.Message
	committed []int64
}

func (f *fakeReader) FetchMessage(ctx context.Context) (skafka.Message, error) {
	f.mu.Lock()
	if len(f.queue) > 0 {
		m := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return skafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...skafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func (f *fakeReader) committedOffsets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

func TestConsumer_CommitsOnlyHandledMessages(t *testing.T) {
	fr := &fakeReader{queue: []skafka.Message{
		{Offset: 1, Value: []byte("ok")},
		{Offset: 2, Value: []byte("fail")},
		{Offset: 3, Value: []byte("ok")},
	}}
	c := NewConsumerWithReader(fr, "charge.events", "test-group")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var handled int
	go func() {
		defer close(done)
		c.Start(ctx, func(ctx context.Context, key, value []byte) error {
			handled++
			if string(value) == "fail" {
				return errors.New("downstream unavailable")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return len(fr.committedOffsets()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	require.Equal(t, 3, handled)
	require.Equal(t, []int64{1, 3}, fr.committedOffsets())
}
