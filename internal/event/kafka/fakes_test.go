package kafka

import (
	"context"
	"errors"
	"sync"

	"github.com/segmentio/kafka-go"
)

var errBroker = errors.New("broker unavailable")

// fakeWriter запоминает сообщения; первые failures вызовов возвращают errBroker
type fakeWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	messages []kafka.Message
	failFor  map[string]bool // ключи, публикация которых всегда падает
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.calls++
	if w.calls <= w.failures {
		return errBroker
	}
	for _, m := range msgs {
		if w.failFor[string(m.Key)] {
			return errBroker
		}
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func (w *fakeWriter) published() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]kafka.Message, len(w.messages))
	copy(out, w.messages)
	return out
}

type countingMetrics struct {
	mu       sync.Mutex
	outbox   map[string]int
	consumed map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{outbox: map[string]int{}, consumed: map[string]int{}}
}

func (m *countingMetrics) ObserveOutboxEvent(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbox[result]++
}

func (m *countingMetrics) ObserveConsumedMessage(topic, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumed[result]++
}

type releaserFunc func(ctx context.Context, id string) error

func (f releaserFunc) Release(ctx context.Context, id string) error { return f(ctx, id) }

// fakeReader отдаёт сообщения по очереди, затем блокируется до отмены ctx
type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	onCommit  func(committed []int64)
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		m := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	committed := append([]int64(nil), r.committed...)
	r.mu.Unlock()

	if r.onCommit != nil {
		r.onCommit(committed)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}
