package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestManager_ShutdownRunsInReverseOrder(t *testing.T) {
	m := New(time.Second, zap.NewNop())

	var order []string
	m.Add("first", func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	m.Add("second", func(ctx context.Context) error {
		order = append(order, "second")
		return errors.New("boom")
	})
	m.Add("third", func(ctx context.Context) error {
		order = append(order, "third")
		return nil
	})

	m.Shutdown()
	m.Shutdown()

	// ошибка одной функции не мешает остальным, повторный Shutdown ничего не делает
	require.Equal(t, []string{"third", "second", "first"}, order)
}

func TestManager_WaitContextStopsOnCancel(t *testing.T) {
	m := New(time.Second, zap.NewNop())

	called := make(chan struct{})
	m.Add("closer", CloseCloser(closerFunc(func() error {
		close(called)
		return nil
	})))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m.WaitContext(ctx)

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("shutdown function was not called")
	}
}

func TestManager_FunctionGetsDeadline(t *testing.T) {
	m := New(50*time.Millisecond, zap.NewNop())

	var hasDeadline bool
	m.Add("deadline", func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})

	m.Shutdown()
	require.True(t, hasDeadline)
}
