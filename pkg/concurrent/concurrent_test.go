package concurrent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskGroup_WaitsForTasks(t *testing.T) {
	g := NewTaskGroup(nil)
	var done atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, g.Go(func() {
			time.Sleep(5 * time.Millisecond)
			done.Add(1)
		}))
	}
	g.Wait()
	assert.Equal(t, int32(10), done.Load())
}

func TestTaskGroup_RecoversPanics(t *testing.T) {
	recovered := make(chan any, 1)
	g := NewTaskGroup(func(r any) { recovered <- r })
	require.NoError(t, g.Go(func() { panic("handler blew up") }))
	g.Wait()
	select {
	case r := <-recovered:
		assert.Equal(t, "handler blew up", r)
	default:
		t.Fatal("panic was not reported")
	}
}

func TestTaskGroup_CloseRejectsNewTasks(t *testing.T) {
	g := NewTaskGroup(nil)
	g.Close()
	assert.ErrorIs(t, g.Go(func() {}), ErrGroupClosed)
}

func TestForEachIndependent_JoinsErrors(t *testing.T) {
	e1 := errors.New("first")
	e3 := errors.New("third")
	var calls atomic.Int32
	err := ForEachIndependent(context.Background(), []int{1, 2, 3}, func(ctx context.Context, i int) error {
		calls.Add(1)
		assert.NoError(t, ctx.Err())
		switch i {
		case 1:
			return e1
		case 3:
			return e3
		}
		return nil
	})
	assert.Equal(t, int32(3), calls.Load())
	assert.ErrorIs(t, err, e1)
	assert.ErrorIs(t, err, e3)
}
