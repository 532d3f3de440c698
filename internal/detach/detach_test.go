package detach

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func TestGo_RunsTask(t *testing.T) {
	r := New(nil, 0)
	var ran atomic.Bool
	r.Go("noop", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	r.Wait()
	assert.True(t, ran.Load())
}

func TestGo_ErrorIsLoggedNotReturned(t *testing.T) {
	logger, logs := observed()
	r := New(logger, time.Second)
	r.Go("usage", func(ctx context.Context) error {
		return errors.New("insert failed")
	})
	r.Wait()

	entries := logs.FilterMessage("detached task failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "usage", entries[0].ContextMap()["task"])
	assert.Contains(t, entries[0].ContextMap()["error"], "insert failed")
}

func TestGo_RecoversPanic(t *testing.T) {
	logger, logs := observed()
	r := New(logger, time.Second)
	r.Go("boom", func(ctx context.Context) error {
		panic("nil map")
	})
	r.Wait()

	entries := logs.FilterMessage("detached task failed").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "panic: nil map")
}

func TestGo_ContextHasTimeout(t *testing.T) {
	r := New(nil, 50*time.Millisecond)
	var deadlineSet atomic.Bool
	r.Go("deadline", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		deadlineSet.Store(ok)
		<-ctx.Done()
		return ctx.Err()
	})
	r.Wait()
	assert.True(t, deadlineSet.Load())
}

func TestShutdown_WaitsForTasks(t *testing.T) {
	r := New(nil, time.Second)
	release := make(chan struct{})
	r.Go("slow", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.Shutdown(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detach: shutdown")

	close(release)
	require.NoError(t, r.Shutdown(context.Background()))
}
