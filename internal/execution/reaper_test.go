package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/bullpen/internal/db/dbtest"
	"github.com/zulandar/bullpen/internal/metrics"
	"github.com/zulandar/bullpen/internal/models"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewReaper_Validation(t *testing.T) {
	db := dbtest.Open(t)

	_, err := NewReaper(db, "not a cron expr", time.Minute, zap.NewNop(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reaper schedule")

	_, err = NewReaper(db, "* * * * *", 0, zap.NewNop(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stale_after")
}

func TestReaper_Sweep(t *testing.T) {
	db := dbtest.Open(t)
	core, logs := observer.New(zap.WarnLevel)

	r, err := NewReaper(db, "*/10 * * * *", 30*time.Minute, zap.New(core), metrics.NewMetrics())
	require.NoError(t, err)

	e := mustStart(t, db, "user-1", "agent-1", "stuck")
	require.NoError(t, db.Model(&models.AgentExecution{}).
		Where("id = ?", e.ID).
		Update("created_at", time.Now().Add(-time.Hour)).Error)

	assert.Equal(t, int64(1), r.Sweep())
	assert.Equal(t, int64(0), r.Sweep())
	assert.Equal(t, 1, logs.FilterMessage("reaped abandoned executions").Len())
}

func TestReaper_NilLogger(t *testing.T) {
	db := dbtest.Open(t)
	r, err := NewReaper(db, "*/10 * * * *", 30*time.Minute, nil, nil)
	require.NoError(t, err)

	e := mustStart(t, db, "user-1", "agent-1", "stuck")
	require.NoError(t, db.Model(&models.AgentExecution{}).
		Where("id = ?", e.ID).
		Update("created_at", time.Now().Add(-time.Hour)).Error)
	assert.Equal(t, int64(1), r.Sweep())

	require.NoError(t, db.Migrator().DropTable(&models.AgentExecution{}))
	assert.Equal(t, int64(0), r.Sweep())
}

func TestReaper_RunStopsOnCancel(t *testing.T) {
	db := dbtest.Open(t)
	r, err := NewReaper(db, "* * * * *", time.Minute, zap.NewNop(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
