package aicontext

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/creastat/aicontext/record"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepRemovesStaleRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stale := f.resolve(t)

	f.clock.Advance(31 * day)
	fresh, err := f.engine.ResolveOrCreate(ctx, "T1", record.ContextEmail, "S2")
	require.NoError(t, err)

	log, hook := test.NewNullLogger()
	sweeper := NewSweeper(f.store, WithSweepClock(f.clock.Now), WithSweepLogger(log))

	removed, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	got, err := f.store.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = f.store.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, 1, entry.Data["removed"])
}

func TestSweepInactiveWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := f.resolve(t)
	_, err := f.engine.Deactivate(ctx, rec)
	require.NoError(t, err)

	sweeper := NewSweeper(f.store, WithSweepClock(f.clock.Now), WithSweepLogger(logrus.New()),
		WithRetention(0, 2*day))

	f.clock.Advance(day)
	removed, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	f.clock.Advance(2 * day)
	removed, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestSweepStoreFailure(t *testing.T) {
	sweeper := NewSweeper(failingStore{}, WithSweepLogger(logrus.New()))

	_, err := sweeper.Sweep(context.Background())
	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "sweep", serr.Op)
}

func TestSweeperStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := NewSweeper(failingStore{}, WithSchedule("not a schedule"), WithSweepLogger(logrus.New()))
	assert.Error(t, sweeper.Start(ctx))

	sweeper = NewSweeper(failingStore{}, WithSchedule("@every 1h"), WithSweepLogger(logrus.New()))
	require.NoError(t, sweeper.Start(ctx))
	assert.Error(t, sweeper.Start(ctx), "second start")

	done := make(chan struct{})
	go func() {
		sweeper.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestCronLogger(t *testing.T) {
	log, hook := test.NewNullLogger()
	logger := cronLogger{log: log}

	logger.Error(errors.New("boom"), "job failed", "entry", 3, "dangling")
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, 3, entry.Data["entry"])
	assert.NotContains(t, entry.Data, "dangling")
}

type failingStore struct{ record.Store }

func (failingStore) DeleteExpired(context.Context, record.RetentionPolicy) (int, error) {
	return 0, errors.New("connection refused")
}
