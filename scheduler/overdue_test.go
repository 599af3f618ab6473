package scheduler

import (
	"context"
	"errors"
	"testing"

	"library-desk/library"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	reloads   int
	reloadErr error
	loans     []library.OverdueLoan
}

func (f *fakeSource) Reload() error {
	f.reloads++
	return f.reloadErr
}

func (f *fakeSource) Overdue() []library.OverdueLoan { return f.loans }

func TestCheckReloadsAndReports(t *testing.T) {
	src := &fakeSource{loans: []library.OverdueLoan{{DaysBorrowed: 9}}}
	var reported []library.OverdueLoan
	log, _ := logtest.NewNullLogger()
	w := NewOverdueWatcher(src, "0 9 * * *", func(l []library.OverdueLoan) { reported = l }, log)

	got := w.Check()
	assert.Equal(t, 1, src.reloads)
	assert.Equal(t, src.loans, got)
	assert.Equal(t, src.loans, reported)
}

func TestCheckLogsReloadFailure(t *testing.T) {
	src := &fakeSource{reloadErr: errors.New("disk gone")}
	log, hook := logtest.NewNullLogger()
	w := NewOverdueWatcher(src, "0 9 * * *", nil, log)

	assert.Empty(t, w.Check())
	require.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, "reload before overdue check failed", hook.AllEntries()[0].Message)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	w := NewOverdueWatcher(&fakeSource{}, "whenever", nil, nil)
	err := w.Start(context.Background())
	require.Error(t, err)
	assert.False(t, w.IsRunning())
}

func TestStartStop(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	w := NewOverdueWatcher(&fakeSource{}, "@daily", nil, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	assert.True(t, w.IsRunning())
	require.NoError(t, w.Start(ctx), "starting twice is a no-op")

	w.Stop()
	assert.False(t, w.IsRunning())
	w.Stop()
}

func TestRestartKeepsOneScheduledCheck(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	w := NewOverdueWatcher(&fakeSource{}, "@daily", nil, log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, w.Start(ctx))
		w.Stop()
	}
	require.NoError(t, w.Start(ctx))
	defer w.Stop()
	assert.Len(t, w.cron.Entries(), 1)
}
