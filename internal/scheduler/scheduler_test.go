package scheduler

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

	"github.com/rendis/mabelstudio/internal/streaming"
	"github.com/rendis/mabelstudio/pkg/schema"
)

type mockMaintainer struct {
	mu        sync.Mutex
	keeps     []int
	vacuums   int
	pruneErr  error
	pruneRows int64
}

func (m *mockMaintainer) PruneRevisions(_ context.Context, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keeps = append(m.keeps, keep)
	return m.pruneRows, m.pruneErr
}

func (m *mockMaintainer) Vacuum(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vacuums++
	return nil
}

func (m *mockMaintainer) runs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vacuums
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewScheduler_InvalidCron(t *testing.T) {
	_, err := NewScheduler(&mockMaintainer{}, Config{Cron: "not a cron"}, nil, testLogger())
	require.Error(t, err)
	var se *schema.StudioError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, schema.ErrCodeValidation, se.Code)
}

func TestParseCron(t *testing.T) {
	sched, err := ParseCron("0 3 * * *")
	require.NoError(t, err)
	from := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC), sched.Next(from))

	_, err = ParseCron("@daily")
	require.NoError(t, err)
}

func TestRunOnce(t *testing.T) {
	m := &mockMaintainer{pruneRows: 7}
	hub := streaming.NewMemoryHub()
	ch, cancel, err := hub.Subscribe(context.Background(), streaming.Filter{})
	require.NoError(t, err)
	defer cancel()

	s, err := NewScheduler(m, Config{Retention: 50}, hub, testLogger())
	require.NoError(t, err)

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Pruned)
	assert.True(t, res.Vacuumed)
	assert.Equal(t, []int{50}, m.keeps)
	assert.Same(t, res, s.LastResult())

	select {
	case ev := <-ch:
		assert.Equal(t, schema.EventRevisionsPruned, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected maintenance event")
	}
}

func TestRunOnce_PruneError(t *testing.T) {
	m := &mockMaintainer{pruneErr: errors.New("disk full")}
	s, err := NewScheduler(m, Config{Retention: 5}, nil, testLogger())
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, m.runs(), "vacuum is skipped when pruning fails")
	assert.Nil(t, s.LastResult())
}

func TestStart_DisabledWithoutCron(t *testing.T) {
	s, err := NewScheduler(&mockMaintainer{}, Config{}, nil, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.NextRun().IsZero())
	require.NoError(t, s.Stop())
}

func TestStart_RunsWhenDue(t *testing.T) {
	m := &mockMaintainer{}
	s, err := NewScheduler(m, Config{Cron: "* * * * *", PollInterval: 10 * time.Millisecond}, nil, testLogger())
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	var clockMu sync.Mutex
	clock := base
	s.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return clock
	}

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.Equal(t, base.Add(30*time.Second), s.NextRun())

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, m.runs(), "not due yet")

	clockMu.Lock()
	clock = base.Add(time.Minute)
	clockMu.Unlock()

	require.Eventually(t, func() bool { return m.runs() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, base.Add(90*time.Second), s.NextRun())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, m.runs(), "runs once per due slot")
}

func TestStart_Twice(t *testing.T) {
	s, err := NewScheduler(&mockMaintainer{}, Config{Cron: "0 3 * * *"}, nil, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Error(t, s.Start(context.Background()))
}

func TestStop_Idempotent(t *testing.T) {
	s, err := NewScheduler(&mockMaintainer{}, Config{Cron: "0 3 * * *"}, nil, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.True(t, s.NextRun().IsZero())
}
