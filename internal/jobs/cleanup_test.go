package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockExpirer struct {
	calls  atomic.Int32
	maxAge time.Duration
	count  int64
}

func (m *mockExpirer) DeleteExpired(ctx context.Context, maxAge time.Duration) (int64, error) {
	m.calls.Add(1)
	m.maxAge = maxAge
	return m.count, nil
}

func TestCleanupJobRunsAllTasks(t *testing.T) {
	expirer := &mockExpirer{count: 3}
	var failing atomic.Int32

	job := NewCleanupJob(time.Hour,
		ExpiredSessions(expirer, 24*time.Hour),
		Task{Name: "broken", Run: func(context.Context) (int64, error) {
			failing.Add(1)
			return 0, errors.New("db down")
		}},
	)

	job.cleanup()

	assert.Equal(t, int32(1), expirer.calls.Load())
	assert.Equal(t, 24*time.Hour, expirer.maxAge)
	assert.Equal(t, int32(1), failing.Load(), "a failing task does not stop the others")
}

func TestCleanupJobStartStop(t *testing.T) {
	expirer := &mockExpirer{}
	job := NewCleanupJob(10*time.Millisecond, ExpiredSessions(expirer, time.Minute))

	job.Start()
	assert.Eventually(t, func() bool { return expirer.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	job.Stop()
	job.Stop()

	// allow an in-flight tick to finish before sampling
	time.Sleep(20 * time.Millisecond)
	after := expirer.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, expirer.calls.Load())
}

func TestExpiredConversationsTask(t *testing.T) {
	expirer := &mockExpirer{count: 2}
	task := ExpiredConversations(expirer, 6*time.Hour)

	n, err := task.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 6*time.Hour, expirer.maxAge)
	assert.Equal(t, "mock conversations", task.Name)
}
