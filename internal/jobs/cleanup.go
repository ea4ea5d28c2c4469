package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/persistence"
)

const cleanupTimeout = 30 * time.Second

// Task deletes stale rows and reports how many it removed.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// ExpiredSessions sweeps persisted sessions older than maxAge.
func ExpiredSessions(expirer persistence.Expirer, maxAge time.Duration) Task {
	return Task{
		Name: "persisted sessions",
		Run: func(ctx context.Context) (int64, error) {
			return expirer.DeleteExpired(ctx, maxAge)
		},
	}
}

// ExpiredConversations sweeps mock backend conversations idle for maxAge.
func ExpiredConversations(expirer persistence.Expirer, maxAge time.Duration) Task {
	return Task{
		Name: "mock conversations",
		Run: func(ctx context.Context) (int64, error) {
			return expirer.DeleteExpired(ctx, maxAge)
		},
	}
}

type CleanupJob struct {
	tasks    []Task
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

func NewCleanupJob(interval time.Duration, tasks ...Task) *CleanupJob {
	return &CleanupJob{
		tasks:    tasks,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Int("tasks", len(j.tasks)).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		log.Info().Msg("cleanup job stopped")
	})
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	for _, task := range j.tasks {
		j.runCleanup(ctx, task.Name, task.Run)
	}
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
