package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionSweep prunes session index entries whose records expired.
	TaskSessionSweep = "session:sweep"
)

// NewSessionSweepTask constructs an Asynq task. The sweep carries no
// payload; it always walks the full index keyspace.
func NewSessionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskSessionSweep, nil)
}
