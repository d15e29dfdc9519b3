package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBackup is the task type for a database backup.
	TaskBackup = "backup:run"
)

// BackupPayload selects the backup format. An empty format picks the
// native one for the backend.
type BackupPayload struct {
	Format string `json:"format,omitempty"`
}

// NewBackupTask constructs a backup task.
func NewBackupTask(payload BackupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBackup, data, asynq.Queue(QueueDefault), asynq.MaxRetry(2)), nil
}
