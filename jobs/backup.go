package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/transfer"
)

// Backup formats.
const (
	FormatAuto     = ""
	FormatSQLite   = "sqlite"
	FormatSnapshot = "json"
)

const backupPrefix = "tillpoint_"

// JobObserver records job outcomes.
type JobObserver interface {
	ObserveJob(task string, started time.Time, err error)
}

// BackupConfig wires the backup job.
type BackupConfig struct {
	Manager  *db.Manager
	Transfer *transfer.Service
	Dir      string
	Keep     int
	Logger   *slog.Logger
	Observer JobObserver
}

// BackupJob writes timestamped copies of the database and prunes old ones.
type BackupJob struct {
	manager  *db.Manager
	transfer *transfer.Service
	dir      string
	keep     int
	logger   *slog.Logger
	observer JobObserver
	now      func() time.Time
}

// NewBackupJob constructs the job.
func NewBackupJob(cfg BackupConfig) *BackupJob {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	keep := cfg.Keep
	if keep <= 0 {
		keep = 10
	}
	return &BackupJob{
		manager:  cfg.Manager,
		transfer: cfg.Transfer,
		dir:      cfg.Dir,
		keep:     keep,
		logger:   logger,
		observer: cfg.Observer,
		now:      time.Now,
	}
}

// SetClock overrides the time source used for file names.
func (j *BackupJob) SetClock(now func() time.Time) { j.now = now }

// Run writes one backup and returns its path. The embedded backend copies
// the database file; the client-server backend, or an explicit json format,
// writes a transfer snapshot.
func (j *BackupJob) Run(ctx context.Context, format string) (path string, err error) {
	started := time.Now()
	defer func() {
		if j.observer != nil {
			j.observer.ObserveJob(TaskBackup, started, err)
		}
	}()
	if format == FormatAuto {
		format = FormatSnapshot
		if j.manager.Backend() == db.Embedded {
			format = FormatSQLite
		}
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return "", fmt.Errorf("jobs: backup dir: %w", err)
	}
	stamp := j.now().Format("20060102_150405")

	switch format {
	case FormatSQLite:
		if j.manager.Backend() != db.Embedded {
			return "", fmt.Errorf("jobs: sqlite backup needs the embedded backend")
		}
		path = filepath.Join(j.dir, backupPrefix+stamp+".db")
		err = j.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
			_, err := u.Exec(ctx, "VACUUM INTO ?", path)
			return err
		})
	case FormatSnapshot:
		path = filepath.Join(j.dir, backupPrefix+stamp+".json")
		err = j.writeSnapshot(ctx, path)
	default:
		return "", fmt.Errorf("jobs: unknown backup format %q", format)
	}
	if err != nil {
		return "", fmt.Errorf("jobs: backup: %w", err)
	}
	j.logger.Info("backup created", slog.String("path", path))

	pruned, err := j.prune(filepath.Ext(path))
	if err != nil {
		j.logger.Warn("backup prune failed", slog.Any("error", err))
	}
	for _, p := range pruned {
		j.logger.Info("old backup pruned", slog.String("path", p))
	}
	return path, nil
}

func (j *BackupJob) writeSnapshot(ctx context.Context, path string) error {
	if j.transfer == nil {
		return fmt.Errorf("snapshot backup needs a transfer service")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := j.transfer.WriteJSON(ctx, f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

// prune keeps the newest backups with ext. Names sort by their timestamp.
func (j *BackupJob) prune(ext string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(j.dir, backupPrefix+"*"+ext))
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	if len(matches) <= j.keep {
		return nil, nil
	}
	var removed []string
	for _, old := range matches[j.keep:] {
		if !strings.HasSuffix(old, ext) {
			continue
		}
		if err := os.Remove(old); err != nil {
			return removed, err
		}
		removed = append(removed, old)
	}
	return removed, nil
}

// Handle processes TaskBackup tasks.
func (j *BackupJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload BackupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("jobs: backup payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	_, err := j.Run(ctx, payload.Format)
	return err
}
