package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	dailySchedule = "0 3 * * *"
	devSchedule   = "* * * * *"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PruneAuditLog deletes audit_log rows older than retentionDays.
// Returns the number of rows deleted.
func PruneAuditLog(ctx context.Context, db execer, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive (got: %d)", retentionDays)
	}

	tag, err := db.Exec(ctx, `
		DELETE FROM audit_log
		WHERE created_at < NOW() - INTERVAL '1 day' * $1
	`, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit log: %w", err)
	}

	return tag.RowsAffected(), nil
}

// RunRetentionJob prunes the audit log and logs the outcome.
func RunRetentionJob(ctx context.Context, db execer, auditDays int) error {
	log.Info().Int("audit_retention_days", auditDays).Msg("Starting retention job")

	startTime := time.Now()

	deleted, err := PruneAuditLog(ctx, db, auditDays)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune audit log")
		return fmt.Errorf("audit log cleanup failed: %w", err)
	}

	log.Info().
		Int64("audit_rows_deleted", deleted).
		Dur("duration", time.Since(startTime)).
		Msg("Retention job completed")

	return nil
}

// Schedule returns the cron expression for the retention job. Dev runs every minute.
func Schedule(dev bool) string {
	if dev {
		return devSchedule
	}
	return dailySchedule
}

// NewScheduler registers the retention job on a UTC cron scheduler. The caller starts and stops it.
func NewScheduler(pool *pgxpool.Pool, auditDays int, dev bool) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))

	_, err := c.AddFunc(Schedule(dev), func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Retention job panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := RunRetentionJob(ctx, pool, auditDays); err != nil {
			log.Error().Err(err).Msg("Retention job failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule retention job: %w", err)
	}

	return c, nil
}
