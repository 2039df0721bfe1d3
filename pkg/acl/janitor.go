package acl

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/paperbase/paperbase/pkg/observability"
)

// Janitor purges grants whose target row no longer exists. Target deletion
// normally cascades through Store.DeleteForTarget, but out-of-band deletes
// (bulk imports, manual surgery) leave orphans behind; the janitor is the
// administrative sweep for those.
type Janitor struct {
	db       *sql.DB
	registry *Registry
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewJanitor creates a janitor over the registered types.
func NewJanitor(db *sql.DB, registry *Registry, logger *observability.Logger) *Janitor {
	return &Janitor{db: db, registry: registry, logger: logger}
}

// SetMetrics sets the metrics collector for purge runs.
func (j *Janitor) SetMetrics(m *observability.Metrics) {
	j.metrics = m
}

// Run purges orphaned grants for every registered type, sweeping types
// concurrently. Returns the total number of grant rows removed.
func (j *Janitor) Run(ctx context.Context) (int64, error) {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(4)

	counts := make(chan int64, len(j.registry.Types()))
	for _, typeID := range j.registry.Types() {
		typeID := typeID
		group.Go(func() error {
			purged, err := j.purgeType(ctx, typeID)
			if err != nil {
				return err
			}
			counts <- purged
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return 0, err
	}
	close(counts)

	var total int64
	for purged := range counts {
		total += purged
	}

	if j.logger != nil && total > 0 {
		j.logger.WithField("purged", total).Info("purged orphaned access grants")
	}
	if j.metrics != nil {
		j.metrics.JanitorPurgedTotal.Add(float64(total))
	}
	return total, nil
}

func (j *Janitor) purgeType(ctx context.Context, typeID TypeID) (int64, error) {
	info, err := j.registry.TypeInfo(typeID)
	if err != nil {
		return 0, err
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM access_grant_permissions
		WHERE grant_id IN (
			SELECT id FROM access_grants
			WHERE target_type = $1
			  AND target_id NOT IN (SELECT %s FROM %s)
		)`, info.IDColumn, info.Table),
		string(typeID),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge orphaned permissions for %s: %w", typeID, err)
	}

	result, err := tx.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM access_grants
		WHERE target_type = $1
		  AND target_id NOT IN (SELECT %s FROM %s)`, info.IDColumn, info.Table),
		string(typeID),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge orphaned grants for %s: %w", typeID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged grants for %s: %w", typeID, err)
	}
	return purged, nil
}

// Schedule registers the janitor with a cron runner. The consuming process
// owns starting and stopping the runner.
func (j *Janitor) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		if _, err := j.Run(context.Background()); err != nil && j.logger != nil {
			j.logger.WithError(err).Error("janitor run failed")
		}
	})
}
