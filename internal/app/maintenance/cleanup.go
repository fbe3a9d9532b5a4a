package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/revaristo12/chatliver1404/internal/models"
	"github.com/revaristo12/chatliver1404/pkg/logger"
)

const (
	defaultRequestRetentionDays = 90
	defaultInviteSpec           = "@hourly"
	defaultRequestSpec          = "@daily"
)

// Cleaner runs background maintenance: deactivating invites past their
// expiry and pruning access requests that were processed long ago.
type Cleaner struct {
	db        *gorm.DB
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int

	inviteSchedule  string
	requestSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithRequestRetentionDays adjusts how long processed access requests are kept.
func WithRequestRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithInviteSchedule overrides the cron expression for invite deactivation.
func WithInviteSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.inviteSchedule = spec
		}
	}
}

// WithRequestSchedule overrides the cron expression for access request pruning.
func WithRequestSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.requestSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(db *gorm.DB, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:              db,
		now:             time.Now,
		retention:       defaultRequestRetentionDays,
		inviteSchedule:  defaultInviteSpec,
		requestSchedule: defaultRequestSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the cleanup jobs and launches the scheduler.
func (c *Cleaner) Start() error {
	if c.db == nil {
		return nil
	}

	if _, err := c.cron.AddFunc(c.inviteSchedule, func() {
		if _, err := DeactivateExpiredInvites(context.Background(), c.db, c.now()); err != nil {
			c.log.Warn("invite cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	if c.retention > 0 {
		if _, err := c.cron.AddFunc(c.requestSchedule, func() {
			cutoff := c.now().AddDate(0, 0, -c.retention)
			if _, err := PruneProcessedRequests(context.Background(), c.db, cutoff); err != nil {
				c.log.Warn("access request cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all cleanup routines sequentially. Used in tests and
// during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.db == nil {
		return nil
	}

	var errs error
	if _, err := DeactivateExpiredInvites(ctx, c.db, c.now()); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.retention > 0 {
		cutoff := c.now().AddDate(0, 0, -c.retention)
		if _, err := PruneProcessedRequests(ctx, c.db, cutoff); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// DeactivateExpiredInvites flips still-active invites whose expiry has
// passed. The rows stay around for auditing; deletion is a separate,
// explicit operation.
func DeactivateExpiredInvites(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("deactivate invites: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := db.WithContext(ctx).
		Model(&models.RoomInvite{}).
		Where("is_active = ? AND expires_at < ?", true, now).
		Update("is_active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("deactivate invites: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// PruneProcessedRequests deletes approved and rejected access requests
// processed before the cutoff. Pending requests are never touched.
func PruneProcessedRequests(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("prune requests: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := db.WithContext(ctx).
		Where("status <> ? AND processed_at IS NOT NULL AND processed_at < ?", models.RequestPending, cutoff).
		Delete(&models.AccessRequest{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune requests: %w", result.Error)
	}
	return result.RowsAffected, nil
}
