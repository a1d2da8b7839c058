package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RetentionPruner periodically deletes journal entries older than the retention
type RetentionPruner struct {
	logger    *zap.Logger
	journal   Journal
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	now       func() time.Time
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}

// NewRetentionPruner creates a pruner running on a cron schedule such as "@every 1h"
func NewRetentionPruner(journal Journal, retention time.Duration, schedule string, logger *zap.Logger) *RetentionPruner {
	logger = logger.Named("journal-pruner")
	cronLog := &cronLogger{logger: logger.Named("cron")}

	return &RetentionPruner{
		logger:    logger,
		journal:   journal,
		retention: retention,
		schedule:  schedule,
		cron:      cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog))),
		now:       time.Now,
	}
}

// Start schedules pruning and starts the cron runner
func (p *RetentionPruner) Start(ctx context.Context) error {
	_, err := p.cron.AddFunc(p.schedule, func() {
		if _, err := p.Prune(ctx); err != nil {
			p.logger.Error("Failed to prune journal", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", p.schedule, err)
	}

	p.cron.Start()
	p.logger.Info("Journal pruner started",
		zap.String("schedule", p.schedule),
		zap.Duration("retention", p.retention))
	return nil
}

// Stop stops the cron runner and waits for a running prune to finish
func (p *RetentionPruner) Stop() {
	<-p.cron.Stop().Done()
}

// Prune deletes entries older than the retention
func (p *RetentionPruner) Prune(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)
	deleted, err := p.journal.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	p.logger.Info("Journal pruned",
		zap.Int64("deleted", deleted),
		zap.Time("cutoff", cutoff))
	return deleted, nil
}
