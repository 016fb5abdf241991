package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	logx "github.com/tanpawarit/agentic-support/pkg/logger"
)

// StaleWatcher periodically compares the policy document with the index and
// optionally rebuilds the index when they diverge.
type StaleWatcher struct {
	retriever   *Retriever
	path        string
	schedule    string
	autoRebuild bool

	cron   *cron.Cron
	stale  atomic.Bool
	logger zerolog.Logger
}

func NewStaleWatcher(retriever *Retriever, path, schedule string, autoRebuild bool) (*StaleWatcher, error) {
	if retriever == nil {
		return nil, errors.New("policy retriever is required")
	}
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return nil, errors.New("stale check schedule is required")
	}
	return &StaleWatcher{
		retriever:   retriever,
		path:        path,
		schedule:    schedule,
		autoRebuild: autoRebuild,
		cron:        cron.New(),
		logger:      logx.Component("policy_watcher"),
	}, nil
}

func (w *StaleWatcher) Start() error {
	if _, err := w.cron.AddFunc(w.schedule, func() {
		if _, err := w.Check(context.Background()); err != nil {
			w.logger.Error().Err(err).Msg("policy staleness job failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule policy staleness job %q: %w", w.schedule, err)
	}

	w.cron.Start()
	w.logger.Info().Str("schedule", w.schedule).Bool("auto_rebuild", w.autoRebuild).Msg("policy staleness job started")
	return nil
}

// Stop halts the schedule and waits for a running check to finish.
func (w *StaleWatcher) Stop() {
	<-w.cron.Stop().Done()
	w.logger.Info().Msg("policy staleness job stopped")
}

// Stale reports the result of the most recent check.
func (w *StaleWatcher) Stale() bool {
	return w.stale.Load()
}

// Check runs one staleness check. With auto rebuild on, a stale index is
// rebuilt and Check reports false once the rebuild succeeds.
func (w *StaleWatcher) Check(ctx context.Context) (bool, error) {
	stale, err := w.retriever.CheckStale(ctx, w.path)
	if err != nil {
		return false, err
	}
	if !stale {
		w.stale.Store(false)
		return false, nil
	}

	if !w.autoRebuild {
		w.stale.Store(true)
		w.logger.Warn().Str("document", w.path).Msg("policy index is stale")
		return true, nil
	}

	if err := w.retriever.Rebuild(ctx, w.path); err != nil {
		w.stale.Store(true)
		return true, fmt.Errorf("rebuild stale policy index: %w", err)
	}
	w.stale.Store(false)
	w.logger.Info().Str("document", w.path).Msg("stale policy index rebuilt")
	return false, nil
}
