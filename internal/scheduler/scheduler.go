// Package scheduler runs the periodic stock reconciliation sweep.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"inventario/backend/internal/service"
)

type Scheduler struct {
	cron   *cron.Cron
	svc    *service.Service
	logger *zap.Logger
}

func New(svc *service.Service, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(),
		svc:    svc,
		logger: logger,
	}
}

// Start registers the reconciliation job under the given cron schedule and
// starts the ticker. The job is read-only: it logs drift, it never repairs it.
func (s *Scheduler) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, s.runReconcile)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("reconciliation scheduled", zap.String("schedule", schedule))
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runReconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	discrepancies, err := s.svc.ReconcileStock(ctx)
	if err != nil {
		s.logger.Error("stock reconciliation failed", zap.Error(err))
		return
	}
	if len(discrepancies) > 0 {
		s.logger.Warn("stock reconciliation found drift", zap.Int("products", len(discrepancies)))
	}
}
