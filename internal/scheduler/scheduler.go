// Package scheduler runs the engine's periodic jobs: polling the billing
// service for invoice status transitions and sweeping the catalog for
// low-stock medications.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/clinicore/dispensary/internal/config"
	"github.com/clinicore/dispensary/internal/domain/models"
	"github.com/clinicore/dispensary/internal/service/catalog"
	"github.com/clinicore/dispensary/internal/service/dispense"
	"github.com/clinicore/dispensary/pkg/clients/alerts"
	"github.com/clinicore/dispensary/pkg/clients/billing"
)

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron       *cron.Cron
	catalogSvc *catalog.Service
	coord      *dispense.Coordinator
	billing    billing.Client
	notifier   alerts.Notifier
	cfg        config.Config
	logger     *zap.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(cfg config.Config, catalogSvc *catalog.Service, coord *dispense.Coordinator, billingClient billing.Client, notifier alerts.Notifier, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = alerts.NopNotifier{}
	}

	return &Scheduler{
		cron:       cron.New(),
		catalogSvc: catalogSvc,
		coord:      coord,
		billing:    billingClient,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler")

	if _, err := s.cron.AddFunc(s.cfg.Billing.PollSchedule, s.pollInvoiceStatuses); err != nil {
		s.logger.Error("failed to schedule billing poll", zap.Error(err))
	}
	if _, err := s.cron.AddFunc(s.cfg.Alerts.SweepSchedule, s.sweepLowStock); err != nil {
		s.logger.Error("failed to schedule low stock sweep", zap.Error(err))
	}

	s.cron.Start()
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	s.cron.Stop()
}

// pollInvoiceStatuses advances orders waiting on payment by observing the
// billing collaborator's invoice statuses.
func (s *Scheduler) pollInvoiceStatuses() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	orders, err := s.coord.ListPendingPayment(ctx)
	if err != nil {
		s.logger.Error("failed to list pending orders", zap.Error(err))
		return
	}

	for _, order := range orders {
		status, err := s.billing.GetInvoiceStatus(ctx, order.InvoiceID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				s.logger.Warn("invoice unknown to billing service",
					zap.String("order_id", order.ID),
					zap.String("invoice_id", order.InvoiceID))
				continue
			}
			s.logger.Error("failed to fetch invoice status",
				zap.String("invoice_id", order.InvoiceID),
				zap.Error(err))
			continue
		}

		if err := s.coord.SyncInvoiceStatus(ctx, order.ID, status); err != nil {
			s.logger.Error("failed to apply invoice status",
				zap.String("order_id", order.ID),
				zap.String("invoice_status", string(status)),
				zap.Error(err))
		}
	}
}

// sweepLowStock walks the catalog and alerts on medications at or below
// their reorder threshold.
func (s *Scheduler) sweepLowStock() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	meds, err := s.catalogSvc.ListMedications(ctx)
	if err != nil {
		s.logger.Error("failed to list medications", zap.Error(err))
		return
	}

	for _, med := range meds {
		level, err := s.catalogSvc.StockLevel(ctx, med.ID)
		if err != nil {
			s.logger.Error("failed to compute stock level", zap.String("medication_id", med.ID), zap.Error(err))
			continue
		}
		if !level.LowStock {
			continue
		}

		s.logger.Warn("medication below reorder threshold",
			zap.String("medication_id", med.ID),
			zap.String("name", med.Name),
			zap.Int("total_on_hand", level.TotalOnHand),
			zap.Int("reorder_threshold", level.ReorderThreshold))

		if err := s.notifier.NotifyLowStock(ctx, med, level); err != nil {
			s.logger.Error("failed to send low stock alert", zap.String("medication_id", med.ID), zap.Error(err))
		}
	}
}
