package service

import (
	"context"
	"time"

	checkoutrepo "fanline/internal/checkout/repository"
	"fanline/internal/reconciler/repository"
	stockrepo "fanline/internal/stock/repository"
	stockservice "fanline/internal/stock/service"
	"fanline/pkg/config"
	"fanline/pkg/kafka"
)

// SweepSummary is one sweep pass's accounting, logged after every run.
type SweepSummary struct {
	ExpiredQueue     int64
	ExpiredCheckouts int64
}

// AuditSummary is one deep reconciliation pass's accounting.
type AuditSummary struct {
	FlaggedNegative int
	FlaggedDrift    int
	SalesOpened     int64
	SalesClosed     int64
	SoldOut         int
}

// Reconciler owns every background repair loop: TTL sweeps, the stock audit,
// sale-status rolls and the settlement consumer. All passes are idempotent,
// so overlapping or restarted runs converge on the same state.
type Reconciler struct {
	sweeps   repository.SweepRepository
	units    stockrepo.UnitRepository
	stock    stockservice.StockService
	admin    stockservice.AdminService
	sessions checkoutrepo.SessionRepository
	cfg      *config.Config
}

func NewReconciler(
	sweeps repository.SweepRepository,
	units stockrepo.UnitRepository,
	stock stockservice.StockService,
	admin stockservice.AdminService,
	sessions checkoutrepo.SessionRepository,
	cfg *config.Config,
) *Reconciler {
	return &Reconciler{
		sweeps:   sweeps,
		units:    units,
		stock:    stock,
		admin:    admin,
		sessions: sessions,
		cfg:      cfg,
	}
}

// Run drives the sweep and audit tickers until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	sweepTicker := time.NewTicker(r.cfg.SweepInterval)
	defer sweepTicker.Stop()
	auditTicker := time.NewTicker(r.cfg.AuditInterval)
	defer auditTicker.Stop()

	r.cfg.Log.Info("Reconciler started",
		"sweep_interval", r.cfg.SweepInterval,
		"audit_interval", r.cfg.AuditInterval,
	)

	// One sweep up front so a restart repairs promptly.
	r.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.cfg.Log.Info("Reconciler stopping", "reason", ctx.Err())
			return
		case <-sweepTicker.C:
			r.sweepOnce(ctx)
		case <-auditTicker.C:
			r.auditOnce(ctx)
		}
	}
}

func (r *Reconciler) sweepOnce(ctx context.Context) {
	summary, err := r.RunSweep(ctx)
	if err != nil {
		r.cfg.Log.Error("Sweep failed", "error", err)
		return
	}
	r.cfg.Log.Info("Sweep completed",
		"expired_queue", summary.ExpiredQueue,
		"expired_checkouts", summary.ExpiredCheckouts,
	)
}

func (r *Reconciler) auditOnce(ctx context.Context) {
	summary, err := r.RunAudit(ctx)
	if err != nil {
		r.cfg.Log.Error("Audit failed", "error", err)
		return
	}
	r.cfg.Log.Info("Audit completed",
		"flagged_negative", summary.FlaggedNegative,
		"flagged_drift", summary.FlaggedDrift,
		"sales_opened", summary.SalesOpened,
		"sales_closed", summary.SalesClosed,
		"sold_out", summary.SoldOut,
	)
}

// RunSweep expires overdue waiting entries and reclaims overdue checkout
// sessions. Expiry is not a voluntary leave: no cooldown is set, the
// participant may rejoin at the back of the queue immediately.
func (r *Reconciler) RunSweep(ctx context.Context) (*SweepSummary, error) {
	now := time.Now().UTC()
	summary := &SweepSummary{}

	expired, err := r.sweeps.ExpireQueueEntries(ctx, now)
	if err != nil {
		return nil, err
	}
	summary.ExpiredQueue = expired

	reclaimed, err := r.sweeps.DeleteExpiredSessions(ctx, now)
	if err != nil {
		return nil, err
	}
	summary.ExpiredCheckouts = reclaimed

	return summary, nil
}

// RunAudit runs the stock integrity checks and rolls sale statuses.
// Integrity findings are recorded, never auto-repaired.
func (r *Reconciler) RunAudit(ctx context.Context) (*AuditSummary, error) {
	now := time.Now().UTC()
	summary := &AuditSummary{}

	negative, err := r.stock.AuditNegativeStock(ctx)
	if err != nil {
		r.cfg.Log.Error("Negative stock audit failed", "error", err)
	}
	summary.FlaggedNegative = negative

	drift, err := r.stock.AuditLedgerDrift(ctx)
	if err != nil {
		r.cfg.Log.Error("Ledger drift audit failed", "error", err)
	}
	summary.FlaggedDrift = drift

	opened, err := r.sweeps.OpenUpcomingSales(ctx, now)
	if err != nil {
		r.cfg.Log.Error("Failed to open upcoming sales", "error", err)
	}
	summary.SalesOpened = opened

	closed, err := r.sweeps.CloseElapsedSales(ctx, now)
	if err != nil {
		r.cfg.Log.Error("Failed to close elapsed sales", "error", err)
	}
	summary.SalesClosed = closed

	soldOut, err := r.rollSoldOut(ctx)
	if err != nil {
		r.cfg.Log.Error("Failed to roll sold-out resources", "error", err)
	}
	summary.SoldOut = soldOut

	return summary, nil
}

// rollSoldOut marks an on-sale resource sold out once every one of its units
// is out of stock. Per-resource failures are logged and skipped so one bad
// document never aborts the pass.
func (r *Reconciler) rollSoldOut(ctx context.Context) (int, error) {
	ids, err := r.sweeps.FindOnSaleResourceIDs(ctx)
	if err != nil {
		return 0, err
	}

	rolled := 0
	for _, id := range ids {
		units, err := r.units.FindByResource(ctx, id)
		if err != nil {
			r.cfg.Log.Error("Failed to load units for sold-out roll", "resource_id", id, "error", err)
			continue
		}
		if len(units) == 0 {
			continue
		}

		allOut := true
		for _, unit := range units {
			if unit.Stock > 0 {
				allOut = false
				break
			}
		}
		if !allOut {
			continue
		}

		if err := r.sweeps.MarkSoldOut(ctx, id); err != nil {
			r.cfg.Log.Error("Failed to mark resource sold out", "resource_id", id, "error", err)
			continue
		}
		rolled++
		r.cfg.Log.Info("Resource sold out", "resource_id", id)
	}
	return rolled, nil
}

// HandleOrderSettled consumes the payment workflow's settlement events:
// the order moves to paid and the participant's checkout slot returns to
// the pool.
func (r *Reconciler) HandleOrderSettled(ctx context.Context, msg kafka.Message) error {
	var event kafka.OrderSettledEvent
	if err := msg.DecodeValue(&event); err != nil {
		r.cfg.Log.Error("Failed to decode settlement event", "event_id", msg.GetEventID(), "error", err)
		// Undecodable payloads go to the DLQ via the consumer, not back
		// onto the topic.
		return err
	}

	if err := r.admin.SettleOrder(ctx, event.OrderID); err != nil {
		return err
	}

	if event.ResourceID != "" && event.ParticipantID != "" {
		if _, err := r.sessions.DeleteByPair(ctx, event.ResourceID, event.ParticipantID); err != nil {
			r.cfg.Log.Warn("Failed to release checkout session after settlement",
				"order_id", event.OrderID,
				"resource_id", event.ResourceID,
				"error", err,
			)
		}
	}

	r.cfg.Log.Info("Settlement processed",
		"order_id", event.OrderID,
		"resource_id", event.ResourceID,
	)
	return nil
}
