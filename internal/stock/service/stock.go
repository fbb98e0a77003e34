package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	stockerrors "fanline/internal/stock/errors"
	"fanline/internal/stock/repository"
	"fanline/pkg/config"
	apperrors "fanline/pkg/errors"
	"fanline/pkg/kafka"
	"fanline/pkg/model"
	"fanline/pkg/sanitizer"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

// EventPublisher is the slice of the Kafka producer the stock ledger needs.
type EventPublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type StockService interface {
	// Reserve appends a negative purchase delta and decrements the
	// projection in one transaction. Idempotent per (unit, order_ref): a
	// replay returns the original ledger entry without touching stock.
	Reserve(ctx context.Context, unitID string, quantity int, orderRef string) (*model.LedgerEntry, error)
	// Release returns stock with a compensating delta. reason restock,
	// return and cancellation add stock; damage removes it.
	Release(ctx context.Context, unitID string, quantity int, orderRef, reason string) (*model.LedgerEntry, error)
	// Correct is the administrative override: it moves the projection to
	// target by appending the difference as a manual_correction entry
	// attributed to the operator.
	Correct(ctx context.Context, unitID string, target int, operatorID string) (*model.LedgerEntry, error)
	Get(ctx context.Context, unitID string) (*model.StockUnit, error)
	Ledger(ctx context.Context, unitID string, limit int, offset int64) ([]*model.LedgerEntry, error)

	// AuditNegativeStock flags every unit whose projection is below zero as
	// a critical issue. Detection only; no repair.
	AuditNegativeStock(ctx context.Context) (int, error)
	// AuditLedgerDrift flags units whose ledger sum disagrees with the
	// projection as warning issues.
	AuditLedgerDrift(ctx context.Context) (int, error)
}

type stockService struct {
	units  repository.UnitRepository
	ledger repository.LedgerRepository
	orders repository.OrderRepository
	issues repository.AuditIssueRepository
	// events publishes to the stock events topic, auditEvents to the audit
	// issues topic; either may be nil when eventing is disabled.
	events      EventPublisher
	auditEvents EventPublisher
	cfg         *config.Config
}

func NewStockService(
	units repository.UnitRepository,
	ledger repository.LedgerRepository,
	orders repository.OrderRepository,
	issues repository.AuditIssueRepository,
	events EventPublisher,
	auditEvents EventPublisher,
	cfg *config.Config,
) StockService {
	return &stockService{
		units:       units,
		ledger:      ledger,
		orders:      orders,
		issues:      issues,
		events:      events,
		auditEvents: auditEvents,
		cfg:         cfg,
	}
}

func (s *stockService) Reserve(ctx context.Context, unitID string, quantity int, orderRef string) (*model.LedgerEntry, error) {
	unitID = sanitizer.SanitizeReference(unitID)
	orderRef = sanitizer.SanitizeReference(orderRef)
	if unitID == "" || orderRef == "" {
		return nil, apperrors.InvalidInput("unit_id and order_ref are required")
	}
	if quantity < 1 {
		return nil, apperrors.InvalidInput("quantity must be at least 1")
	}

	// A replayed reservation for the same order returns the original entry.
	if existing, err := s.ledger.FindByOrderRef(ctx, unitID, orderRef, model.ReasonPurchase); err == nil {
		s.cfg.Log.Debug("Reservation replayed idempotently",
			"unit_id", unitID,
			"order_ref", orderRef,
		)
		return existing, nil
	} else if !errors.Is(err, stockerrors.ErrLedgerEntryNotFound) {
		return nil, apperrors.Internal("Failed to check reservation idempotency", err)
	}

	var entry *model.LedgerEntry
	var unit *model.StockUnit
	err := s.units.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		var txErr error
		entry, unit, txErr = s.applyMutation(sessCtx, &model.LedgerEntry{
			UnitID:   unitID,
			Delta:    -quantity,
			Reason:   model.ReasonPurchase,
			OrderRef: orderRef,
		})
		if txErr != nil {
			return txErr
		}
		if txErr := s.orders.UpsertLine(sessCtx, orderRef, unit.ResourceID, "", model.OrderLine{
			UnitID:   unitID,
			Quantity: quantity,
		}); txErr != nil {
			return apperrors.Internal("Failed to record order line", txErr)
		}
		return nil
	})
	if err != nil {
		return nil, s.mapMutationError(ctx, err, unitID, quantity)
	}

	s.cfg.Log.Info("Stock reserved",
		"unit_id", unitID,
		"order_ref", orderRef,
		"quantity", quantity,
		"stock", unit.Stock,
	)
	s.publishStockEvent(ctx, kafka.EventStockReserved, entry, unit)
	return entry, nil
}

func (s *stockService) Release(ctx context.Context, unitID string, quantity int, orderRef, reason string) (*model.LedgerEntry, error) {
	unitID = sanitizer.SanitizeReference(unitID)
	orderRef = sanitizer.SanitizeReference(orderRef)
	if unitID == "" {
		return nil, apperrors.InvalidInput("unit_id is required")
	}
	if quantity < 1 {
		return nil, apperrors.InvalidInput("quantity must be at least 1")
	}

	delta := quantity
	switch reason {
	case model.ReasonRestock, model.ReasonReturn, model.ReasonCancellation:
	case model.ReasonDamage:
		delta = -quantity
	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid release reason: %s", reason))
	}

	if orderRef != "" {
		if existing, err := s.ledger.FindByOrderRef(ctx, unitID, orderRef, reason); err == nil {
			return existing, nil
		} else if !errors.Is(err, stockerrors.ErrLedgerEntryNotFound) {
			return nil, apperrors.Internal("Failed to check release idempotency", err)
		}
	}

	var entry *model.LedgerEntry
	var unit *model.StockUnit
	err := s.units.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		var txErr error
		entry, unit, txErr = s.applyMutation(sessCtx, &model.LedgerEntry{
			UnitID:   unitID,
			Delta:    delta,
			Reason:   reason,
			OrderRef: orderRef,
		})
		return txErr
	})
	if err != nil {
		return nil, s.mapMutationError(ctx, err, unitID, quantity)
	}

	s.cfg.Log.Info("Stock released",
		"unit_id", unitID,
		"reason", reason,
		"delta", delta,
		"stock", unit.Stock,
	)
	s.publishStockEvent(ctx, kafka.EventStockReleased, entry, unit)
	return entry, nil
}

func (s *stockService) Correct(ctx context.Context, unitID string, target int, operatorID string) (*model.LedgerEntry, error) {
	unitID = sanitizer.SanitizeReference(unitID)
	operatorID = sanitizer.SanitizeReference(operatorID)
	if unitID == "" || operatorID == "" {
		return nil, apperrors.InvalidInput("unit_id and operator_id are required")
	}
	if target < 0 {
		return nil, apperrors.InvalidInput("corrected stock cannot be negative")
	}

	var entry *model.LedgerEntry
	var unit *model.StockUnit
	err := s.units.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		current, txErr := s.units.FindByID(sessCtx, unitID)
		if txErr != nil {
			return txErr
		}
		delta := target - current.Stock
		if delta == 0 {
			unit = current
			return nil
		}
		entry, unit, txErr = s.applyMutation(sessCtx, &model.LedgerEntry{
			UnitID:   unitID,
			Delta:    delta,
			Reason:   model.ReasonCorrection,
			Operator: operatorID,
		})
		return txErr
	})
	if err != nil {
		return nil, s.mapMutationError(ctx, err, unitID, 0)
	}
	if entry == nil {
		// Already at target; nothing appended.
		return nil, nil
	}

	s.cfg.Log.Info("Stock corrected",
		"unit_id", unitID,
		"operator", operatorID,
		"delta", entry.Delta,
		"stock", unit.Stock,
	)
	s.publishStockEvent(ctx, kafka.EventStockCorrected, entry, unit)
	return entry, nil
}

func (s *stockService) Get(ctx context.Context, unitID string) (*model.StockUnit, error) {
	unit, err := s.units.FindByID(ctx, unitID)
	if err != nil {
		return nil, s.mapUnitError(err, unitID)
	}
	return unit, nil
}

func (s *stockService) Ledger(ctx context.Context, unitID string, limit int, offset int64) ([]*model.LedgerEntry, error) {
	if _, err := s.units.FindByID(ctx, unitID); err != nil {
		return nil, s.mapUnitError(err, unitID)
	}
	entries, err := s.ledger.FindByUnit(ctx, unitID, limit, offset)
	if err != nil {
		return nil, apperrors.Internal("Failed to read ledger", err)
	}
	return entries, nil
}

func (s *stockService) AuditNegativeStock(ctx context.Context) (int, error) {
	units, err := s.units.FindNegative(ctx)
	if err != nil {
		return 0, apperrors.Internal("Failed to scan for negative stock", err)
	}

	flagged := 0
	for _, unit := range units {
		issue := &model.AuditIssue{
			UnitID:   unit.ID,
			Code:     model.IssueNegativeStock,
			Severity: model.SeverityCritical,
			Detail:   fmt.Sprintf("stock projection is %d", unit.Stock),
			Stock:    unit.Stock,
		}
		if err := s.issues.Upsert(ctx, issue); err != nil {
			s.cfg.Log.Error("Failed to record negative stock issue", "unit_id", unit.ID, "error", err)
			continue
		}
		flagged++
		s.cfg.Log.Warn("Negative stock detected",
			"unit_id", unit.ID,
			"stock", unit.Stock,
		)
		s.publishAuditIssue(ctx, issue)
	}
	return flagged, nil
}

func (s *stockService) AuditLedgerDrift(ctx context.Context) (int, error) {
	units, err := s.units.FindAll(ctx)
	if err != nil {
		return 0, apperrors.Internal("Failed to list stock units", err)
	}

	flagged := 0
	for _, unit := range units {
		sum, err := s.ledger.SumDeltas(ctx, unit.ID)
		if err != nil {
			s.cfg.Log.Error("Failed to sum ledger deltas", "unit_id", unit.ID, "error", err)
			continue
		}
		if sum == int64(unit.Stock) {
			continue
		}
		issue := &model.AuditIssue{
			UnitID:    unit.ID,
			Code:      model.IssueLedgerDrift,
			Severity:  model.SeverityWarning,
			Detail:    fmt.Sprintf("ledger sum %d disagrees with stock projection %d", sum, unit.Stock),
			Stock:     unit.Stock,
			LedgerSum: sum,
		}
		if err := s.issues.Upsert(ctx, issue); err != nil {
			s.cfg.Log.Error("Failed to record ledger drift issue", "unit_id", unit.ID, "error", err)
			continue
		}
		flagged++
		s.cfg.Log.Warn("Ledger drift detected",
			"unit_id", unit.ID,
			"stock", unit.Stock,
			"ledger_sum", sum,
		)
		s.publishAuditIssue(ctx, issue)
	}
	return flagged, nil
}

// applyMutation is the single write path for stock: ledger append, guarded
// projection update, derived status refresh, all on the caller's transaction.
func (s *stockService) applyMutation(sessCtx mongo.SessionContext, entry *model.LedgerEntry) (*model.LedgerEntry, *model.StockUnit, error) {
	entry.ID = uuid.NewString()
	if err := s.ledger.Append(sessCtx, entry); err != nil {
		// Two concurrent calls for the same order can both pass the
		// idempotency pre-check; the loser lands on the unique ledger index
		// and gets the winner's entry back as a replay.
		if entry.OrderRef != "" && mongo.IsDuplicateKeyError(err) {
			existing, findErr := s.ledger.FindByOrderRef(sessCtx, entry.UnitID, entry.OrderRef, entry.Reason)
			if findErr != nil {
				return nil, nil, apperrors.Internal("Failed to read replayed ledger entry", findErr)
			}
			unit, findErr := s.units.FindByID(sessCtx, entry.UnitID)
			if findErr != nil {
				return nil, nil, apperrors.Internal("Failed to read stock unit", findErr)
			}
			return existing, unit, nil
		}
		return nil, nil, apperrors.Internal("Failed to append ledger entry", err)
	}

	unit, err := s.units.ApplyDelta(sessCtx, entry.UnitID, entry.Delta)
	if err != nil {
		return nil, nil, err
	}

	status := DeriveStatus(unit.Stock, s.cfg.LowStockThreshold)
	if status != unit.Status {
		if err := s.units.SetStatus(sessCtx, unit.ID, status); err != nil {
			return nil, nil, apperrors.Internal("Failed to refresh unit status", err)
		}
		unit.Status = status
	}

	return entry, unit, nil
}

// DeriveStatus maps a stock level to the unit's availability status.
func DeriveStatus(stock, lowThreshold int) string {
	switch {
	case stock <= 0:
		return model.StockOut
	case stock < lowThreshold:
		return model.StockLow
	default:
		return model.StockAvailable
	}
}

func (s *stockService) mapMutationError(ctx context.Context, err error, unitID string, requested int) error {
	if errors.Is(err, stockerrors.ErrInsufficientStock) {
		available := 0
		if unit, readErr := s.units.FindByID(ctx, unitID); readErr == nil {
			available = unit.Stock
		}
		return apperrors.InsufficientStock(unitID, requested, available)
	}
	return s.mapUnitError(err, unitID)
}

func (s *stockService) mapUnitError(err error, unitID string) error {
	switch {
	case errors.Is(err, stockerrors.ErrUnitNotFound):
		return apperrors.NotFoundWithID("Stock unit", unitID)
	case errors.Is(err, stockerrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid unit ID format")
	case apperrors.IsAppError(err):
		return err
	default:
		return apperrors.Internal("Stock operation failed", err)
	}
}

func (s *stockService) publishStockEvent(ctx context.Context, eventType string, entry *model.LedgerEntry, unit *model.StockUnit) {
	if s.events == nil {
		return
	}
	msg := kafka.NewMessage().
		WithKey(unit.ID).
		WithEventID(uuid.NewString()).
		WithEventType(eventType).
		WithSource("stock").
		WithValue(kafka.StockEvent{
			UnitID:     unit.ID,
			Delta:      entry.Delta,
			Reason:     entry.Reason,
			OrderRef:   entry.OrderRef,
			Operator:   entry.Operator,
			Stock:      unit.Stock,
			UnitStatus: unit.Status,
			Timestamp:  time.Now().UTC(),
		}).
		Build()
	if err := s.events.Publish(ctx, msg); err != nil {
		s.cfg.Log.Warn("Failed to publish stock event",
			"event_type", eventType,
			"unit_id", unit.ID,
			"error", err,
		)
	}
}

func (s *stockService) publishAuditIssue(ctx context.Context, issue *model.AuditIssue) {
	if s.auditEvents == nil {
		return
	}
	msg := kafka.NewMessage().
		WithKey(issue.UnitID).
		WithEventID(uuid.NewString()).
		WithEventType(kafka.EventAuditIssue).
		WithSource("stock").
		WithValue(kafka.AuditIssueEvent{
			UnitID:    issue.UnitID,
			Code:      issue.Code,
			Severity:  issue.Severity,
			Detail:    issue.Detail,
			Timestamp: time.Now().UTC(),
		}).
		Build()
	if err := s.auditEvents.Publish(ctx, msg); err != nil {
		s.cfg.Log.Warn("Failed to publish audit issue",
			"unit_id", issue.UnitID,
			"error", err,
		)
	}
}
