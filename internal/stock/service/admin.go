package service

import (
	"context"
	"errors"
	"sync"
	"time"

	queueerrors "fanline/internal/queue/errors"
	stockerrors "fanline/internal/stock/errors"
	"fanline/internal/stock/repository"
	"fanline/internal/stock/validator"
	"fanline/pkg/config"
	apperrors "fanline/pkg/errors"
	"fanline/pkg/model"
	"fanline/pkg/sanitizer"
)

// Recovery actions for orders stuck in a non-terminal state.
const (
	RecoveryCancel    = "cancel"
	RecoveryBackorder = "backorder"
)

type AdminService interface {
	CreateResource(ctx context.Context, resource *model.Resource) error
	GetResource(ctx context.Context, id string) (*model.Resource, error)
	CreateUnit(ctx context.Context, unit *model.StockUnit) error
	ListAuditIssues(ctx context.Context, limit int, offset int64) ([]*model.AuditIssue, int64, error)

	// RecoverOrder resolves a stuck order. cancel replays compensating
	// releases for every line and cancels the order; backorder marks it
	// pending fulfillment and leaves the stock deltas as they are.
	RecoverOrder(ctx context.Context, orderID, action string) (*model.Order, error)
	// SettleOrder marks a reserved order paid. Driven by the payment
	// workflow's settlement events.
	SettleOrder(ctx context.Context, orderID string) error
}

type adminService struct {
	catalog   repository.CatalogRepository
	units     repository.UnitRepository
	orders    repository.OrderRepository
	issues    repository.AuditIssueRepository
	stock     StockService
	validator *validator.StockValidator
	cfg       *config.Config
}

func NewAdminService(
	catalog repository.CatalogRepository,
	units repository.UnitRepository,
	orders repository.OrderRepository,
	issues repository.AuditIssueRepository,
	stock StockService,
	v *validator.StockValidator,
	cfg *config.Config,
) AdminService {
	return &adminService{
		catalog:   catalog,
		units:     units,
		orders:    orders,
		issues:    issues,
		stock:     stock,
		validator: v,
		cfg:       cfg,
	}
}

func (s *adminService) CreateResource(ctx context.Context, resource *model.Resource) error {
	resource.Name = sanitizer.SanitizeDisplayName(resource.Name)
	if resource.SaleStatus == "" {
		resource.SaleStatus = model.SaleUpcoming
	}
	resource.NextSequence = 0

	if err := s.validator.ValidateResource(resource); err != nil {
		s.cfg.Log.Warn("Resource validation failed", "error", err)
		return apperrors.Validation("Resource validation failed", map[string]any{"error": err.Error()})
	}

	if err := s.catalog.Create(ctx, resource); err != nil {
		s.cfg.Log.Error("Failed to create resource", "error", err)
		return apperrors.Internal("Failed to create resource", err)
	}

	s.cfg.Log.Info("Resource created", "id", resource.ID, "name", resource.Name)
	return nil
}

func (s *adminService) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	resource, err := s.catalog.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, queueerrors.ErrResourceNotFound) {
			return nil, apperrors.NotFoundWithID("Resource", id)
		}
		if errors.Is(err, queueerrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid resource ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve resource", err)
	}
	return resource, nil
}

func (s *adminService) CreateUnit(ctx context.Context, unit *model.StockUnit) error {
	unit.Name = sanitizer.SanitizeDisplayName(unit.Name)
	if unit.Status == "" {
		unit.Status = DeriveStatus(unit.Stock, s.cfg.LowStockThreshold)
	}

	if err := s.validator.ValidateUnit(unit); err != nil {
		s.cfg.Log.Warn("Stock unit validation failed", "error", err)
		return apperrors.Validation("Stock unit validation failed", map[string]any{"error": err.Error()})
	}

	if _, err := s.catalog.FindByID(ctx, unit.ResourceID); err != nil {
		if errors.Is(err, queueerrors.ErrResourceNotFound) {
			return apperrors.NotFoundWithID("Resource", unit.ResourceID)
		}
		if errors.Is(err, queueerrors.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid resource ID format")
		}
		return apperrors.Internal("Failed to verify resource", err)
	}

	// The unit starts empty and the initial stock arrives as a correction,
	// so sum(deltas) == stock holds from the first ledger document.
	target := unit.Stock
	unit.Stock = 0
	unit.Status = DeriveStatus(0, s.cfg.LowStockThreshold)
	if err := s.units.Create(ctx, unit); err != nil {
		return apperrors.Internal("Failed to create stock unit", err)
	}
	if target > 0 {
		if _, err := s.stock.Correct(ctx, unit.ID, target, "catalog"); err != nil {
			return err
		}
		unit.Stock = target
		unit.Status = DeriveStatus(target, s.cfg.LowStockThreshold)
	}

	s.cfg.Log.Info("Stock unit created",
		"id", unit.ID,
		"resource_id", unit.ResourceID,
		"stock", unit.Stock,
	)
	return nil
}

func (s *adminService) ListAuditIssues(ctx context.Context, limit int, offset int64) ([]*model.AuditIssue, int64, error) {
	var count int64
	var issues []*model.AuditIssue
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.issues.Count(ctx)
		if errCount != nil {
			errCount = apperrors.Internal("Failed to count audit issues", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		issues, errFind = s.issues.FindAll(ctx, limit, offset)
		if errFind != nil {
			errFind = apperrors.Internal("Failed to list audit issues", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return issues, count, nil
}

func (s *adminService) RecoverOrder(ctx context.Context, orderID, action string) (*model.Order, error) {
	orderID = sanitizer.SanitizeReference(orderID)
	if orderID == "" {
		return nil, apperrors.InvalidInput("order_id is required")
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, stockerrors.ErrOrderNotFound) {
			return nil, apperrors.NotFoundWithID("Order", orderID)
		}
		return nil, apperrors.Internal("Failed to find order", err)
	}
	if order.Terminal() {
		return nil, apperrors.Conflict("Order is already in a terminal state")
	}

	nonTerminal := []string{model.OrderReserved, model.OrderPaid, model.OrderBackordered}

	switch action {
	case RecoveryCancel:
		// Each line's compensation is idempotent per (unit, order,
		// cancellation), so a crashed recovery can be rerun safely.
		for _, line := range order.Lines {
			if _, err := s.stock.Release(ctx, line.UnitID, line.Quantity, orderID, model.ReasonCancellation); err != nil {
				return nil, err
			}
		}
		if err := s.orders.UpdateStatus(ctx, orderID, nonTerminal, model.OrderCancelled); err != nil {
			return nil, apperrors.Internal("Failed to cancel order", err)
		}
		order.Status = model.OrderCancelled

	case RecoveryBackorder:
		if err := s.orders.UpdateStatus(ctx, orderID, nonTerminal, model.OrderBackordered); err != nil {
			return nil, apperrors.Internal("Failed to backorder order", err)
		}
		order.Status = model.OrderBackordered

	default:
		return nil, apperrors.InvalidInput("action must be cancel or backorder")
	}

	order.UpdatedAt = time.Now().UTC()
	s.cfg.Log.Info("Order recovered", "order_id", orderID, "action", action)
	return order, nil
}

func (s *adminService) SettleOrder(ctx context.Context, orderID string) error {
	err := s.orders.UpdateStatus(ctx, orderID, []string{model.OrderReserved}, model.OrderPaid)
	if err != nil {
		if errors.Is(err, stockerrors.ErrOrderNotFound) {
			// Settlement may outrun the reservation or replay after a
			// recovery; neither is actionable here.
			s.cfg.Log.Warn("Settlement for unknown or non-reserved order", "order_id", orderID)
			return nil
		}
		return apperrors.Internal("Failed to settle order", err)
	}
	s.cfg.Log.Info("Order settled", "order_id", orderID)
	return nil
}
