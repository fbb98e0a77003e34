package testutil

import (
	"time"

	"fanline/pkg/model"
)

// ResourceBuilder seeds Resources documents with sensible defaults: an
// on-sale resource whose window is currently open.
type ResourceBuilder struct {
	res model.Resource
}

func NewResourceBuilder() *ResourceBuilder {
	now := time.Now().UTC()
	return &ResourceBuilder{
		res: model.Resource{
			Name:         "Test Drop",
			SaleStatus:   model.SaleOnSale,
			Capacity:     100,
			NextSequence: 0,
			SaleOpensAt:  now.Add(-time.Hour),
			SaleClosesAt: now.Add(time.Hour),
			CreatedAt:    now,
		},
	}
}

func (b *ResourceBuilder) WithName(name string) *ResourceBuilder {
	b.res.Name = name
	return b
}

func (b *ResourceBuilder) WithSaleStatus(status string) *ResourceBuilder {
	b.res.SaleStatus = status
	return b
}

func (b *ResourceBuilder) WithCapacity(capacity int) *ResourceBuilder {
	b.res.Capacity = capacity
	return b
}

func (b *ResourceBuilder) WithWindow(opensAt, closesAt time.Time) *ResourceBuilder {
	b.res.SaleOpensAt = opensAt
	b.res.SaleClosesAt = closesAt
	return b
}

func (b *ResourceBuilder) Build() model.Resource {
	return b.res
}

// StockUnitBuilder seeds Stock_units documents.
type StockUnitBuilder struct {
	unit model.StockUnit
}

func NewStockUnitBuilder(resourceID string) *StockUnitBuilder {
	return &StockUnitBuilder{
		unit: model.StockUnit{
			ResourceID: resourceID,
			Name:       "General Admission",
			Kind:       "ticket",
			Capacity:   100,
			Stock:      100,
			Status:     model.StockAvailable,
			CreatedAt:  time.Now().UTC(),
		},
	}
}

func (b *StockUnitBuilder) WithName(name string) *StockUnitBuilder {
	b.unit.Name = name
	return b
}

func (b *StockUnitBuilder) WithKind(kind string) *StockUnitBuilder {
	b.unit.Kind = kind
	return b
}

func (b *StockUnitBuilder) WithStock(stock int) *StockUnitBuilder {
	b.unit.Stock = stock
	if stock <= 0 {
		b.unit.Status = model.StockOut
	}
	return b
}

func (b *StockUnitBuilder) WithCapacity(capacity int) *StockUnitBuilder {
	b.unit.Capacity = capacity
	return b
}

func (b *StockUnitBuilder) Build() model.StockUnit {
	return b.unit
}
