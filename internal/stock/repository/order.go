package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	stockerrors "fanline/internal/stock/errors"
	"fanline/pkg/config"
	"fanline/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	OrderCollectionName = "Orders"
)

type mongoOrderRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

type OrderRepository interface {
	FindByID(ctx context.Context, id string) (*model.Order, error)
	// UpsertLine creates the order on first sight of its reference and adds
	// the line; repeated reservations for the same order grow the same
	// document.
	UpsertLine(ctx context.Context, orderID, resourceID, participantID string, line model.OrderLine) error
	// UpdateStatus moves the order to the target status, but only when the
	// current status is one of from. ErrOrderNotFound covers both a missing
	// order and a transition the state machine forbids.
	UpdateStatus(ctx context.Context, id string, from []string, to string) error
}

func NewMongoOrderRepository(cfg *config.Config) OrderRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoOrderRepository{
		cfg:        cfg,
		collection: db.Collection(OrderCollectionName),
	}
}

func (r *mongoOrderRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoOrderRepository) FindByID(ctx context.Context, id string) (*model.Order, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var order model.Order
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, stockerrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	return &order, nil
}

func (r *mongoOrderRepository) UpsertLine(ctx context.Context, orderID, resourceID, participantID string, line model.OrderLine) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	filter := bson.M{"_id": orderID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"resource_id":    resourceID,
			"participant_id": participantID,
			"status":         model.OrderReserved,
			"created_at":     now,
		},
		"$set":  bson.M{"updated_at": now},
		"$push": bson.M{"lines": line},
	}

	if _, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to upsert order line: %w", err)
	}
	return nil
}

func (r *mongoOrderRepository) UpdateStatus(ctx context.Context, id string, from []string, to string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": id, "status": bson.M{"$in": from}}
	update := bson.M{"$set": bson.M{
		"status":     to,
		"updated_at": time.Now().UTC().Truncate(time.Millisecond),
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if result.MatchedCount == 0 {
		return stockerrors.ErrOrderNotFound
	}
	return nil
}
