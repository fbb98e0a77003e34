package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	stockerrors "fanline/internal/stock/errors"
	"fanline/pkg/config"
	mongotx "fanline/pkg/db/mongo"
	"fanline/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	UnitCollectionName = "Stock_units"
)

type mongoUnitRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

type UnitRepository interface {
	Create(ctx context.Context, unit *model.StockUnit) error
	FindByID(ctx context.Context, id string) (*model.StockUnit, error)
	FindByResource(ctx context.Context, resourceID string) ([]*model.StockUnit, error)
	FindAll(ctx context.Context) ([]*model.StockUnit, error)
	// FindNegative returns units whose projection has gone below zero.
	FindNegative(ctx context.Context) ([]*model.StockUnit, error)
	// ApplyDelta increments the stock projection and returns the updated
	// unit. Negative deltas are guarded: the update only matches when the
	// resulting stock stays non-negative, and a miss surfaces as
	// ErrInsufficientStock (or ErrUnitNotFound when the unit is absent).
	ApplyDelta(ctx context.Context, id string, delta int) (*model.StockUnit, error)
	SetStatus(ctx context.Context, id string, status string) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

func NewMongoUnitRepository(cfg *config.Config) UnitRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoUnitRepository{
		cfg:        cfg,
		collection: db.Collection(UnitCollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoUnitRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
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

func (r *mongoUnitRepository) Create(ctx context.Context, unit *model.StockUnit) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if unit.ID == "" {
		unit.ID = primitive.NewObjectID().Hex()
	}
	unit.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if _, err := r.collection.InsertOne(ctx, unit); err != nil {
		return fmt.Errorf("failed to create stock unit: %w", err)
	}
	return nil
}

func (r *mongoUnitRepository) FindByID(ctx context.Context, id string) (*model.StockUnit, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return nil, fmt.Errorf("%w: %s", stockerrors.ErrInvalidID, id)
	}

	var unit model.StockUnit
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&unit)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, stockerrors.ErrUnitNotFound
		}
		return nil, fmt.Errorf("failed to find stock unit: %w", err)
	}

	return &unit, nil
}

func (r *mongoUnitRepository) FindByResource(ctx context.Context, resourceID string) ([]*model.StockUnit, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{"resource_id": resourceID},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find stock units: %w", err)
	}
	defer cursor.Close(ctx)

	var units []*model.StockUnit
	if err = cursor.All(ctx, &units); err != nil {
		return nil, fmt.Errorf("failed to decode stock units: %w", err)
	}

	return units, nil
}

func (r *mongoUnitRepository) FindAll(ctx context.Context) ([]*model.StockUnit, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to find stock units: %w", err)
	}
	defer cursor.Close(ctx)

	var units []*model.StockUnit
	if err = cursor.All(ctx, &units); err != nil {
		return nil, fmt.Errorf("failed to decode stock units: %w", err)
	}

	return units, nil
}

func (r *mongoUnitRepository) FindNegative(ctx context.Context) ([]*model.StockUnit, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{"stock": bson.M{"$lt": 0}})
	if err != nil {
		return nil, fmt.Errorf("failed to find negative stock units: %w", err)
	}
	defer cursor.Close(ctx)

	var units []*model.StockUnit
	if err = cursor.All(ctx, &units); err != nil {
		return nil, fmt.Errorf("failed to decode stock units: %w", err)
	}

	return units, nil
}

func (r *mongoUnitRepository) ApplyDelta(ctx context.Context, id string, delta int) (*model.StockUnit, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return nil, fmt.Errorf("%w: %s", stockerrors.ErrInvalidID, id)
	}

	filter := bson.M{"_id": id}
	if delta < 0 {
		filter["stock"] = bson.M{"$gte": -delta}
	}
	update := bson.M{"$inc": bson.M{"stock": delta}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var unit model.StockUnit
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&unit)
	if err == nil {
		return &unit, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to apply stock delta: %w", err)
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to discriminate stock delta miss: %w", err)
	}
	if count == 0 {
		return nil, stockerrors.ErrUnitNotFound
	}
	return nil, stockerrors.ErrInsufficientStock
}

func (r *mongoUnitRepository) SetStatus(ctx context.Context, id string, status string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status}},
	)
	if err != nil {
		return fmt.Errorf("failed to set stock unit status: %w", err)
	}
	if result.MatchedCount == 0 {
		return stockerrors.ErrUnitNotFound
	}
	return nil
}

func (r *mongoUnitRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
