package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	stockerrors "fanline/internal/stock/errors"
	"fanline/pkg/config"
	"fanline/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	LedgerCollectionName = "Stock_ledger"
)

type mongoLedgerRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

// LedgerRepository appends and reads the immutable stock ledger. There are
// deliberately no update or delete operations.
type LedgerRepository interface {
	Append(ctx context.Context, entry *model.LedgerEntry) error
	// FindByOrderRef looks up a prior entry for the same unit, order and
	// reason; reservation and recovery idempotency hang off this read.
	FindByOrderRef(ctx context.Context, unitID, orderRef, reason string) (*model.LedgerEntry, error)
	FindByUnit(ctx context.Context, unitID string, limit int, offset int64) ([]*model.LedgerEntry, error)
	// SumDeltas folds the unit's entire ledger; the audit compares the
	// result against the stock projection.
	SumDeltas(ctx context.Context, unitID string) (int64, error)
}

func NewMongoLedgerRepository(cfg *config.Config) LedgerRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoLedgerRepository{
		cfg:        cfg,
		collection: db.Collection(LedgerCollectionName),
	}
}

func (r *mongoLedgerRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
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

func (r *mongoLedgerRepository) Append(ctx context.Context, entry *model.LedgerEntry) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (r *mongoLedgerRepository) FindByOrderRef(ctx context.Context, unitID, orderRef, reason string) (*model.LedgerEntry, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"unit_id":   unitID,
		"order_ref": orderRef,
		"reason":    reason,
	}

	var entry model.LedgerEntry
	err := r.collection.FindOne(ctx, filter).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, stockerrors.ErrLedgerEntryNotFound
		}
		return nil, fmt.Errorf("failed to find ledger entry: %w", err)
	}

	return &entry, nil
}

func (r *mongoLedgerRepository) FindByUnit(ctx context.Context, unitID string, limit int, offset int64) ([]*model.LedgerEntry, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{"unit_id": unitID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find ledger entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*model.LedgerEntry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode ledger entries: %w", err)
	}

	return entries, nil
}

func (r *mongoLedgerRepository) SumDeltas(ctx context.Context, unitID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"unit_id": unitID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$delta"},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to sum ledger deltas: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int64 `bson:"total"`
	}
	if err = cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("failed to decode ledger sum: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Total, nil
}
