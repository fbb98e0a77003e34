package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	queueerrors "fanline/internal/queue/errors"
	"fanline/pkg/config"
	mongotx "fanline/pkg/db/mongo"
	"fanline/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	EntryCollectionName = "Queue_entries"
)

type mongoEntryRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

type EntryRepository interface {
	// Insert adds a fresh entry. The collection carries a partial unique
	// index over live statuses, so a second live entry for the same
	// (resource, participant) pair surfaces as a duplicate key error.
	Insert(ctx context.Context, entry *model.QueueEntry) error
	FindLive(ctx context.Context, resourceID, participantID string) (*model.QueueEntry, error)
	// FindCoolingDown returns the most recent left entry whose cooldown has
	// not yet elapsed, or ErrEntryNotFound when the participant may rejoin.
	FindCoolingDown(ctx context.Context, resourceID, participantID string, now time.Time) (*model.QueueEntry, error)
	// CountWaitingBefore computes the entry's zero-based position: the number
	// of waiting entries holding a smaller sequence.
	CountWaitingBefore(ctx context.Context, resourceID string, sequence uint64) (int64, error)
	MarkAdmitted(ctx context.Context, id string) error
	MarkLeft(ctx context.Context, id string, cooldownUntil time.Time) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

func NewMongoEntryRepository(cfg *config.Config) EntryRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoEntryRepository{
		cfg:        cfg,
		collection: db.Collection(EntryCollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoEntryRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
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

func (r *mongoEntryRepository) Insert(ctx context.Context, entry *model.QueueEntry) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.JoinedAt = time.Now().UTC().Truncate(time.Millisecond)

	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		// Duplicate key passes through untouched so the service can map it.
		if mongo.IsDuplicateKeyError(err) {
			return err
		}
		return fmt.Errorf("failed to insert queue entry: %w", err)
	}
	return nil
}

func (r *mongoEntryRepository) FindLive(ctx context.Context, resourceID, participantID string) (*model.QueueEntry, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"resource_id":    resourceID,
		"participant_id": participantID,
		"status":         bson.M{"$in": []string{model.EntryWaiting, model.EntryAdmitted}},
	}

	var entry model.QueueEntry
	err := r.collection.FindOne(ctx, filter).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, queueerrors.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to find live queue entry: %w", err)
	}

	return &entry, nil
}

func (r *mongoEntryRepository) FindCoolingDown(ctx context.Context, resourceID, participantID string, now time.Time) (*model.QueueEntry, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"resource_id":    resourceID,
		"participant_id": participantID,
		"status":         model.EntryLeft,
		"cooldown_until": bson.M{"$gt": now},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "cooldown_until", Value: -1}})

	var entry model.QueueEntry
	err := r.collection.FindOne(ctx, filter, opts).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, queueerrors.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to find cooling-down entry: %w", err)
	}

	return &entry, nil
}

func (r *mongoEntryRepository) CountWaitingBefore(ctx context.Context, resourceID string, sequence uint64) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"resource_id": resourceID,
		"status":      model.EntryWaiting,
		"sequence":    bson.M{"$lt": sequence},
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count waiting entries: %w", err)
	}
	return count, nil
}

func (r *mongoEntryRepository) MarkAdmitted(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": id, "status": model.EntryWaiting}
	update := bson.M{"$set": bson.M{"status": model.EntryAdmitted}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to admit queue entry: %w", err)
	}
	if result.MatchedCount == 0 {
		return queueerrors.ErrEntryNotFound
	}
	return nil
}

func (r *mongoEntryRepository) MarkLeft(ctx context.Context, id string, cooldownUntil time.Time) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": []string{model.EntryWaiting, model.EntryAdmitted}},
	}
	update := bson.M{"$set": bson.M{
		"status":         model.EntryLeft,
		"cooldown_until": cooldownUntil,
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to mark queue entry left: %w", err)
	}
	if result.MatchedCount == 0 {
		return queueerrors.ErrEntryNotFound
	}
	return nil
}

func (r *mongoEntryRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
