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

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ResourceCollectionName = "Resources"
)

type mongoResourceRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

type ResourceRepository interface {
	FindByID(ctx context.Context, id string) (*model.Resource, error)
	// AllocateSequence atomically advances the resource's sequence counter and
	// returns the newly claimed value. The resource must be on sale; callers
	// receive ErrResourceNotFound or ErrSaleClosed otherwise.
	AllocateSequence(ctx context.Context, id string) (uint64, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

func NewMongoResourceRepository(cfg *config.Config) ResourceRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoResourceRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(ResourceCollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// SessionContext cannot be wrapped without breaking transaction semantics, so
// inside a transaction the original context is returned with a no-op cancel.
func (r *mongoResourceRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
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

func (r *mongoResourceRepository) FindByID(ctx context.Context, id string) (*model.Resource, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return nil, fmt.Errorf("%w: %s", queueerrors.ErrInvalidID, id)
	}

	var resource model.Resource
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&resource)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, queueerrors.ErrResourceNotFound
		}
		return nil, fmt.Errorf("failed to find resource: %w", err)
	}

	return &resource, nil
}

func (r *mongoResourceRepository) AllocateSequence(ctx context.Context, id string) (uint64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return 0, fmt.Errorf("%w: %s", queueerrors.ErrInvalidID, id)
	}

	filter := bson.M{"_id": id, "sale_status": model.SaleOnSale}
	update := bson.M{"$inc": bson.M{"next_sequence": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var resource model.Resource
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&resource)
	if err == nil {
		return resource.NextSequence, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("failed to allocate sequence: %w", err)
	}

	// The guarded update missed. Re-read by _id alone to tell a missing
	// resource apart from one whose sale window forbids joins.
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, fmt.Errorf("failed to discriminate sequence miss: %w", err)
	}
	if count == 0 {
		return 0, queueerrors.ErrResourceNotFound
	}
	return 0, queueerrors.ErrSaleClosed
}

func (r *mongoResourceRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
