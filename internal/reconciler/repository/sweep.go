package repository

import (
	"context"
	"fmt"
	"time"

	"fanline/pkg/config"
	"fanline/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// SweepRepository holds the bulk operations only the reconciler performs.
// Everything here is idempotent: rerunning a sweep over the same documents
// matches nothing the second time.
type SweepRepository interface {
	ExpireQueueEntries(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error)
	OpenUpcomingSales(ctx context.Context, now time.Time) (int64, error)
	CloseElapsedSales(ctx context.Context, now time.Time) (int64, error)
	FindOnSaleResourceIDs(ctx context.Context) ([]string, error)
	MarkSoldOut(ctx context.Context, resourceID string) error
}

type mongoSweepRepository struct {
	cfg       *config.Config
	entries   *mongo.Collection
	sessions  *mongo.Collection
	resources *mongo.Collection
}

func NewMongoSweepRepository(cfg *config.Config) SweepRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSweepRepository{
		cfg:       cfg,
		entries:   db.Collection("Queue_entries"),
		sessions:  db.Collection("Checkout_sessions"),
		resources: db.Collection("Resources"),
	}
}

func (r *mongoSweepRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
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

func (r *mongoSweepRepository) ExpireQueueEntries(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"status":     model.EntryWaiting,
		"expires_at": bson.M{"$lte": cutoff},
	}
	update := bson.M{"$set": bson.M{"status": model.EntryExpired}}

	result, err := r.entries.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to expire queue entries: %w", err)
	}
	return result.ModifiedCount, nil
}

func (r *mongoSweepRepository) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.sessions.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.DeletedCount, nil
}

func (r *mongoSweepRepository) OpenUpcomingSales(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"sale_status":    model.SaleUpcoming,
		"sale_opens_at":  bson.M{"$lte": now},
		"sale_closes_at": bson.M{"$gt": now},
	}
	update := bson.M{"$set": bson.M{"sale_status": model.SaleOnSale}}

	result, err := r.resources.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to open upcoming sales: %w", err)
	}
	return result.ModifiedCount, nil
}

func (r *mongoSweepRepository) CloseElapsedSales(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"sale_status":    bson.M{"$in": []string{model.SaleUpcoming, model.SaleOnSale, model.SaleSoldOut}},
		"sale_closes_at": bson.M{"$lte": now},
	}
	update := bson.M{"$set": bson.M{"sale_status": model.SaleClosed}}

	result, err := r.resources.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to close elapsed sales: %w", err)
	}
	return result.ModifiedCount, nil
}

func (r *mongoSweepRepository) FindOnSaleResourceIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.resources.Find(ctx, bson.M{"sale_status": model.SaleOnSale})
	if err != nil {
		return nil, fmt.Errorf("failed to find on-sale resources: %w", err)
	}
	defer cursor.Close(ctx)

	var resources []*model.Resource
	if err = cursor.All(ctx, &resources); err != nil {
		return nil, fmt.Errorf("failed to decode resources: %w", err)
	}

	ids := make([]string, 0, len(resources))
	for _, resource := range resources {
		ids = append(ids, resource.ID)
	}
	return ids, nil
}

func (r *mongoSweepRepository) MarkSoldOut(ctx context.Context, resourceID string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": resourceID, "sale_status": model.SaleOnSale}
	update := bson.M{"$set": bson.M{"sale_status": model.SaleSoldOut}}

	if _, err := r.resources.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to mark resource sold out: %w", err)
	}
	return nil
}
