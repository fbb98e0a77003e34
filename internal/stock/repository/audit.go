package repository

import (
	"context"
	"fmt"
	"time"

	"fanline/pkg/config"
	"fanline/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	AuditIssueCollectionName = "Audit_issues"
)

type mongoAuditIssueRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

type AuditIssueRepository interface {
	// Upsert records the issue keyed by (unit_id, code) so repeated audit
	// runs refresh one document instead of piling up duplicates.
	Upsert(ctx context.Context, issue *model.AuditIssue) error
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.AuditIssue, error)
	Count(ctx context.Context) (int64, error)
}

func NewMongoAuditIssueRepository(cfg *config.Config) AuditIssueRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoAuditIssueRepository{
		cfg:        cfg,
		collection: db.Collection(AuditIssueCollectionName),
	}
}

func (r *mongoAuditIssueRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
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

func (r *mongoAuditIssueRepository) Upsert(ctx context.Context, issue *model.AuditIssue) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"unit_id": issue.UnitID, "code": issue.Code}
	update := bson.M{
		"$setOnInsert": bson.M{"_id": uuid.NewString()},
		"$set": bson.M{
			"severity":   issue.Severity,
			"detail":     issue.Detail,
			"stock":      issue.Stock,
			"ledger_sum": issue.LedgerSum,
			"created_at": time.Now().UTC().Truncate(time.Millisecond),
		},
	}

	if _, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to upsert audit issue: %w", err)
	}
	return nil
}

func (r *mongoAuditIssueRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.AuditIssue, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find audit issues: %w", err)
	}
	defer cursor.Close(ctx)

	var issues []*model.AuditIssue
	if err = cursor.All(ctx, &issues); err != nil {
		return nil, fmt.Errorf("failed to decode audit issues: %w", err)
	}

	return issues, nil
}

func (r *mongoAuditIssueRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count audit issues: %w", err)
	}
	return count, nil
}
