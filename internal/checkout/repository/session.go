package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	checkouterrors "fanline/internal/checkout/errors"
	"fanline/pkg/config"
	mongotx "fanline/pkg/db/mongo"
	"fanline/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	SessionCollectionName = "Checkout_sessions"
)

type mongoSessionRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

type SessionRepository interface {
	// Insert adds a session. A unique index on (resource_id, participant_id)
	// makes a second live session for the same pair a duplicate key error.
	Insert(ctx context.Context, session *model.CheckoutSession) error
	FindLive(ctx context.Context, resourceID, participantID string, now time.Time) (*model.CheckoutSession, error)
	// CountLive counts sessions that have not yet expired. Expired sessions
	// still occupy a document until the reconciler reclaims them, but they
	// never count against the limit.
	CountLive(ctx context.Context, resourceID string, now time.Time) (int64, error)
	DeleteByPair(ctx context.Context, resourceID, participantID string) (int64, error)
	// DeleteExpiredByPair removes the pair's session only when it is past its
	// TTL. Frees the unique (resource_id, participant_id) slot without waiting
	// for the reconciler sweep.
	DeleteExpiredByPair(ctx context.Context, resourceID, participantID string, now time.Time) (int64, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

func NewMongoSessionRepository(cfg *config.Config) SessionRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSessionRepository{
		cfg:        cfg,
		collection: db.Collection(SessionCollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoSessionRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
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

func (r *mongoSessionRepository) Insert(ctx context.Context, session *model.CheckoutSession) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	session.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if _, err := r.collection.InsertOne(ctx, session); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return err
		}
		return fmt.Errorf("failed to insert checkout session: %w", err)
	}
	return nil
}

func (r *mongoSessionRepository) FindLive(ctx context.Context, resourceID, participantID string, now time.Time) (*model.CheckoutSession, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"resource_id":    resourceID,
		"participant_id": participantID,
		"expires_at":     bson.M{"$gt": now},
	}

	var session model.CheckoutSession
	err := r.collection.FindOne(ctx, filter).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, checkouterrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to find checkout session: %w", err)
	}

	return &session, nil
}

func (r *mongoSessionRepository) CountLive(ctx context.Context, resourceID string, now time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"resource_id": resourceID,
		"expires_at":  bson.M{"$gt": now},
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count checkout sessions: %w", err)
	}
	return count, nil
}

func (r *mongoSessionRepository) DeleteByPair(ctx context.Context, resourceID, participantID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"resource_id":    resourceID,
		"participant_id": participantID,
	}

	result, err := r.collection.DeleteOne(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete checkout session: %w", err)
	}
	return result.DeletedCount, nil
}

func (r *mongoSessionRepository) DeleteExpiredByPair(ctx context.Context, resourceID, participantID string, now time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"resource_id":    resourceID,
		"participant_id": participantID,
		"expires_at":     bson.M{"$lte": now},
	}

	result, err := r.collection.DeleteOne(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired checkout session: %w", err)
	}
	return result.DeletedCount, nil
}

func (r *mongoSessionRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
