package repository

import (
	"context"
	"time"

	"fanline/pkg/config"
	"fanline/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AdmissionLockRepository provides operations for the advisory locks that
// serialize slot accounting per resource.
type AdmissionLockRepository interface {
	Create(ctx context.Context, lock *model.AdmissionLock) (*model.AdmissionLock, error)
	Delete(ctx context.Context, lockID string) error
}

type mongoAdmissionLockRepository struct {
	collection *mongo.Collection
}

func NewAdmissionLockRepository(cfg *config.Config) AdmissionLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoAdmissionLockRepository{
		collection: db.Collection("Admission_locks"),
	}
}

// Returns duplicate key error if the lock is already held.
func (r *mongoAdmissionLockRepository) Create(ctx context.Context, lock *model.AdmissionLock) (*model.AdmissionLock, error) {
	lock.CreatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, lock)
	if err != nil {
		return nil, err
	}

	return lock, nil
}

// Delete releases an advisory lock
func (r *mongoAdmissionLockRepository) Delete(ctx context.Context, lockID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": lockID})
	return err
}
