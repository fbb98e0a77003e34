package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fanline/internal/migrations/mongo/validators"
	"fanline/pkg/model"
)

var (
	ResourcesIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "sale_status", Value: 1}, {Key: "sale_opens_at", Value: 1}}},
		{Keys: bson.D{{Key: "sale_status", Value: 1}, {Key: "sale_closes_at", Value: 1}}},
	}

	// The partial unique index is the one-live-entry-per-pair invariant:
	// a second waiting or admitted entry for the same (resource,
	// participant) pair fails with a duplicate key error at insert time.
	QueueEntriesIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "resource_id", Value: 1}, {Key: "participant_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"status": bson.M{"$in": []string{model.EntryWaiting, model.EntryAdmitted}},
				}),
		},
		{Keys: bson.D{
			{Key: "resource_id", Value: 1},
			{Key: "status", Value: 1},
			{Key: "sequence", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "resource_id", Value: 1},
			{Key: "participant_id", Value: 1},
			{Key: "status", Value: 1},
			{Key: "cooldown_until", Value: -1},
		}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
	}

	CheckoutSessionsIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "resource_id", Value: 1}, {Key: "participant_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "resource_id", Value: 1}, {Key: "expires_at", Value: 1}}},
	}

	// TTL so locks orphaned by crashed holders release themselves.
	AdmissionLocksIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

	StockUnitsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "resource_id", Value: 1}, {Key: "name", Value: 1}}},
		{Keys: bson.D{{Key: "stock", Value: 1}}},
	}

	// Reservation idempotency: one ledger entry per (unit, order, reason).
	StockLedgerIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "unit_id", Value: 1},
				{Key: "order_ref", Value: 1},
				{Key: "reason", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"order_ref": bson.M{"$exists": true},
				}),
		},
		{Keys: bson.D{{Key: "unit_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}

	AuditIssuesIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "unit_id", Value: 1}, {Key: "code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	}

	OrdersIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}}},
		{Keys: bson.D{{Key: "resource_id", Value: 1}, {Key: "participant_id", Value: 1}}},
	}
)

func RunMigration(ctx context.Context, client *mongo.Client, dbName string) error {
	db := client.Database(dbName)
	fmt.Printf("Running fanline Mongo migrations on database: %s\n", dbName)

	collections := map[string]struct {
		Indexes   []mongo.IndexModel
		Validator bson.M
	}{
		"Resources": {
			Indexes:   ResourcesIndexes,
			Validator: validators.ResourceValidator,
		},
		"Queue_entries": {
			Indexes:   QueueEntriesIndexes,
			Validator: validators.QueueEntryValidator,
		},
		"Checkout_sessions": {
			Indexes:   CheckoutSessionsIndexes,
			Validator: validators.CheckoutSessionValidator,
		},
		"Admission_locks": {
			Indexes:   AdmissionLocksIndexes,
			Validator: validators.AdmissionLockValidator,
		},
		"Stock_units": {
			Indexes:   StockUnitsIndexes,
			Validator: validators.StockUnitValidator,
		},
		"Stock_ledger": {
			Indexes:   StockLedgerIndexes,
			Validator: validators.LedgerEntryValidator,
		},
		"Audit_issues": {
			Indexes:   AuditIssuesIndexes,
			Validator: validators.AuditIssueValidator,
		},
		"Orders": {
			Indexes:   OrdersIndexes,
			Validator: validators.OrderValidator,
		},
	}

	for name, def := range collections {
		if err := ensureCollection(ctx, db, name, def.Validator); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	fmt.Println("All migrations applied successfully.")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		fmt.Printf("Creating collection: %s\n", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
	} else {
		fmt.Printf("Collection %s already exists - updating validator if needed\n", name)
		command := bson.D{
			{Key: "collMod", Value: name},
			{Key: "validator", Value: validator},
		}
		if err := db.RunCommand(ctx, command).Err(); err != nil {
			fmt.Printf("Warning: failed updating validator for %s: %v\n", name, err)
		}
	}

	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel) error {
	coll := db.Collection(name)
	_, err := coll.Indexes().CreateMany(ctx, models)
	if err != nil {
		return err
	}
	fmt.Printf("Ensured indexes for %s\n", name)
	return nil
}
