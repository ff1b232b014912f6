package repository

import (
	"context"
	"errors"
	"time"

	"github.com/tendant/qr-table-ordering/pkg/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// TablesRepository handles the table records referenced by sessions.
type TablesRepository struct {
	coll *mongo.Collection
}

// NewTablesRepository creates a new tables repository.
func NewTablesRepository(db *DB) *TablesRepository {
	return &TablesRepository{coll: db.Collection(TablesCollection)}
}

// Create inserts a table. Table numbers are unique.
func (r *TablesRepository) Create(ctx context.Context, table *domain.Table) error {
	_, err := r.coll.InsertOne(ctx, table)
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrTableExists
	}
	return err
}

// GetByNumber retrieves a table by its number.
func (r *TablesRepository) GetByNumber(ctx context.Context, number int) (*domain.Table, error) {
	table := &domain.Table{}
	err := r.coll.FindOne(ctx, bson.M{"tableNumber": number}).Decode(table)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrTableNotFound
	}
	if err != nil {
		return nil, err
	}
	return table, nil
}

// tableKey matches a table id against _id. Tables inserted with an ObjectID
// decode to its hex form, so a hex id matches either representation.
func tableKey(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"$in": bson.A{oid, id}}
	}
	return id
}

// AssignSession points the table at a new current session.
func (r *TablesRepository) AssignSession(ctx context.Context, tableID, sessionID string, now time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": tableKey(tableID)},
		bson.M{"$set": bson.M{
			"currentSessionId": sessionID,
			"status":           domain.TableOccupied,
			"updatedAt":        now,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrTableNotFound
	}
	return nil
}

// ReleaseSession clears the table's current session and marks it available,
// but only while the table still points at sessionID.
func (r *TablesRepository) ReleaseSession(ctx context.Context, tableID, sessionID string, now time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": tableKey(tableID), "currentSessionId": sessionID},
		bson.M{
			"$set":   bson.M{"status": domain.TableAvailable, "updatedAt": now},
			"$unset": bson.M{"currentSessionId": ""},
		},
	)
	return err
}
