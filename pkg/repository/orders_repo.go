package repository

import (
	"context"
	"errors"
	"time"

	"github.com/tendant/qr-table-ordering/pkg/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OrdersRepository handles order persistence and the windowed counts used
// by the rate limiter.
type OrdersRepository struct {
	coll *mongo.Collection
}

// NewOrdersRepository creates a new orders repository.
func NewOrdersRepository(db *DB) *OrdersRepository {
	return &OrdersRepository{coll: db.Collection(OrdersCollection)}
}

// Create inserts an order.
func (r *OrdersRepository) Create(ctx context.Context, order *domain.Order) error {
	_, err := r.coll.InsertOne(ctx, order)
	return err
}

// CountSince counts orders of a session created at or after since.
func (r *OrdersRepository) CountSince(ctx context.Context, sessionID string, since time.Time) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{
		"sessionId": sessionID,
		"createdAt": bson.M{"$gte": since},
	})
}

// CountByDeviceSince counts orders from one device of a session created at or
// after since.
func (r *OrdersRepository) CountByDeviceSince(ctx context.Context, sessionID, fingerprint string, since time.Time) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{
		"sessionId":         sessionID,
		"deviceFingerprint": fingerprint,
		"createdAt":         bson.M{"$gte": since},
	})
}

// OldestSince returns the earliest order of a session created at or after
// since, or nil when there is none.
func (r *OrdersRepository) OldestSince(ctx context.Context, sessionID string, since time.Time) (*domain.Order, error) {
	order := &domain.Order{}
	err := r.coll.FindOne(ctx,
		bson.M{"sessionId": sessionID, "createdAt": bson.M{"$gte": since}},
		options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	).Decode(order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListBySession returns the orders of a session, oldest first.
func (r *OrdersRepository) ListBySession(ctx context.Context, sessionID string) ([]*domain.Order, error) {
	cursor, err := r.coll.Find(ctx,
		bson.M{"sessionId": sessionID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var orders []*domain.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}
