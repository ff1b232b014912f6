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

// SessionQuery selects sessions for admin listings. Nil fields do not filter.
type SessionQuery struct {
	Status      *domain.SessionStatus
	ValidAt     *time.Time // expiryTime >= value
	ExpiredBy   *time.Time // expiryTime < value
	Suspicious  *bool
	TableNumber *int
	Limit       int64
}

// SessionsRepository handles session persistence.
//
// Every mutation is a targeted field update on a single document; the store
// guarantees single-document atomicity and no further locking is done here.
type SessionsRepository struct {
	coll *mongo.Collection
}

// NewSessionsRepository creates a new sessions repository.
func NewSessionsRepository(db *DB) *SessionsRepository {
	return &SessionsRepository{coll: db.Collection(SessionsCollection)}
}

// Create inserts a new session document.
func (r *SessionsRepository) Create(ctx context.Context, session *domain.Session) error {
	_, err := r.coll.InsertOne(ctx, session)
	return err
}

// GetByID retrieves a session by its sessionId regardless of status.
func (r *SessionsRepository) GetByID(ctx context.Context, sessionID string) (*domain.Session, error) {
	return r.findOne(ctx, bson.M{"sessionId": sessionID})
}

// GetActive retrieves a session by sessionId only when its status is active.
func (r *SessionsRepository) GetActive(ctx context.Context, sessionID string) (*domain.Session, error) {
	return r.findOne(ctx, bson.M{"sessionId": sessionID, "status": domain.SessionActive})
}

func (r *SessionsRepository) findOne(ctx context.Context, filter bson.M) (*domain.Session, error) {
	session := &domain.Session{}
	err := r.coll.FindOne(ctx, filter).Decode(session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// MarkExpired moves an active session to expired.
func (r *SessionsRepository) MarkExpired(ctx context.Context, sessionID string, now time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"sessionId": sessionID, "status": domain.SessionActive},
		bson.M{"$set": bson.M{"status": domain.SessionExpired, "updatedAt": now}},
	)
	return err
}

// TouchDevice refreshes lastSeen of an already registered device. It reports
// false when no device with the fingerprint exists in the session.
func (r *SessionsRepository) TouchDevice(ctx context.Context, sessionID, fingerprint string, now time.Time) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"sessionId": sessionID, "devices.fingerprint": fingerprint},
		bson.M{"$set": bson.M{
			"devices.$.lastSeen": now,
			"lastActivity":       now,
			"updatedAt":          now,
		}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// AddDevice appends a device and increments totalDevices in the same update.
// The filter excludes sessions that already carry the fingerprint, so two
// concurrent registrations of one device cannot produce duplicates. It
// reports false when nothing was appended.
func (r *SessionsRepository) AddDevice(ctx context.Context, sessionID string, device domain.Device, now time.Time) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"sessionId": sessionID, "devices.fingerprint": bson.M{"$ne": device.Fingerprint}},
		bson.M{
			"$push": bson.M{"devices": device},
			"$inc":  bson.M{"totalDevices": 1},
			"$set":  bson.M{"lastActivity": now, "updatedAt": now},
		},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// GetTotalDevices reads the totalDevices counter of a session.
func (r *SessionsRepository) GetTotalDevices(ctx context.Context, sessionID string) (int, error) {
	var doc struct {
		TotalDevices int `bson:"totalDevices"`
	}
	err := r.coll.FindOne(ctx,
		bson.M{"sessionId": sessionID},
		options.FindOne().SetProjection(bson.M{"totalDevices": 1}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, domain.ErrSessionNotFound
	}
	if err != nil {
		return 0, err
	}
	return doc.TotalDevices, nil
}

// AutoFlag marks a session suspicious and adds reason to the reasons set.
func (r *SessionsRepository) AutoFlag(ctx context.Context, sessionID, reason string, now time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"sessionId": sessionID},
		bson.M{
			"$set": bson.M{
				"flags.isSuspicious": true,
				"flags.autoFlagged":  true,
				"flags.flaggedAt":    now,
				"updatedAt":          now,
			},
			"$addToSet": bson.M{"flags.reasons": reason},
		},
	)
	return err
}

// TouchActivity advances lastActivity and updatedAt.
func (r *SessionsRepository) TouchActivity(ctx context.Context, sessionID string, now time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"sessionId": sessionID},
		bson.M{"$set": bson.M{"lastActivity": now, "updatedAt": now}},
	)
	return err
}

// ExpireStale moves every active session past its deadline to expired and
// returns how many were changed.
func (r *SessionsRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"status": domain.SessionActive, "expiryTime": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"status": domain.SessionExpired, "updatedAt": now}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// RecordOrder increments the lifetime order counter.
func (r *SessionsRepository) RecordOrder(ctx context.Context, sessionID string, now time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"sessionId": sessionID},
		bson.M{
			"$inc": bson.M{"orderCount": 1},
			"$set": bson.M{"lastOrderTime": now, "updatedAt": now},
		},
	)
	return err
}

// AddOrderAmount adds an accepted order's amount to the session and bumps the
// ordering device's own counter. The amount is still added when the device
// never made it into the session's device list.
func (r *SessionsRepository) AddOrderAmount(ctx context.Context, sessionID, fingerprint string, amount float64, now time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"sessionId": sessionID, "devices.fingerprint": fingerprint},
		bson.M{
			"$inc": bson.M{"totalAmount": amount, "devices.$.orderCount": 1},
			"$set": bson.M{"devices.$.lastSeen": now, "lastActivity": now, "updatedAt": now},
		},
	)
	if err != nil || res.MatchedCount > 0 {
		return err
	}
	_, err = r.coll.UpdateOne(ctx,
		bson.M{"sessionId": sessionID},
		bson.M{
			"$inc": bson.M{"totalAmount": amount},
			"$set": bson.M{"lastActivity": now, "updatedAt": now},
		},
	)
	return err
}

// Close marks a session closed.
func (r *SessionsRepository) Close(ctx context.Context, sessionID, reason, closedBy string, now time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"sessionId": sessionID},
		bson.M{"$set": bson.M{
			"status":       domain.SessionClosed,
			"closedAt":     now,
			"closedReason": reason,
			"closedBy":     closedBy,
			"updatedAt":    now,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// Flag manually flags a session. The reason is appended, duplicates included.
func (r *SessionsRepository) Flag(ctx context.Context, sessionID, reason, flaggedBy string, now time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"sessionId": sessionID},
		bson.M{
			"$set": bson.M{
				"flags.isSuspicious":    true,
				"flags.manuallyFlagged": true,
				"flags.flaggedAt":       now,
				"flags.flaggedBy":       flaggedBy,
				"updatedAt":             now,
			},
			"$push": bson.M{"flags.reasons": reason},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// Unflag clears isSuspicious and manuallyFlagged. Reasons and autoFlagged are
// left as they are.
func (r *SessionsRepository) Unflag(ctx context.Context, sessionID string, now time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"sessionId": sessionID},
		bson.M{"$set": bson.M{
			"flags.isSuspicious":    false,
			"flags.manuallyFlagged": false,
			"updatedAt":             now,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// List returns sessions matching q, newest first.
func (r *SessionsRepository) List(ctx context.Context, q SessionQuery) ([]*domain.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "startTime", Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cursor, err := r.coll.Find(ctx, sessionFilter(q), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []*domain.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func sessionFilter(q SessionQuery) bson.M {
	filter := bson.M{}
	if q.Status != nil {
		filter["status"] = *q.Status
	}
	expiry := bson.M{}
	if q.ValidAt != nil {
		expiry["$gte"] = *q.ValidAt
	}
	if q.ExpiredBy != nil {
		expiry["$lt"] = *q.ExpiredBy
	}
	if len(expiry) > 0 {
		filter["expiryTime"] = expiry
	}
	if q.Suspicious != nil {
		filter["flags.isSuspicious"] = *q.Suspicious
	}
	if q.TableNumber != nil {
		filter["tableNumber"] = *q.TableNumber
	}
	return filter
}
