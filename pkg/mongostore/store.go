package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/receiptly/entitlement/pkg/entitlement"
)

// Store implements entitlement.Store on a MongoDB collection keyed by
// user ID (one subscription document per user).
type Store struct {
	coll *mongo.Collection
}

// Connect establishes a MongoDB connection and returns a Store bound to
// the configured database and collection. It retries the initial
// connection per the config before giving up.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	for range cfg.RetryAttempts {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(cfg.ConnectionURL).
				SetConnectTimeout(cfg.ConnectTimeout).
				SetMaxPoolSize(cfg.MaxPoolSize).
				SetMinPoolSize(cfg.MinPoolSize).
				SetMaxConnIdleTime(cfg.MaxConnIdleTime).
				SetRetryWrites(cfg.RetryWrites).
				SetRetryReads(cfg.RetryReads),
		)
		if err == nil {
			if err := client.Ping(ctx, nil); err == nil {
				return NewStore(client.Database(cfg.Database).Collection(cfg.Collection)), nil
			}
		}
		time.Sleep(cfg.RetryInterval)
	}
	return nil, ErrFailedToConnect
}

// NewStore wraps an existing collection, for callers managing their own
// client lifecycle.
func NewStore(coll *mongo.Collection) *Store {
	if coll == nil {
		panic("mongostore: collection is required")
	}
	return &Store{coll: coll}
}

func (s *Store) Get(ctx context.Context, userID uuid.UUID) (*entitlement.Subscription, error) {
	var sub entitlement.Subscription
	err := s.coll.FindOne(ctx, bson.M{"user_id": userID}).Decode(&sub)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, entitlement.ErrSubscriptionNotFound
		}
		return nil, errors.Join(entitlement.ErrStoreUnreachable, err)
	}
	return &sub, nil
}

func (s *Store) Save(ctx context.Context, sub *entitlement.Subscription) error {
	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"user_id": sub.UserID},
		sub,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return errors.Join(entitlement.ErrStoreUnreachable, err)
	}
	return nil
}

// RecordGeneration applies the reset-then-increment as one server-side
// conditional update and returns the updated document. A missing
// last_generation_at sorts before any date in BSON order, so a first-ever
// generation also lands on the reset branch and starts the counter at one.
func (s *Store) RecordGeneration(ctx context.Context, userID uuid.UUID, now time.Time) (*entitlement.Subscription, error) {
	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	update := mongo.Pipeline{
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "generations_today", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$lt", Value: bson.A{"$last_generation_at", dayStart}}},
				int64(1),
				bson.D{{Key: "$add", Value: bson.A{"$generations_today", int64(1)}}},
			}}}},
			{Key: "generations_this_period", Value: bson.D{{Key: "$add", Value: bson.A{"$generations_this_period", int64(1)}}}},
			{Key: "last_generation_at", Value: now},
			{Key: "updated_at", Value: now},
		}}},
	}

	var sub entitlement.Subscription
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&sub)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, entitlement.ErrSubscriptionNotFound
		}
		return nil, errors.Join(entitlement.ErrStoreUnreachable, err)
	}
	return &sub, nil
}

// ListDue returns documents with pending sweep work: lapsed trials,
// lapsed cancellations, finished billing periods, or daily counters left
// stale past their UTC day boundary.
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]*entitlement.Subscription, error) {
	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	filter := bson.M{"$or": bson.A{
		bson.M{"status": entitlement.StatusTrial, "trial_ends_at": bson.M{"$lt": now}},
		bson.M{"status": entitlement.StatusCanceled, "end_date": bson.M{"$lte": now}},
		bson.M{"status": bson.M{"$ne": entitlement.StatusExpired}, "current_period_end": bson.M{"$lte": now}},
		bson.M{"generations_today": bson.M{"$gt": 0}, "last_generation_at": bson.M{"$lt": dayStart}},
	}}

	cursor, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, errors.Join(entitlement.ErrStoreUnreachable, err)
	}
	defer cursor.Close(ctx)

	var subs []*entitlement.Subscription
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, errors.Join(ErrFailedToDecode, err)
	}
	return subs, nil
}

// Healthcheck returns a function suitable for readiness probes.
func (s *Store) Healthcheck() func(context.Context) error {
	return func(ctx context.Context) error {
		return s.coll.Database().Client().Ping(ctx, nil)
	}
}
