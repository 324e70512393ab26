package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoRepository(db *mongo.Database) Repository {
	return &mongoRepository{coll: db.Collection("refund_ledger"), now: time.Now}
}

func (r *mongoRepository) Record(ctx context.Context, e *Entry) error {
	if e.BookingID == "" || e.Context == "" || e.Amount < 0 {
		return ErrInvalidEntry
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = r.now().UTC()

	_, err := r.coll.InsertOne(ctx, e)
	return err
}

func (r *mongoRepository) ListFailed(ctx context.Context, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	return r.find(ctx, bson.M{"outcome": OutcomeFailed, "resolved_at": bson.M{"$exists": false}}, opts)
}

func (r *mongoRepository) ListByBooking(ctx context.Context, bookingID string) ([]Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return r.find(ctx, bson.M{"booking_id": bookingID}, opts)
}

func (r *mongoRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Entry, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	entries := []Entry{}
	if err := cur.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *mongoRepository) Resolve(ctx context.Context, id string, gatewayRef, resolvedBy string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "outcome": OutcomeFailed, "resolved_at": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{
			"resolved_at": r.now().UTC(),
			"resolved_by": resolvedBy,
			"gateway_ref": gatewayRef,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrEntryNotFound
	}
	return nil
}
