package session

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoRepository struct {
	coll *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) Repository {
	return &mongoRepository{coll: db.Collection("sessions")}
}

func (r *mongoRepository) GetSessionByID(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *mongoRepository) ListUpcoming(ctx context.Context, after time.Time, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}

	opts := options.Find().SetSort(bson.D{{Key: "start_date", Value: 1}}).SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, bson.M{
		"start_date":      bson.M{"$gt": after},
		"is_force_closed": false,
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	sessions := []Session{}
	if err := cur.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}
